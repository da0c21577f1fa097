// Package leads provides the lead management bounded context module.
// The module owns the qualification pipeline: credit pull, rule evaluation,
// tag persistence and pixel sync hand-off.
package leads

import (
	"time"

	"glasswallet_backend/internal/events"
	apphttp "glasswallet_backend/internal/http"
	"glasswallet_backend/internal/leads/handler"
	"glasswallet_backend/internal/leads/ports"
	"glasswallet_backend/internal/leads/repository"
	"glasswallet_backend/internal/leads/service"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates the leads module. Pixel sync is wired later through
// Service().SetPixelSyncer because the pixels module reads leads too.
func NewModule(pool *pgxpool.Pool, bus events.Bus, credit ports.CreditPuller, rules ports.RuleEvaluator, signals ports.SignalProvider, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(service.Deps{
		Repo:    repo,
		Bus:     bus,
		Credit:  credit,
		Rules:   rules,
		Signals: signals,
		Log:     log,
	})
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service returns the lead service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes lead reads and tag writes to adapters.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts leads routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/leads")
	group.POST("", m.handler.Create)
	group.GET("", m.handler.List)
	group.POST("/bulk-tag", ctx.RateLimit("leads-bulk-tag", 10, time.Minute), m.handler.BulkTag)
	group.POST("/batch-qualify", ctx.RateLimit("leads-batch-qualify", 10, time.Minute), m.handler.BatchQualify)
	group.GET("/:id", m.handler.Get)
	group.PATCH("/:id", m.handler.Update)
	group.DELETE("/:id", m.handler.Delete)
	group.POST("/:id/credit-pull", ctx.RateLimit("leads-credit-pull", 60, time.Minute), m.handler.CreditPull)
	group.GET("/:id/tags", m.handler.ListTags)
	group.POST("/:id/tag", m.handler.Tag)
	group.DELETE("/:id/tag", m.handler.RemoveTag)
	group.POST("/:id/auto-tag", m.handler.AutoTag)
	group.POST("/:id/tag-and-sync", m.handler.TagAndSync)
}

var _ apphttp.Module = (*Module)(nil)
