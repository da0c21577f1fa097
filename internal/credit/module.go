// Package credit provides the credit pull gateway and ledger bounded context module.
package credit

import (
	"time"

	"glasswallet_backend/internal/credit/handler"
	"glasswallet_backend/internal/credit/provider"
	"glasswallet_backend/internal/credit/repository"
	"glasswallet_backend/internal/credit/service"
	"glasswallet_backend/internal/events"
	apphttp "glasswallet_backend/internal/http"
	"glasswallet_backend/platform/config"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/storage"
	"glasswallet_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the credit bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the credit gateway. store may be nil when object storage is not configured.
func NewModule(pool *pgxpool.Pool, cfg config.CreditConfig, store storage.ObjectStore, bucket string, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	var prov provider.Provider = provider.NewMockProvider()
	if cfg.GetCreditProviderURL() != "" {
		prov = provider.NewHTTPProvider(cfg.GetCreditProviderURL(), cfg.GetCreditProviderAPIKey())
	} else {
		log.Info("credit provider not configured, using deterministic mock bureau")
	}

	svc := service.New(repository.New(pool), prov, store, bucket, bus, service.Pricing{
		PullCost:       cfg.GetCreditPullCost(),
		PreQualifyCost: cfg.GetCreditPreQualifyCost(),
	}, log)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "credit"
}

// Service returns the credit service for the leads pipeline.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts credit routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/credit")
	group.POST("/pull", ctx.RateLimit("credit-pull", 60, time.Minute), m.handler.Pull)
	group.POST("/pre-qualify", ctx.RateLimit("credit-prequalify", 60, time.Minute), m.handler.PreQualify)
	group.GET("/balance", m.handler.Balance)
	group.GET("/transactions", m.handler.Transactions)
	group.GET("/transactions/:id/report", m.handler.Report)

	admin := ctx.Admin.Group("/credit")
	admin.POST("/grant", m.handler.Grant)
	admin.POST("/transactions/:id/refund", m.handler.Refund)
}

var _ apphttp.Module = (*Module)(nil)
