// Package rules provides the auto-tagging rules bounded context module.
package rules

import (
	apphttp "glasswallet_backend/internal/http"
	"glasswallet_backend/internal/rules/engine"
	"glasswallet_backend/internal/rules/handler"
	"glasswallet_backend/internal/rules/repository"
	"glasswallet_backend/internal/rules/service"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the rules bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the rules module.
func NewModule(pool *pgxpool.Pool, policy engine.Policy, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), policy, log)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "rules"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts rule routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/rules")
	group.GET("", m.handler.List)
	group.POST("", m.handler.Create)
	group.POST("/defaults", m.handler.SeedDefaults)
	group.POST("/test", m.handler.Test)
	group.PUT("/:id", m.handler.Update)
	group.DELETE("/:id", m.handler.Delete)
}

var _ apphttp.Module = (*Module)(nil)
