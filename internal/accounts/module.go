// Package accounts provides the tenant account bounded context module.
package accounts

import (
	"glasswallet_backend/internal/accounts/handler"
	"glasswallet_backend/internal/accounts/repository"
	"glasswallet_backend/internal/accounts/service"
	apphttp "glasswallet_backend/internal/http"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the accounts bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule creates and initializes the accounts module.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), log)
	return &Module{handler: handler.New(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "accounts"
}

// RegisterRoutes mounts account routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/accounts")
	group.POST("/sync", m.handler.Sync)
	group.GET("/me", m.handler.Me)
	group.PATCH("/me", m.handler.Update)
}

var _ apphttp.Module = (*Module)(nil)
