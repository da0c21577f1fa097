// Package pixels provides the ad-platform connection and pixel sync bounded context module.
package pixels

import (
	"time"

	"glasswallet_backend/internal/events"
	apphttp "glasswallet_backend/internal/http"
	"glasswallet_backend/internal/pixels/handler"
	"glasswallet_backend/internal/pixels/platforms"
	"glasswallet_backend/internal/pixels/ports"
	"glasswallet_backend/internal/pixels/repository"
	"glasswallet_backend/internal/pixels/service"
	"glasswallet_backend/platform/cache"
	"glasswallet_backend/platform/config"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the pixels bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the pixel sync orchestrator. box seals platform tokens at rest.
func NewModule(pool *pgxpool.Pool, cfg config.PixelConfig, box service.Sealer, store cache.Store,
	leads ports.LeadSource, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	if cfg.IsPixelSandbox() {
		log.Info("pixel sandbox enabled, no ad platform will be called")
	}
	svc := service.New(service.Deps{
		Repo:       repository.New(pool),
		Adapters:   platforms.NewRegistryFromConfig(cfg),
		Box:        box,
		Cache:      store,
		Leads:      leads,
		Bus:        bus,
		Log:        log,
		AppBaseURL: cfg.GetAppBaseURL(),
		APIBaseURL: cfg.GetAPIBaseURL(),
	})
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "pixels"
}

// Service returns the orchestrator for the leads pipeline and the scheduler.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts pixel routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/pixels")
	conns := group.Group("/connections")
	conns.POST("", m.handler.CreateConnection)
	conns.GET("", m.handler.ListConnections)
	conns.PATCH("/:id", m.handler.UpdateConnection)
	conns.DELETE("/:id", m.handler.DeleteConnection)
	conns.POST("/:id/test", ctx.RateLimit("pixels-test", 30, time.Minute), m.handler.TestConnection)

	group.POST("/sync", ctx.RateLimit("pixels-sync", 20, time.Minute), m.handler.Sync)
	group.GET("/sync/history", m.handler.SyncHistory)
	group.GET("/oauth/:platform/connect", m.handler.OAuthConnect)

	// The platform redirects the browser here without our bearer token.
	ctx.V1.GET("/pixels/oauth/:platform/callback", m.handler.OAuthCallback)
}

var _ apphttp.Module = (*Module)(nil)
