// Package integrate provides the external lead intake module: the embeddable
// widget, server-to-server webhooks and the API keys that authenticate them.
package integrate

import (
	"net/http"
	"time"

	"glasswallet_backend/internal/events"
	apphttp "glasswallet_backend/internal/http"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/validator"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the integrate bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	keys    KeyStore
	log     *logger.Logger
}

func NewModule(pool *pgxpool.Pool, leads LeadCreator, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	return newModule(NewRepository(pool), leads, bus, val, log)
}

func newModule(keys KeyStore, leads LeadCreator, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	svc := NewService(keys, leads, bus, log)
	return &Module{handler: NewHandler(svc, val), keys: keys, log: log}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "integrate"
}

// intakeCORS lets any site embed the widget. Allowed domains are enforced
// per key by APIKeyAuthMiddleware.
func intakeCORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", HeaderAPIKey},
		MaxAge:          12 * time.Hour,
	})
}

// RegisterRoutes mounts intake and key management routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	public := ctx.V1.Group("/integrate")
	public.Use(intakeCORS())
	public.GET("/health", m.handler.Health)

	intake := public.Group("")
	intake.OPTIONS("/widget", noContent)
	intake.OPTIONS("/webhook", noContent)
	keyed := intake.Group("")
	keyed.Use(APIKeyAuthMiddleware(m.keys, m.log))
	keyed.POST("/widget", ctx.RateLimit("integrate-widget", 60, time.Minute), m.handler.Widget)
	keyed.POST("/webhook", ctx.RateLimit("integrate-webhook", 30, time.Minute), m.handler.Webhook)

	keys := ctx.Protected.Group("/integrate/keys")
	keys.POST("", m.handler.CreateKey)
	keys.GET("", m.handler.ListKeys)
	keys.DELETE("/:id", m.handler.RevokeKey)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

var _ apphttp.Module = (*Module)(nil)
