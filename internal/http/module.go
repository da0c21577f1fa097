// Package http provides HTTP server infrastructure including the Module interface
// that all domain modules must implement for route registration.
package http

import (
	"time"

	"glasswallet_backend/platform/cache"
	"glasswallet_backend/platform/config"
	"glasswallet_backend/platform/httpkit"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/ratelimit"

	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
// Each domain module implements this interface to encapsulate its own
// route setup, keeping the main router decoupled from specific endpoints.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared dependencies for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine for modules that need engine-level access.
	Engine *gin.Engine
	// V1 is the public /api/v1 route group.
	V1 *gin.RouterGroup
	// Protected is the authenticated route group under /api/v1.
	Protected *gin.RouterGroup
	// Admin is the admin-only route group under /api/v1/admin.
	Admin *gin.RouterGroup
	// Config is the JWT configuration for auth middleware (scoped access).
	Config config.JWTConfig
	// AuthMiddleware provides the authentication middleware.
	AuthMiddleware gin.HandlerFunc

	limiter ratelimit.Limiter
	cache   cache.Store
	log     *logger.Logger
}

// NewRouterContext builds the shared route registration context.
func NewRouterContext(engine *gin.Engine, v1, protected, admin *gin.RouterGroup, cfg config.JWTConfig,
	auth gin.HandlerFunc, limiter ratelimit.Limiter, store cache.Store, log *logger.Logger) *RouterContext {
	return &RouterContext{
		Engine:         engine,
		V1:             v1,
		Protected:      protected,
		Admin:          admin,
		Config:         cfg,
		AuthMiddleware: auth,
		limiter:        limiter,
		cache:          store,
		log:            log,
	}
}

// RateLimit returns a fixed-window limiter middleware for one route.
func (r *RouterContext) RateLimit(name string, limit int, window time.Duration) gin.HandlerFunc {
	if r.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return httpkit.RouteRateLimit(r.limiter, name, limit, window, r.log)
}

// Cached returns a response cache middleware for one route.
func (r *RouterContext) Cached(name string, ttl time.Duration) gin.HandlerFunc {
	if r.cache == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return httpkit.CacheResponse(r.cache, name, ttl)
}

// Cache exposes the shared keyed store.
func (r *RouterContext) Cache() cache.Store {
	return r.cache
}
