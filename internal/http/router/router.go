package router

import (
	"net/http"
	"time"

	apphttp "glasswallet_backend/internal/http"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// New builds the gin engine and mounts every module.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID(app.Logger))
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())

	// Intake routes carry their own permissive CORS policy.
	engine.Use(unlessIntake(appCORS(app.Config)))

	globalLimiter := httpkit.NewIPRateLimiter(rate.Limit(300.0/60.0), 60, app.Logger)
	engine.Use(globalLimiter.RateLimit())

	engine.NoRoute(func(c *gin.Context) {
		httpkit.Error(c, http.StatusNotFound, apperr.CodeNotFound, "route not found", nil)
	})
	engine.NoMethod(func(c *gin.Context) {
		httpkit.Error(c, http.StatusMethodNotAllowed, apperr.CodeMethodNotAllowed, "method not allowed", nil)
	})

	engine.GET("/health", healthHandler(app))
	engine.GET("/api/health", healthHandler(app))

	v1 := engine.Group("/api/v1")
	authMiddleware := httpkit.AuthRequired(app.Config)
	protected := v1.Group("")
	protected.Use(authMiddleware)
	admin := protected.Group("/admin")
	admin.Use(httpkit.RequireRole("admin"))

	rc := apphttp.NewRouterContext(engine, v1, protected, admin, app.Config, authMiddleware,
		app.RateLimiter, app.Cache, app.Logger)
	for _, m := range app.Modules {
		m.RegisterRoutes(rc)
		app.Logger.Debug("module routes registered", "module", m.Name())
	}

	return engine
}

func healthHandler(app *apphttp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if app.Health != nil {
			if err := app.Health.Ping(c.Request.Context()); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		httpkit.JSON(c, code, gin.H{"status": status, "time": time.Now().UTC()})
	}
}

func appCORS(cfg apphttp.RouterConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", httpkit.HeaderRequestID},
		ExposeHeaders:    []string{httpkit.HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.GetCORSOrigins()
	}
	return cors.New(corsCfg)
}

func unlessIntake(next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isIntakePath(c.Request.URL.Path) {
			c.Next()
			return
		}
		next(c)
	}
}

func isIntakePath(path string) bool {
	const prefix = "/api/v1/integrate/"
	if len(path) < len(prefix) || path[:len(prefix)] != prefix {
		return false
	}
	switch path[len(prefix):] {
	case "widget", "webhook", "health":
		return true
	}
	return false
}
