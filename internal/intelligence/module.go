// Package intelligence provides lead insights and dashboard analytics.
package intelligence

import (
	"time"

	apphttp "glasswallet_backend/internal/http"
	"glasswallet_backend/internal/intelligence/handler"
	"glasswallet_backend/internal/intelligence/recommend"
	"glasswallet_backend/internal/intelligence/repository"
	"glasswallet_backend/internal/intelligence/service"
	"glasswallet_backend/platform/ai/moonshot"
	"glasswallet_backend/platform/config"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires insights. An LLM recommender is used when an API key is configured.
func NewModule(pool *pgxpool.Pool, cfg config.AIConfig, val *validator.Validator, log *logger.Logger) *Module {
	var rec recommend.Recommender = recommend.Heuristic{}
	if cfg.IsLLMEnabled() {
		rec = recommend.NewLLM(moonshot.NewModel(moonshot.Config{
			APIKey:   cfg.GetMoonshotAPIKey(),
			Model:    cfg.GetMoonshotModel(),
			JSONMode: true,
		}))
	}
	svc := service.New(repository.New(pool), rec, log)
	return &Module{handler: handler.New(svc, val), service: svc}
}

func (m *Module) Name() string {
	return "intelligence"
}

// Service returns the insights service for the leads signal adapter.
func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/intelligence/leads/:id", ctx.RateLimit("intelligence", 120, time.Minute), m.handler.LeadInsights)
	ctx.Protected.GET("/analytics/dashboard", ctx.Cached("analytics-dashboard", 2*time.Minute), m.handler.Dashboard)
}

var _ apphttp.Module = (*Module)(nil)
