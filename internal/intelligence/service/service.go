// Package service computes lead insights, intelligence signals and dashboard analytics.
package service

import (
	"context"
	"math"
	"time"

	"glasswallet_backend/internal/intelligence/recommend"
	"glasswallet_backend/internal/intelligence/repository"
	"glasswallet_backend/internal/intelligence/scoring"
	"glasswallet_backend/internal/intelligence/transport"
	"glasswallet_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultDashboardDays = 30

type Service struct {
	repo        repository.Repository
	recommender recommend.Recommender
	log         *logger.Logger
	now         func() time.Time
}

func New(repo repository.Repository, rec recommend.Recommender, log *logger.Logger) *Service {
	if rec == nil {
		rec = recommend.Heuristic{}
	}
	return &Service{repo: repo, recommender: rec, log: log, now: time.Now}
}

// Signals scores a lead without touching storage; the leads pipeline calls it
// before rule evaluation.
func (s *Service) Signals(in scoring.Input) scoring.Signals {
	return scoring.Compute(in, s.now())
}

func (s *Service) LeadInsights(ctx context.Context, userID, leadID uuid.UUID) (transport.LeadInsightsResponse, error) {
	snap, err := s.repo.LeadSnapshot(ctx, userID, leadID)
	if err != nil {
		return transport.LeadInsightsResponse{}, err
	}
	sig := s.Signals(scoring.Input{
		CreditScore:    snap.CreditScore,
		IncomeEstimate: snap.IncomeEstimate,
		HasEmail:       snap.HasEmail,
		HasPhone:       snap.HasPhone,
		State:          snap.State,
		Source:         snap.Source,
		CreatedAt:      snap.CreatedAt,
		ProcessedAt:    snap.ProcessedAt,
	})

	recs, err := s.recommender.Recommend(ctx, recommend.Context{CreditScore: snap.CreditScore, Tags: snap.Tags, Signals: sig})
	if err != nil {
		s.log.Warn("recommendation failed", "leadId", leadID, "provider", s.recommender.Name(), "error", err)
		recs = []recommend.Recommendation{}
	}

	return transport.LeadInsightsResponse{
		LeadID:          leadID,
		AIScore:         sig.AIScore,
		RiskScore:       sig.RiskScore,
		Conversion:      sig.ConversionProbability,
		Anomalies:       sig.Anomalies,
		Recommendations: recs,
		Provider:        s.recommender.Name(),
		GeneratedAt:     s.now().UTC(),
	}, nil
}

func ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 1000
}

func (s *Service) Dashboard(ctx context.Context, userID uuid.UUID, days int) (transport.DashboardResponse, error) {
	if days <= 0 {
		days = defaultDashboardDays
	}
	since := s.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -days+1)

	d, err := s.repo.Dashboard(ctx, userID, since)
	if err != nil {
		return transport.DashboardResponse{}, err
	}
	if d.AvgCreditScore != nil {
		avg := math.Round(*d.AvgCreditScore)
		d.AvgCreditScore = &avg
	}

	return transport.DashboardResponse{
		PeriodDays: days,
		Since:      since,
		Leads: transport.LeadStats{
			Total:          d.TotalLeads,
			New:            d.NewLeads,
			Processed:      d.ProcessedLeads,
			ProcessingRate: ratio(d.ProcessedLeads, d.TotalLeads),
			AvgCreditScore: d.AvgCreditScore,
			ByTag:          d.TagCounts,
			BySource:       d.SourceCounts,
		},
		Credit: transport.CreditStats{
			Pulls:          d.Pulls,
			SpentInCents:   d.CreditSpent,
			PurchasedCents: d.CreditPurchased,
			Balance:        d.Balance,
		},
		Pixels: transport.PixelStats{
			ActiveConnections: d.ActiveConnections,
			LeadsSynced:       d.LeadsSynced,
			Failures:          d.SyncFailures,
			SuccessRate:       ratio(d.LeadsSynced, d.LeadsSynced+d.SyncFailures),
		},
		DailyLeads: d.DailyLeads,
	}, nil
}
