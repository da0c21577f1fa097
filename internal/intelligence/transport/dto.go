package transport

import (
	"time"

	"glasswallet_backend/internal/intelligence/recommend"
	"glasswallet_backend/internal/intelligence/repository"
	"glasswallet_backend/internal/intelligence/scoring"

	"github.com/google/uuid"
)

type LeadInsightsResponse struct {
	LeadID          uuid.UUID                  `json:"leadId"`
	AIScore         int                        `json:"aiScore"`
	RiskScore       int                        `json:"riskScore"`
	Conversion      float64                    `json:"conversionProbability"`
	Anomalies       []scoring.Anomaly          `json:"anomalies"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
	Provider        string                     `json:"provider"`
	GeneratedAt     time.Time                  `json:"generatedAt"`
}

type DashboardRequest struct {
	Days int `form:"days" validate:"omitempty,min=1,max=365"`
}

type LeadStats struct {
	Total          int            `json:"total"`
	New            int            `json:"new"`
	Processed      int            `json:"processed"`
	ProcessingRate float64        `json:"processingRate"`
	AvgCreditScore *float64       `json:"avgCreditScore"`
	ByTag          map[string]int `json:"byTag"`
	BySource       map[string]int `json:"bySource"`
}

type CreditStats struct {
	Pulls          int   `json:"pulls"`
	SpentInCents   int64 `json:"spentInCents"`
	PurchasedCents int64 `json:"purchasedInCents"`
	Balance        int64 `json:"balance"`
}

type PixelStats struct {
	ActiveConnections int     `json:"activeConnections"`
	LeadsSynced       int     `json:"leadsSynced"`
	Failures          int     `json:"failures"`
	SuccessRate       float64 `json:"successRate"`
}

type DashboardResponse struct {
	PeriodDays int                     `json:"periodDays"`
	Since      time.Time               `json:"since"`
	Leads      LeadStats               `json:"leads"`
	Credit     CreditStats             `json:"credit"`
	Pixels     PixelStats              `json:"pixels"`
	DailyLeads []repository.DailyCount `json:"dailyLeads"`
}
