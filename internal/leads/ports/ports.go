// Package ports defines consumer-driven interfaces for the collaborators of
// the leads pipeline. Other domains are bridged in through internal/adapters.
package ports

import (
	"context"
	"time"

	"glasswallet_backend/internal/events"
	"glasswallet_backend/internal/rules/engine"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreditOutcome is the part of a credit pull the pipeline reports back.
type CreditOutcome struct {
	CreditScore    *int      `json:"creditScore,omitempty"`
	IncomeEstimate *int64    `json:"incomeEstimate,omitempty"`
	CostInCents    int64     `json:"costInCents"`
	TransactionID  uuid.UUID `json:"transactionId"`
	BalanceAfter   int64     `json:"balanceAfter"`
}

// CreditPuller runs a consented pull on a stored lead.
type CreditPuller interface {
	Pull(ctx context.Context, userID, leadID uuid.UUID, consentGiven bool) (CreditOutcome, error)
}

// RuleEvaluator evaluates the user's active rules.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, userID uuid.UUID, facts engine.Facts) (engine.Result, error)
}

// SignalInput is what the intelligence layer sees of a lead.
type SignalInput struct {
	LeadID         uuid.UUID
	UserID         uuid.UUID
	CreditScore    *int
	IncomeEstimate *int64
	HasEmail       bool
	HasPhone       bool
	State          string
	Source         string
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}

// Signals are numeric facts merged into rule evaluation.
type Signals struct {
	AIScore               int     `json:"aiScore"`
	RiskScore             int     `json:"riskScore"`
	AnomalyCount          int     `json:"anomalyCount"`
	ConversionProbability float64 `json:"conversionProbability"`
}

// SignalProvider computes intelligence signals for a lead.
type SignalProvider interface {
	Signals(ctx context.Context, input SignalInput) (Signals, error)
}

// PixelSyncRequest asks the pixel orchestrator to push leads.
type PixelSyncRequest struct {
	LeadIDs       []uuid.UUID
	ConnectionIDs []uuid.UUID
	SyncType      string
	Trigger       string
}

// PixelSyncSummary is the orchestrator's response, passed through as-is.
type PixelSyncSummary struct {
	SyncType string `json:"syncType"`
	Result   any    `json:"result"`
}

// PixelSyncer pushes tagged leads to ad platforms.
type PixelSyncer interface {
	Sync(ctx context.Context, userID uuid.UUID, req PixelSyncRequest) (PixelSyncSummary, error)
	// AutoSyncConnections returns active connections whose settings opt into syncType.
	AutoSyncConnections(ctx context.Context, userID uuid.UUID, syncType string) ([]uuid.UUID, error)
}

// WebhookStager queues rule-requested webhooks inside the transaction that
// persisted the tags.
type WebhookStager interface {
	StageLeadTagged(ctx context.Context, tx pgx.Tx, e events.LeadTagged) error
}
