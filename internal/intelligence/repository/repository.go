// Package repository reads lead snapshots and dashboard aggregates.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"glasswallet_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LeadSnapshot is the lead data insights are computed from.
type LeadSnapshot struct {
	ID             uuid.UUID
	HasEmail       bool
	HasPhone       bool
	State          string
	Source         string
	CreditScore    *int
	IncomeEstimate *int64
	CreatedAt      time.Time
	ProcessedAt    *time.Time
	Tags           []string
}

// DailyCount is one point of a time series.
type DailyCount struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}

// Dashboard holds the aggregates for one user and period.
type Dashboard struct {
	TotalLeads        int
	NewLeads          int
	ProcessedLeads    int
	AvgCreditScore    *float64
	TagCounts         map[string]int
	SourceCounts      map[string]int
	Pulls             int
	CreditSpent       int64
	CreditPurchased   int64
	Balance           int64
	ActiveConnections int
	LeadsSynced       int
	SyncFailures      int
	DailyLeads        []DailyCount
}

// Repository is the intelligence data access contract.
type Repository interface {
	LeadSnapshot(ctx context.Context, userID, leadID uuid.UUID) (LeadSnapshot, error)
	Dashboard(ctx context.Context, userID uuid.UUID, since time.Time) (Dashboard, error)
}

type Repo struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var _ Repository = (*Repo)(nil)

func (r *Repo) LeadSnapshot(ctx context.Context, userID, leadID uuid.UUID) (LeadSnapshot, error) {
	var s LeadSnapshot
	err := r.pool.QueryRow(ctx, `
		SELECT l.id,
			COALESCE(l.email, '') <> '',
			COALESCE(l.phone, '') <> '',
			COALESCE(l.state, ''),
			l.source,
			l.credit_score,
			l.income_estimate,
			l.created_at,
			l.processed_at,
			COALESCE(ARRAY(SELECT t.tag_type FROM lead_tags t WHERE t.lead_id = l.id ORDER BY t.tag_type), '{}')
		FROM leads l
		WHERE l.id = $1 AND l.user_id = $2`, leadID, userID,
	).Scan(&s.ID, &s.HasEmail, &s.HasPhone, &s.State, &s.Source, &s.CreditScore,
		&s.IncomeEstimate, &s.CreatedAt, &s.ProcessedAt, &s.Tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return LeadSnapshot{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return LeadSnapshot{}, fmt.Errorf("lead snapshot: %w", err)
	}
	return s, nil
}

func (r *Repo) Dashboard(ctx context.Context, userID uuid.UUID, since time.Time) (Dashboard, error) {
	d := Dashboard{TagCounts: map[string]int{}, SourceCounts: map[string]int{}, DailyLeads: []DailyCount{}}

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= $2),
			COUNT(*) FILTER (WHERE processed_at IS NOT NULL),
			AVG(credit_score)::float8
		FROM leads WHERE user_id = $1`, userID, since,
	).Scan(&d.TotalLeads, &d.NewLeads, &d.ProcessedLeads, &d.AvgCreditScore)
	if err != nil {
		return Dashboard{}, fmt.Errorf("lead totals: %w", err)
	}

	if err := r.countInto(ctx, d.TagCounts, `
		SELECT t.tag_type, COUNT(*) FROM lead_tags t
		JOIN leads l ON l.id = t.lead_id
		WHERE l.user_id = $1 GROUP BY t.tag_type`, userID); err != nil {
		return Dashboard{}, fmt.Errorf("tag counts: %w", err)
	}
	if err := r.countInto(ctx, d.SourceCounts, `
		SELECT source, COUNT(*) FROM leads WHERE user_id = $1 GROUP BY source`, userID); err != nil {
		return Dashboard{}, fmt.Errorf("source counts: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE transaction_type = 'pull'),
			COALESCE(SUM(cost_in_cents) FILTER (WHERE transaction_type = 'pull'), 0),
			COALESCE(SUM(cost_in_cents) FILTER (WHERE transaction_type = 'purchase'), 0),
			(SELECT credit_balance FROM users WHERE id = $1)
		FROM credit_transactions
		WHERE user_id = $1 AND created_at >= $2`, userID, since,
	).Scan(&d.Pulls, &d.CreditSpent, &d.CreditPurchased, &d.Balance)
	if err != nil {
		return Dashboard{}, fmt.Errorf("credit totals: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM pixel_connections WHERE user_id = $1 AND connection_status = 'active'),
			COALESCE(SUM(synced_count), 0),
			COALESCE(SUM(failed_count), 0)
		FROM pixel_sync_logs
		WHERE user_id = $1 AND created_at >= $2`, userID, since,
	).Scan(&d.ActiveConnections, &d.LeadsSynced, &d.SyncFailures)
	if err != nil {
		return Dashboard{}, fmt.Errorf("pixel totals: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT date_trunc('day', created_at) AS day, COUNT(*)
		FROM leads WHERE user_id = $1 AND created_at >= $2
		GROUP BY day ORDER BY day`, userID, since)
	if err != nil {
		return Dashboard{}, fmt.Errorf("daily leads: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p DailyCount
		if err := rows.Scan(&p.Day, &p.Count); err != nil {
			return Dashboard{}, fmt.Errorf("scan daily leads: %w", err)
		}
		d.DailyLeads = append(d.DailyLeads, p)
	}
	return d, rows.Err()
}

func (r *Repo) countInto(ctx context.Context, dst map[string]int, query string, args ...interface{}) error {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dst[key] = n
	}
	return rows.Err()
}
