// Package repository persists tenant accounts.
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

// Account is a tenant row.
type Account struct {
	ID                  uuid.UUID
	Email               string
	SubscriptionPlan    string
	CreditBalance       int64
	WebhookURL          *string
	LowBalanceThreshold int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Update holds optional field changes. A nil field is left untouched.
type Update struct {
	WebhookURL          *string
	ClearWebhookURL     bool
	LowBalanceThreshold *int64
}

// Repository is the accounts data access contract.
type Repository interface {
	Upsert(ctx context.Context, id uuid.UUID, email string) (Account, bool, error)
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	Update(ctx context.Context, id uuid.UUID, upd Update) (Account, error)
}

// Repo implements Repository on pgx.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates an accounts repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const accountColumns = `id, email, subscription_plan, credit_balance, webhook_url, low_balance_threshold, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.SubscriptionPlan, &a.CreditBalance, &a.WebhookURL,
		&a.LowBalanceThreshold, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Upsert creates the account on first sight and refreshes the email after.
// The bool reports whether the row was created.
func (r *Repo) Upsert(ctx context.Context, id uuid.UUID, email string) (Account, bool, error) {
	var created bool
	var a Account
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			email = CASE WHEN EXCLUDED.email = '' THEN users.email ELSE EXCLUDED.email END,
			updated_at = now()
		RETURNING `+accountColumns+`, (xmax = 0)`, id, email,
	).Scan(&a.ID, &a.Email, &a.SubscriptionPlan, &a.CreditBalance, &a.WebhookURL,
		&a.LowBalanceThreshold, &a.CreatedAt, &a.UpdatedAt, &created)
	if err != nil {
		return Account{}, false, fmt.Errorf("upsert account: %w", err)
	}
	return a, created, nil
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, apperr.NotFound("account not found").WithDetails(map[string]string{"hint": "call POST /accounts/sync first"})
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *Repo) Update(ctx context.Context, id uuid.UUID, upd Update) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `
		UPDATE users SET
			webhook_url = CASE WHEN $4 THEN NULL ELSE COALESCE($2, webhook_url) END,
			low_balance_threshold = COALESCE($3, low_balance_threshold),
			updated_at = now()
		WHERE id = $1
		RETURNING `+accountColumns, id, upd.WebhookURL, upd.LowBalanceThreshold, upd.ClearWebhookURL))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, apperr.NotFound("account not found")
	}
	if err != nil {
		return Account{}, fmt.Errorf("update account: %w", err)
	}
	return a, nil
}

var _ Repository = (*Repo)(nil)
