// Package outbox persists durable deliveries until the scheduler drains them.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"glasswallet_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Delivery kinds.
const (
	KindWebhook = "webhook"
	KindEmail   = "email"
)

const (
	// DefaultTimeout applies to single-lead webhook deliveries.
	DefaultTimeout = 10 * time.Second
	// BatchTimeout applies to webhook deliveries carrying a batch result.
	BatchTimeout = 30 * time.Second
)

type Record struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Kind        string
	Destination string
	Payload     json.RawMessage
	Timeout     time.Duration
	RunAt       time.Time
	Status      Status
	Attempts    int
	LastError   *string
}

type InsertParams struct {
	UserID      uuid.UUID
	Kind        string
	Destination string
	Payload     any
	Timeout     time.Duration
	RunAt       time.Time
}

// Store is the outbox persistence used by the notification module and the dispatcher.
type Store interface {
	Insert(ctx context.Context, p InsertParams) (uuid.UUID, error)
	InsertTx(ctx context.Context, tx pgx.Tx, p InsertParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (Record, error)
	ClaimPending(ctx context.Context, limit int) ([]Record, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	RecordAttemptError(ctx context.Context, id uuid.UUID, lastError string) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]Record, int, error)
	Requeue(ctx context.Context, id, userID uuid.UUID) error
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	return insert(ctx, r.pool, p)
}

// InsertTx queues a delivery inside the caller's transaction, so the row
// commits or rolls back together with the write that produced it.
func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, p InsertParams) (uuid.UUID, error) {
	return insert(ctx, tx, p)
}

func insert(ctx context.Context, q querier, p InsertParams) (uuid.UUID, error) {
	if p.UserID == uuid.Nil {
		return uuid.Nil, errors.New("userId is required")
	}
	if p.Kind != KindWebhook && p.Kind != KindEmail {
		return uuid.Nil, fmt.Errorf("unsupported outbox kind %q", p.Kind)
	}
	if p.Destination == "" {
		return uuid.Nil, errors.New("destination is required")
	}
	if p.RunAt.IsZero() {
		p.RunAt = time.Now().UTC()
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}

	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	var id uuid.UUID
	err = q.QueryRow(ctx,
		`INSERT INTO outbox (user_id, kind, destination, payload, timeout_seconds, run_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		p.UserID, p.Kind, p.Destination, payload, int(p.Timeout/time.Second), p.RunAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert outbox: %w", err)
	}
	return id, nil
}

const recordColumns = `id, user_id, kind, destination, payload, timeout_seconds, run_at, status, attempts, last_error`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var status string
	var timeoutSeconds int
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Kind, &rec.Destination, &rec.Payload,
		&timeoutSeconds, &rec.RunAt, &status, &rec.Attempts, &rec.LastError); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	rec.Timeout = time.Duration(timeoutSeconds) * time.Second
	return rec, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM outbox WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, apperr.NotFound("outbox record not found")
	}
	if err != nil {
		return Record{}, fmt.Errorf("get outbox: %w", err)
	}
	return rec, nil
}

// ClaimPending moves due pending rows to enqueued. Concurrent dispatchers
// never claim the same row.
func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]Record, error) {
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM outbox
		WHERE status = 'pending' AND run_at <= now() + interval '1 minute'
		ORDER BY run_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE outbox o
	SET status = 'enqueued', updated_at = now()
	FROM cte
	WHERE o.id = cte.id
	RETURNING o.id, o.user_id, o.kind, o.destination, o.payload, o.timeout_seconds,
	          o.run_at, o.status, o.attempts, o.last_error`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repository) exec(ctx context.Context, op, sql string, args ...any) error {
	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	return r.exec(ctx, "mark outbox pending",
		`UPDATE outbox SET status = 'pending', last_error = $2, updated_at = now() WHERE id = $1`,
		id, lastError)
}

func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "mark outbox processing",
		`UPDATE outbox SET status = 'processing', attempts = attempts + 1, updated_at = now() WHERE id = $1`,
		id)
}

// RecordAttemptError keeps the row processing while the queue retries it.
func (r *Repository) RecordAttemptError(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.exec(ctx, "record outbox error",
		`UPDATE outbox SET last_error = $2, updated_at = now() WHERE id = $1`,
		id, lastError)
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "mark outbox succeeded",
		`UPDATE outbox SET status = 'succeeded', last_error = NULL, updated_at = now() WHERE id = $1`,
		id)
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.exec(ctx, "mark outbox failed",
		`UPDATE outbox SET status = 'failed', last_error = $2, updated_at = now() WHERE id = $1`,
		id, lastError)
}

// ListByUser pages a user's deliveries, newest first. An empty status lists all.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]Record, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE user_id = $1 AND ($2 = '' OR status = $2)`,
		userID, status,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count outbox: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM outbox
		 WHERE user_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		userID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan outbox: %w", err)
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// Requeue sends a dead-lettered row back to pending with a fresh attempt count.
func (r *Repository) Requeue(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE outbox SET status = 'pending', attempts = 0, run_at = now(), updated_at = now()
		 WHERE id = $1 AND user_id = $2 AND status = 'failed'`,
		id, userID)
	if err != nil {
		return fmt.Errorf("requeue outbox: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("failed delivery not found")
	}
	return nil
}
