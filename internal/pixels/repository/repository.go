// Package repository persists pixel connections and sync history.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connection statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusExpired  = "expired"
	StatusError    = "error"
)

// SyncSettings is stored as JSONB on the connection.
type SyncSettings struct {
	AutoSync       bool     `json:"autoSync"`
	SyncTypes      []string `json:"syncTypes"`
	MinCreditScore *int     `json:"minCreditScore,omitempty"`
	Frequency      string   `json:"frequency,omitempty"`
}

// Connection is a pixel_connections row. Tokens stay sealed here.
type Connection struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Platform           string
	Name               string
	AccountID          string
	PixelID            string
	SealedAccessToken  string
	SealedRefreshToken string
	TokenExpiresAt     *time.Time
	Status             string
	Settings           SyncSettings
	LastSyncAt         *time.Time
	LastError          *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ConnectionUpdate holds optional changes; nil fields are untouched.
type ConnectionUpdate struct {
	Name      *string
	AccountID *string
	PixelID   *string
	Status    *string
	Settings  *SyncSettings
}

// SyncLog is one connection outcome of a sync run.
type SyncLog struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	ConnectionID uuid.UUID
	SyncType     string
	Trigger      string
	LeadCount    int
	SyncedCount  int
	FailedCount  int
	Errors       []string
	CreatedAt    time.Time
}

// SyncLogParams filters sync history.
type SyncLogParams struct {
	UserID       uuid.UUID
	ConnectionID *uuid.UUID
	Offset       int
	Limit        int
}

// Repository is the pixels data access contract.
type Repository interface {
	Create(ctx context.Context, c Connection) (Connection, error)
	Get(ctx context.Context, userID, id uuid.UUID) (Connection, error)
	GetMany(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]Connection, error)
	List(ctx context.Context, userID uuid.UUID) ([]Connection, error)
	ListAutoSync(ctx context.Context, userID uuid.UUID, syncType string) ([]Connection, error)
	Update(ctx context.Context, userID, id uuid.UUID, upd ConnectionUpdate) (Connection, error)
	UpdateCredentials(ctx context.Context, c Connection) (Connection, error)
	FindByName(ctx context.Context, userID uuid.UUID, name string) (Connection, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	SetStatus(ctx context.Context, id uuid.UUID, status string, lastError *string) error
	RecordSync(ctx context.Context, id uuid.UUID, at time.Time) error
	InsertSyncLog(ctx context.Context, l SyncLog) error
	ListSyncLogs(ctx context.Context, p SyncLogParams) ([]SyncLog, int, error)
}

// Repo implements Repository on pgx.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a pixels repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var _ Repository = (*Repo)(nil)

const connectionColumns = `id, user_id, platform_type, connection_name, account_id, pixel_id,
	sealed_access_token, sealed_refresh_token, token_expires_at, connection_status,
	sync_settings, last_sync_at, last_error, created_at, updated_at`

func scanConnection(row pgx.Row) (Connection, error) {
	var c Connection
	var settings []byte
	if err := row.Scan(&c.ID, &c.UserID, &c.Platform, &c.Name, &c.AccountID, &c.PixelID,
		&c.SealedAccessToken, &c.SealedRefreshToken, &c.TokenExpiresAt, &c.Status,
		&settings, &c.LastSyncAt, &c.LastError, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Connection{}, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &c.Settings); err != nil {
			return Connection{}, fmt.Errorf("decode sync settings: %w", err)
		}
	}
	if c.Settings.SyncTypes == nil {
		c.Settings.SyncTypes = []string{}
	}
	return c, nil
}

func collectConnections(rows pgx.Rows) ([]Connection, error) {
	defer rows.Close()
	out := make([]Connection, 0)
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nameConflict(err error, name string) error {
	if db.IsUniqueViolation(err) {
		return apperr.Conflict(fmt.Sprintf("a connection named %q already exists", name)).WithCode("CONNECTION_NAME_TAKEN")
	}
	return nil
}

func (r *Repo) Create(ctx context.Context, c Connection) (Connection, error) {
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return Connection{}, fmt.Errorf("encode sync settings: %w", err)
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	out, err := scanConnection(r.pool.QueryRow(ctx, `
		INSERT INTO pixel_connections (user_id, platform_type, connection_name, account_id, pixel_id,
			sealed_access_token, sealed_refresh_token, token_expires_at, connection_status, sync_settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+connectionColumns,
		c.UserID, c.Platform, c.Name, c.AccountID, c.PixelID,
		c.SealedAccessToken, c.SealedRefreshToken, c.TokenExpiresAt, c.Status, settings))
	if err != nil {
		if cerr := nameConflict(err, c.Name); cerr != nil {
			return Connection{}, cerr
		}
		return Connection{}, fmt.Errorf("create pixel connection: %w", err)
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, userID, id uuid.UUID) (Connection, error) {
	c, err := scanConnection(r.pool.QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM pixel_connections WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Connection{}, apperr.NotFound("pixel connection not found")
	}
	if err != nil {
		return Connection{}, fmt.Errorf("get pixel connection: %w", err)
	}
	return c, nil
}

func (r *Repo) GetMany(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]Connection, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+connectionColumns+` FROM pixel_connections WHERE user_id = $1 AND id = ANY($2) ORDER BY created_at`,
		userID, ids)
	if err != nil {
		return nil, fmt.Errorf("get pixel connections: %w", err)
	}
	return collectConnections(rows)
}

func (r *Repo) List(ctx context.Context, userID uuid.UUID) ([]Connection, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+connectionColumns+` FROM pixel_connections WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list pixel connections: %w", err)
	}
	return collectConnections(rows)
}

// ListAutoSync returns active connections that opted into automatic sync of syncType.
func (r *Repo) ListAutoSync(ctx context.Context, userID uuid.UUID, syncType string) ([]Connection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+connectionColumns+` FROM pixel_connections
		WHERE user_id = $1
		  AND connection_status = 'active'
		  AND (sync_settings->>'autoSync')::boolean IS TRUE
		  AND sync_settings->'syncTypes' ? $2
		ORDER BY created_at`, userID, syncType)
	if err != nil {
		return nil, fmt.Errorf("list auto-sync connections: %w", err)
	}
	return collectConnections(rows)
}

func (r *Repo) Update(ctx context.Context, userID, id uuid.UUID, upd ConnectionUpdate) (Connection, error) {
	var settings []byte
	if upd.Settings != nil {
		raw, err := json.Marshal(upd.Settings)
		if err != nil {
			return Connection{}, fmt.Errorf("encode sync settings: %w", err)
		}
		settings = raw
	}
	c, err := scanConnection(r.pool.QueryRow(ctx, `
		UPDATE pixel_connections SET
			connection_name = COALESCE($3, connection_name),
			account_id = COALESCE($4, account_id),
			pixel_id = COALESCE($5, pixel_id),
			connection_status = COALESCE($6, connection_status),
			sync_settings = COALESCE($7::jsonb, sync_settings),
			last_error = CASE WHEN $6::text = 'active' THEN NULL ELSE last_error END,
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+connectionColumns,
		id, userID, upd.Name, upd.AccountID, upd.PixelID, upd.Status, settings))
	if errors.Is(err, pgx.ErrNoRows) {
		return Connection{}, apperr.NotFound("pixel connection not found")
	}
	if err != nil {
		if upd.Name != nil {
			if cerr := nameConflict(err, *upd.Name); cerr != nil {
				return Connection{}, cerr
			}
		}
		return Connection{}, fmt.Errorf("update pixel connection: %w", err)
	}
	return c, nil
}

// UpdateCredentials replaces the sealed tokens of a reconnected connection and reactivates it.
func (r *Repo) UpdateCredentials(ctx context.Context, c Connection) (Connection, error) {
	out, err := scanConnection(r.pool.QueryRow(ctx, `
		UPDATE pixel_connections SET
			sealed_access_token = $3,
			sealed_refresh_token = $4,
			token_expires_at = $5,
			account_id = CASE WHEN $6 = '' THEN account_id ELSE $6 END,
			connection_status = 'active',
			last_error = NULL,
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+connectionColumns,
		c.ID, c.UserID, c.SealedAccessToken, c.SealedRefreshToken, c.TokenExpiresAt, c.AccountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Connection{}, apperr.NotFound("pixel connection not found")
	}
	if err != nil {
		return Connection{}, fmt.Errorf("update pixel credentials: %w", err)
	}
	return out, nil
}

// FindByName looks up a connection by its unique per-user name.
func (r *Repo) FindByName(ctx context.Context, userID uuid.UUID, name string) (Connection, error) {
	c, err := scanConnection(r.pool.QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM pixel_connections WHERE user_id = $1 AND connection_name = $2`, userID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Connection{}, apperr.NotFound("pixel connection not found")
	}
	if err != nil {
		return Connection{}, fmt.Errorf("find pixel connection: %w", err)
	}
	return c, nil
}

func (r *Repo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pixel_connections WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete pixel connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("pixel connection not found")
	}
	return nil
}

func (r *Repo) SetStatus(ctx context.Context, id uuid.UUID, status string, lastError *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pixel_connections SET connection_status = $2, last_error = $3, updated_at = now()
		WHERE id = $1`, id, status, lastError)
	if err != nil {
		return fmt.Errorf("set pixel connection status: %w", err)
	}
	return nil
}

func (r *Repo) RecordSync(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pixel_connections SET last_sync_at = $2, last_error = NULL, updated_at = now()
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("record pixel sync: %w", err)
	}
	return nil
}

func (r *Repo) InsertSyncLog(ctx context.Context, l SyncLog) error {
	if l.Errors == nil {
		l.Errors = []string{}
	}
	errs, err := json.Marshal(l.Errors)
	if err != nil {
		return fmt.Errorf("encode sync errors: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO pixel_sync_logs (user_id, connection_id, sync_type, trigger, lead_count, synced_count, failed_count, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.UserID, l.ConnectionID, l.SyncType, l.Trigger, l.LeadCount, l.SyncedCount, l.FailedCount, errs)
	if err != nil {
		return fmt.Errorf("insert pixel sync log: %w", err)
	}
	return nil
}

func (r *Repo) ListSyncLogs(ctx context.Context, p SyncLogParams) ([]SyncLog, int, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{p.UserID}
	if p.ConnectionID != nil {
		args = append(args, *p.ConnectionID)
		where = append(where, fmt.Sprintf("connection_id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pixel_sync_logs WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pixel sync logs: %w", err)
	}

	args = append(args, p.Limit, p.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, user_id, connection_id, sync_type, trigger, lead_count, synced_count, failed_count, errors, created_at
		FROM pixel_sync_logs WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list pixel sync logs: %w", err)
	}
	defer rows.Close()

	out := make([]SyncLog, 0)
	for rows.Next() {
		var l SyncLog
		var errs []byte
		if err := rows.Scan(&l.ID, &l.UserID, &l.ConnectionID, &l.SyncType, &l.Trigger,
			&l.LeadCount, &l.SyncedCount, &l.FailedCount, &errs, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan pixel sync log: %w", err)
		}
		if err := json.Unmarshal(errs, &l.Errors); err != nil {
			l.Errors = []string{}
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}
