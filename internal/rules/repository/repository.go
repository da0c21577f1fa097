// Package repository persists auto-tagging rules.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"glasswallet_backend/internal/rules/engine"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Rule is a stored auto-tagging rule.
type Rule struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Description string
	Conditions  []engine.Condition
	Actions     engine.Actions
	Priority    int
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EngineRule converts the stored rule into an evaluable rule.
func (r Rule) EngineRule() engine.Rule {
	return engine.Rule{
		ID:         r.ID.String(),
		Name:       r.Name,
		Conditions: r.Conditions,
		Actions:    r.Actions,
		Priority:   r.Priority,
		Active:     r.IsActive,
	}
}

// Repository is the rules data access contract.
type Repository interface {
	List(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]Rule, error)
	Get(ctx context.Context, userID, id uuid.UUID) (Rule, error)
	Create(ctx context.Context, rule Rule) (Rule, error)
	Update(ctx context.Context, rule Rule) (Rule, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	CreateMissing(ctx context.Context, userID uuid.UUID, rules []Rule) (int, error)
}

// Repo implements Repository on pgx.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a rules repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const ruleColumns = `id, user_id, name, description, conditions, actions, priority, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (Rule, error) {
	var r Rule
	var conditions, actions []byte
	if err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.Description, &conditions, &actions,
		&r.Priority, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Rule{}, err
	}
	if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
		return Rule{}, fmt.Errorf("decode conditions: %w", err)
	}
	if err := json.Unmarshal(actions, &r.Actions); err != nil {
		return Rule{}, fmt.Errorf("decode actions: %w", err)
	}
	return r, nil
}

func encode(rule Rule) ([]byte, []byte, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, err
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, err
	}
	return conditions, actions, nil
}

func (r *Repo) List(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM auto_tagging_rules WHERE user_id = $1`
	if activeOnly {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY priority DESC, id ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	items := make([]Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		items = append(items, rule)
	}
	return items, rows.Err()
}

func (r *Repo) Get(ctx context.Context, userID, id uuid.UUID) (Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM auto_tagging_rules WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, apperr.NotFound("rule not found")
	}
	if err != nil {
		return Rule{}, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

func (r *Repo) Create(ctx context.Context, rule Rule) (Rule, error) {
	conditions, actions, err := encode(rule)
	if err != nil {
		return Rule{}, fmt.Errorf("encode rule: %w", err)
	}
	created, err := scanRule(r.pool.QueryRow(ctx, `
		INSERT INTO auto_tagging_rules (user_id, name, description, conditions, actions, priority, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+ruleColumns,
		rule.UserID, rule.Name, rule.Description, conditions, actions, rule.Priority, rule.IsActive))
	if db.IsUniqueViolation(err) {
		return Rule{}, apperr.Conflict("a rule with this name already exists")
	}
	if err != nil {
		return Rule{}, fmt.Errorf("create rule: %w", err)
	}
	return created, nil
}

func (r *Repo) Update(ctx context.Context, rule Rule) (Rule, error) {
	conditions, actions, err := encode(rule)
	if err != nil {
		return Rule{}, fmt.Errorf("encode rule: %w", err)
	}
	updated, err := scanRule(r.pool.QueryRow(ctx, `
		UPDATE auto_tagging_rules
		SET name = $3, description = $4, conditions = $5, actions = $6, priority = $7, is_active = $8, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+ruleColumns,
		rule.ID, rule.UserID, rule.Name, rule.Description, conditions, actions, rule.Priority, rule.IsActive))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, apperr.NotFound("rule not found")
	}
	if db.IsUniqueViolation(err) {
		return Rule{}, apperr.Conflict("a rule with this name already exists")
	}
	if err != nil {
		return Rule{}, fmt.Errorf("update rule: %w", err)
	}
	return updated, nil
}

func (r *Repo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auto_tagging_rules WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("rule not found")
	}
	return nil
}

// CreateMissing inserts rules whose name the user does not have yet.
func (r *Repo) CreateMissing(ctx context.Context, userID uuid.UUID, rules []Rule) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin seed rules: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, rule := range rules {
		conditions, actions, err := encode(rule)
		if err != nil {
			return 0, fmt.Errorf("encode rule: %w", err)
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO auto_tagging_rules (user_id, name, description, conditions, actions, priority, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, true)
			ON CONFLICT (user_id, name) DO NOTHING`,
			userID, rule.Name, rule.Description, conditions, actions, rule.Priority)
		if err != nil {
			return 0, fmt.Errorf("seed rule %q: %w", rule.Name, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit seed rules: %w", err)
	}
	return inserted, nil
}

var _ Repository = (*Repo)(nil)
