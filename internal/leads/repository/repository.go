package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"glasswallet_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Lead sources.
const (
	SourceManual  = "manual"
	SourceWidget  = "widget"
	SourceWebhook = "webhook"
	SourceAPI     = "api"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	FirstName         string
	LastName          string
	Email             *string
	Phone             *string
	Street            *string
	City              *string
	State             *string
	ZipCode           *string
	CreditScore       *int
	IncomeEstimate    *int64
	ConsentGiven      bool
	Source            string
	ProcessedAt       *time.Time
	DataRetentionDate time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type CreateLeadParams struct {
	UserID       uuid.UUID
	FirstName    string
	LastName     string
	Email        *string
	Phone        *string
	Street       *string
	City         *string
	State        *string
	ZipCode      *string
	ConsentGiven bool
	Source       string
}

// UpdateLeadParams changes only the non-nil fields.
type UpdateLeadParams struct {
	FirstName    *string
	LastName     *string
	Email        *string
	Phone        *string
	Street       *string
	City         *string
	State        *string
	ZipCode      *string
	ConsentGiven *bool
}

type ListParams struct {
	UserID         uuid.UUID
	Search         string
	TagType        string
	Processed      *bool
	MinCreditScore *int
	MaxCreditScore *int
	Offset         int
	Limit          int
}

const leadColumns = `l.id, l.user_id, l.first_name, l.last_name, l.email, l.phone, l.street, l.city, l.state, l.zip_code,
	l.credit_score, l.income_estimate, l.consent_given, l.source, l.processed_at, l.data_retention_date,
	l.created_at, l.updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.UserID, &l.FirstName, &l.LastName, &l.Email, &l.Phone, &l.Street, &l.City,
		&l.State, &l.ZipCode, &l.CreditScore, &l.IncomeEstimate, &l.ConsentGiven, &l.Source, &l.ProcessedAt,
		&l.DataRetentionDate, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		INSERT INTO leads AS l (user_id, first_name, last_name, email, phone, street, city, state, zip_code,
			consent_given, source, data_retention_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now() + INTERVAL '7 years')
		RETURNING `+leadColumns,
		params.UserID, params.FirstName, params.LastName, params.Email, params.Phone, params.Street,
		params.City, params.State, params.ZipCode, params.ConsentGiven, params.Source))
	if err != nil {
		return Lead{}, fmt.Errorf("create lead: %w", err)
	}
	return lead, nil
}

func (r *Repository) GetByID(ctx context.Context, userID, id uuid.UUID) (Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads l WHERE l.id = $1 AND l.user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

// GetMany returns the user's leads among ids. Missing or foreign ids are omitted.
func (r *Repository) GetMany(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]Lead, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads l WHERE l.user_id = $1 AND l.id = ANY($2)`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("get leads: %w", err)
	}
	defer rows.Close()

	leads := make([]Lead, 0, len(ids))
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches s literally anywhere in a column.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func buildLeadListWhere(params ListParams) (string, []interface{}) {
	where := []string{"l.user_id = $1"}
	args := []interface{}{params.UserID}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if s := strings.TrimSpace(params.Search); s != "" {
		p := next(containsPattern(s))
		where = append(where, fmt.Sprintf(
			"(l.first_name ILIKE %[1]s ESCAPE '\\' OR l.last_name ILIKE %[1]s ESCAPE '\\' OR "+
				"l.email ILIKE %[1]s ESCAPE '\\' OR l.phone ILIKE %[1]s ESCAPE '\\')", p))
	}
	if params.TagType != "" {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM lead_tags t WHERE t.lead_id = l.id AND t.tag_type = %s)", next(params.TagType)))
	}
	if params.Processed != nil {
		if *params.Processed {
			where = append(where, "l.processed_at IS NOT NULL")
		} else {
			where = append(where, "l.processed_at IS NULL")
		}
	}
	if params.MinCreditScore != nil {
		where = append(where, "l.credit_score >= "+next(*params.MinCreditScore))
	}
	if params.MaxCreditScore != nil {
		where = append(where, "l.credit_score <= "+next(*params.MaxCreditScore))
	}
	return strings.Join(where, " AND "), args
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]Lead, int, error) {
	whereClause, args := buildLeadListWhere(params)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM leads l WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	args = append(args, params.Limit, params.Offset)
	query := fmt.Sprintf(`SELECT %s FROM leads l WHERE %s ORDER BY l.created_at DESC, l.id DESC LIMIT $%d OFFSET $%d`,
		leadColumns, whereClause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	return leads, total, rows.Err()
}

func (r *Repository) Update(ctx context.Context, userID, id uuid.UUID, p UpdateLeadParams) (Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads AS l SET
			first_name = COALESCE($3, first_name),
			last_name = COALESCE($4, last_name),
			email = COALESCE($5, email),
			phone = COALESCE($6, phone),
			street = COALESCE($7, street),
			city = COALESCE($8, city),
			state = COALESCE($9, state),
			zip_code = COALESCE($10, zip_code),
			consent_given = COALESCE($11, consent_given),
			updated_at = now()
		WHERE l.id = $1 AND l.user_id = $2
		RETURNING `+leadColumns,
		id, userID, p.FirstName, p.LastName, p.Email, p.Phone, p.Street, p.City, p.State, p.ZipCode, p.ConsentGiven))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return Lead{}, fmt.Errorf("update lead: %w", err)
	}
	return lead, nil
}

// Delete removes a lead. Tags cascade; ledger rows keep the transaction with a null lead.
func (r *Repository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lead not found")
	}
	return nil
}
