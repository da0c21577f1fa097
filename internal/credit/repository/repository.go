// Package repository implements the credit ledger on PostgreSQL.
package repository

import (
	"context"
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

// Transaction types.
const (
	TypePull     = "pull"
	TypePurchase = "purchase"
	TypeRefund   = "refund"
)

// Transaction is an immutable ledger row.
type Transaction struct {
	ID                    uuid.UUID
	UserID                uuid.UUID
	LeadID                *uuid.UUID
	Type                  string
	CostInCents           int64
	BalanceBefore         int64
	BalanceAfter          int64
	ExternalTransactionID *string
	RefundedTransactionID *uuid.UUID
	Description           string
	CreatedAt             time.Time
}

// Account is the credit view of a user.
type Account struct {
	UserID              uuid.UUID
	Email               string
	Balance             int64
	LowBalanceThreshold int64
}

// Lead is the subset of a lead needed to pull credit for it.
type Lead struct {
	ID           uuid.UUID
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
	ProcessedAt  *time.Time
}

// Guard re-validates a debit against the locked balance and lead state.
// processedAt is nil when the debit is not tied to a lead.
type Guard func(balance int64, processedAt *time.Time) error

// DebitParams describes a pull debit.
type DebitParams struct {
	UserID         uuid.UUID
	LeadID         *uuid.UUID
	Cost           int64
	Description    string
	ExternalID     *string
	CreditScore    *int
	IncomeEstimate *int64
	// MarkProcessed writes score, income and processed_at on the lead.
	MarkProcessed bool
	Guard         Guard
}

// DebitResult carries the written row and the account state before the debit.
type DebitResult struct {
	Transaction Transaction
	Account     Account
}

// ListParams filters the transaction history.
type ListParams struct {
	UserID uuid.UUID
	Type   string
	Offset int
	Limit  int
}

// Repository is the credit ledger contract.
type Repository interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (Account, error)
	GetLead(ctx context.Context, userID, leadID uuid.UUID) (Lead, error)
	Debit(ctx context.Context, params DebitParams) (DebitResult, error)
	Grant(ctx context.Context, userID uuid.UUID, amount int64, externalID *string, description string) (Transaction, error)
	Refund(ctx context.Context, transactionID uuid.UUID, reason string) (Transaction, error)
	GetTransaction(ctx context.Context, userID, id uuid.UUID) (Transaction, error)
	ListTransactions(ctx context.Context, params ListParams) ([]Transaction, int, error)
}

// Repo implements Repository on pgx.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a ledger repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const txColumns = `id, user_id, lead_id, transaction_type, cost_in_cents, credit_balance_before,
	credit_balance_after, external_transaction_id, refunded_transaction_id, description, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.LeadID, &t.Type, &t.CostInCents, &t.BalanceBefore,
		&t.BalanceAfter, &t.ExternalTransactionID, &t.RefundedTransactionID, &t.Description, &t.CreatedAt)
	return t, err
}

func (r *Repo) GetAccount(ctx context.Context, userID uuid.UUID) (Account, error) {
	acct := Account{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT email, credit_balance, low_balance_threshold FROM users WHERE id = $1`, userID,
	).Scan(&acct.Email, &acct.Balance, &acct.LowBalanceThreshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, apperr.NotFound("account not found")
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

func (r *Repo) GetLead(ctx context.Context, userID, leadID uuid.UUID) (Lead, error) {
	var l Lead
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, first_name, last_name, email, phone, street, city, state, zip_code, consent_given, processed_at
		FROM leads WHERE id = $1 AND user_id = $2`, leadID, userID,
	).Scan(&l.ID, &l.UserID, &l.FirstName, &l.LastName, &l.Email, &l.Phone, &l.Street, &l.City,
		&l.State, &l.ZipCode, &l.ConsentGiven, &l.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (Account, error) {
	acct := Account{UserID: userID}
	err := tx.QueryRow(ctx,
		`SELECT email, credit_balance, low_balance_threshold FROM users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&acct.Email, &acct.Balance, &acct.LowBalanceThreshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, apperr.NotFound("account not found")
	}
	if err != nil {
		return Account{}, fmt.Errorf("lock account: %w", err)
	}
	return acct, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t Transaction) (Transaction, error) {
	return scanTransaction(tx.QueryRow(ctx, `
		INSERT INTO credit_transactions (user_id, lead_id, transaction_type, cost_in_cents, credit_balance_before,
			credit_balance_after, external_transaction_id, refunded_transaction_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+txColumns,
		t.UserID, t.LeadID, t.Type, t.CostInCents, t.BalanceBefore, t.BalanceAfter,
		t.ExternalTransactionID, t.RefundedTransactionID, t.Description))
}

func setBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, balance int64) error {
	if _, err := tx.Exec(ctx,
		`UPDATE users SET credit_balance = $2, updated_at = now() WHERE id = $1`, userID, balance); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

// Debit writes a pull row and lowers the balance in one transaction.
// The user row and the lead row are locked before Guard runs.
func (r *Repo) Debit(ctx context.Context, p DebitParams) (DebitResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return DebitResult{}, fmt.Errorf("begin debit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	acct, err := lockAccount(ctx, tx, p.UserID)
	if err != nil {
		return DebitResult{}, err
	}

	var processedAt *time.Time
	if p.LeadID != nil {
		err := tx.QueryRow(ctx,
			`SELECT processed_at FROM leads WHERE id = $1 AND user_id = $2 FOR UPDATE`, *p.LeadID, p.UserID,
		).Scan(&processedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return DebitResult{}, apperr.NotFound("lead not found")
		}
		if err != nil {
			return DebitResult{}, fmt.Errorf("lock lead: %w", err)
		}
	}

	entry, err := pullEntry(acct, p, processedAt)
	if err != nil {
		return DebitResult{}, err
	}
	row, err := insertTransaction(ctx, tx, entry)
	if err != nil {
		return DebitResult{}, fmt.Errorf("insert pull: %w", err)
	}
	if err := setBalance(ctx, tx, p.UserID, row.BalanceAfter); err != nil {
		return DebitResult{}, err
	}

	if p.MarkProcessed && p.LeadID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE leads SET credit_score = $3, income_estimate = $4, processed_at = now(), updated_at = now()
			WHERE id = $1 AND user_id = $2`,
			*p.LeadID, p.UserID, p.CreditScore, p.IncomeEstimate); err != nil {
			return DebitResult{}, fmt.Errorf("update lead credit: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return DebitResult{}, fmt.Errorf("commit debit: %w", err)
	}
	return DebitResult{Transaction: row, Account: acct}, nil
}

func (r *Repo) Grant(ctx context.Context, userID uuid.UUID, amount int64, externalID *string, description string) (Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("begin grant: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	acct, err := lockAccount(ctx, tx, userID)
	if err != nil {
		return Transaction{}, err
	}
	entry, err := purchaseEntry(acct, amount, externalID, description)
	if err != nil {
		return Transaction{}, err
	}
	row, err := insertTransaction(ctx, tx, entry)
	if err != nil {
		return Transaction{}, fmt.Errorf("insert purchase: %w", err)
	}
	if err := setBalance(ctx, tx, userID, row.BalanceAfter); err != nil {
		return Transaction{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("commit grant: %w", err)
	}
	return row, nil
}

// Refund credits back a pull. A pull can be refunded once.
func (r *Repo) Refund(ctx context.Context, transactionID uuid.UUID, reason string) (Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("begin refund: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	original, err := scanTransaction(tx.QueryRow(ctx,
		`SELECT `+txColumns+` FROM credit_transactions WHERE id = $1 FOR UPDATE`, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, apperr.NotFound("transaction not found")
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("load transaction: %w", err)
	}
	var already bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM credit_transactions WHERE refunded_transaction_id = $1)`, transactionID,
	).Scan(&already); err != nil {
		return Transaction{}, fmt.Errorf("check refund: %w", err)
	}
	if err := checkRefundable(original, already); err != nil {
		return Transaction{}, err
	}

	acct, err := lockAccount(ctx, tx, original.UserID)
	if err != nil {
		return Transaction{}, err
	}

	row, err := insertTransaction(ctx, tx, refundEntry(original, acct, reason))
	if db.IsUniqueViolation(err) {
		return Transaction{}, errAlreadyRefunded()
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("insert refund: %w", err)
	}
	if err := setBalance(ctx, tx, original.UserID, row.BalanceAfter); err != nil {
		return Transaction{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("commit refund: %w", err)
	}
	return row, nil
}

func (r *Repo) GetTransaction(ctx context.Context, userID, id uuid.UUID) (Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM credit_transactions WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, apperr.NotFound("transaction not found")
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *Repo) ListTransactions(ctx context.Context, p ListParams) ([]Transaction, int, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{p.UserID}
	if p.Type != "" {
		args = append(args, p.Type)
		where = append(where, fmt.Sprintf("transaction_type = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM credit_transactions WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	args = append(args, p.Limit, p.Offset)
	query := fmt.Sprintf(`SELECT %s FROM credit_transactions WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		txColumns, whereClause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	items := make([]Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

var _ Repository = (*Repo)(nil)
