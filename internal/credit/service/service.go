// Package service implements the credit pull gateway and the credit ledger operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"glasswallet_backend/internal/credit/provider"
	"glasswallet_backend/internal/credit/repository"
	"glasswallet_backend/internal/credit/transport"
	"glasswallet_backend/internal/events"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/storage"

	"github.com/google/uuid"
)

// PullWindow is the minimum gap between two hard pulls on the same lead.
const PullWindow = 24 * time.Hour

// Error codes specific to credit pulls.
const (
	CodeConsentRequired  = "CONSENT_REQUIRED"
	CodeRecentPullExists = "RECENT_PULL_EXISTS"
	CodeProviderRejected = "PROVIDER_REJECTED_INPUT"
)

// Pricing holds the per-operation cost in credit-cents.
type Pricing struct {
	PullCost       int64
	PreQualifyCost int64
}

// Service is the credit pull gateway.
type Service struct {
	repo     repository.Repository
	provider provider.Provider
	store    storage.ObjectStore
	bucket   string
	bus      events.Bus
	pricing  Pricing
	log      *logger.Logger
	now      func() time.Time
}

// New creates the credit service. store may be nil to disable report archiving.
func New(repo repository.Repository, prov provider.Provider, store storage.ObjectStore, bucket string, bus events.Bus, pricing Pricing, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		provider: prov,
		store:    store,
		bucket:   bucket,
		bus:      bus,
		pricing:  pricing,
		log:      log,
		now:      time.Now,
	}
}

// Pricing returns the configured costs.
func (s *Service) Pricing() Pricing {
	return s.pricing
}

func consentRequired() error {
	return apperr.BusinessLogic(CodeConsentRequired, "consumer consent is required before a credit pull").
		WithRetryable(false)
}

// recentPull rejects a pull when the lead was processed inside PullWindow.
func recentPull(processedAt *time.Time, now time.Time) error {
	if processedAt == nil {
		return nil
	}
	elapsed := now.Sub(*processedAt)
	if elapsed >= PullWindow {
		return nil
	}
	hours := int(math.Ceil((PullWindow - elapsed).Hours()))
	if hours < 1 {
		hours = 1
	}
	return apperr.BusinessLogic(CodeRecentPullExists, "credit was already pulled for this lead in the last 24 hours").
		WithRetryable(false).
		WithDetails(map[string]interface{}{
			"hoursRemaining": hours,
			"lastPulledAt":   processedAt.UTC(),
		})
}

func insufficient(required, balance int64) error {
	return apperr.InsufficientCredits("insufficient credits").
		WithDetails(map[string]int64{"required": required, "balance": balance})
}

func mapProviderError(err error) error {
	if errors.Is(err, provider.ErrInvalidInput) {
		return apperr.BusinessLogic(CodeProviderRejected, "credit provider rejected the lead data").
			WithRetryable(false)
	}
	return apperr.Unavailable("credit provider is temporarily unavailable", err)
}

func subjectFromLead(l repository.Lead) provider.Subject {
	deref := func(v *string) string {
		if v == nil {
			return ""
		}
		return *v
	}
	return provider.Subject{
		FirstName: l.FirstName,
		LastName:  l.LastName,
		Email:     deref(l.Email),
		Phone:     deref(l.Phone),
		Street:    deref(l.Street),
		City:      deref(l.City),
		State:     deref(l.State),
		ZipCode:   deref(l.ZipCode),
	}
}

// Pull performs a consented hard pull on a stored lead and debits the ledger.
func (s *Service) Pull(ctx context.Context, userID, leadID uuid.UUID, consentGiven bool) (transport.PullResponse, error) {
	resp, err := s.pull(ctx, userID, leadID, consentGiven)
	if err != nil {
		s.log.CreditPull(userID.String(), leadID.String(), 0, false, err.Error())
		return transport.PullResponse{}, err
	}
	s.log.CreditPull(userID.String(), leadID.String(), resp.CostInCents, true, "")
	return resp, nil
}

func (s *Service) pull(ctx context.Context, userID, leadID uuid.UUID, consentGiven bool) (transport.PullResponse, error) {
	lead, err := s.repo.GetLead(ctx, userID, leadID)
	if err != nil {
		return transport.PullResponse{}, err
	}
	if !consentGiven || !lead.ConsentGiven {
		return transport.PullResponse{}, consentRequired()
	}
	if err := recentPull(lead.ProcessedAt, s.now()); err != nil {
		return transport.PullResponse{}, err
	}

	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return transport.PullResponse{}, err
	}
	if acct.Balance < s.pricing.PullCost {
		return transport.PullResponse{}, insufficient(s.pricing.PullCost, acct.Balance)
	}

	report, err := s.provider.Pull(ctx, subjectFromLead(lead))
	if err != nil {
		return transport.PullResponse{}, mapProviderError(err)
	}

	score := report.CreditScore
	income := report.IncomeEstimate
	var externalID *string
	if report.ReportID != "" {
		externalID = &report.ReportID
	}
	now := s.now()
	result, err := s.repo.Debit(ctx, repository.DebitParams{
		UserID:         userID,
		LeadID:         &leadID,
		Cost:           s.pricing.PullCost,
		Description:    "credit pull",
		ExternalID:     externalID,
		CreditScore:    &score,
		IncomeEstimate: &income,
		MarkProcessed:  true,
		Guard: func(_ int64, processedAt *time.Time) error {
			return recentPull(processedAt, now)
		},
	})
	if err != nil {
		return transport.PullResponse{}, err
	}

	tx := result.Transaction
	s.archiveReport(ctx, userID, leadID, tx.ID, report.Raw)
	s.afterDebit(ctx, result)
	if s.bus != nil {
		s.bus.Publish(ctx, events.CreditPulled{
			BaseEvent:     events.NewBaseEvent(),
			UserID:        userID,
			LeadID:        leadID,
			TransactionID: tx.ID,
			CostInCents:   tx.CostInCents,
			BalanceAfter:  tx.BalanceAfter,
			CreditScore:   score,
		})
	}

	return transport.PullResponse{
		Success:        true,
		LeadID:         leadID,
		CreditScore:    &score,
		IncomeEstimate: &income,
		CostInCents:    tx.CostInCents,
		TransactionID:  tx.ID,
		BalanceAfter:   tx.BalanceAfter,
		ProcessedAt:    now.UTC(),
	}, nil
}

// PreQualify runs a soft check. It is billed but never touches processed_at.
func (s *Service) PreQualify(ctx context.Context, userID uuid.UUID, req transport.PreQualifyRequest) (transport.PreQualifyResponse, error) {
	if !req.ConsentGiven {
		return transport.PreQualifyResponse{}, consentRequired()
	}
	if req.LeadID != nil {
		lead, err := s.repo.GetLead(ctx, userID, *req.LeadID)
		if err != nil {
			return transport.PreQualifyResponse{}, err
		}
		if !lead.ConsentGiven {
			return transport.PreQualifyResponse{}, consentRequired()
		}
	}

	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return transport.PreQualifyResponse{}, err
	}
	if acct.Balance < s.pricing.PreQualifyCost {
		return transport.PreQualifyResponse{}, insufficient(s.pricing.PreQualifyCost, acct.Balance)
	}

	soft, err := s.provider.SoftCheck(ctx, provider.Subject{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.TrimSpace(req.Email),
		ZipCode:   strings.TrimSpace(req.ZipCode),
	})
	if err != nil {
		return transport.PreQualifyResponse{}, mapProviderError(err)
	}

	result, err := s.repo.Debit(ctx, repository.DebitParams{
		UserID:      userID,
		LeadID:      req.LeadID,
		Cost:        s.pricing.PreQualifyCost,
		Description: "pre-qualification",
	})
	if err != nil {
		return transport.PreQualifyResponse{}, err
	}
	s.afterDebit(ctx, result)

	return transport.PreQualifyResponse{
		Tier:          string(soft.Tier),
		ScoreBandLow:  soft.ScoreBandLow,
		ScoreBandHigh: soft.ScoreBandHigh,
		CostInCents:   result.Transaction.CostInCents,
		TransactionID: result.Transaction.ID,
		BalanceAfter:  result.Transaction.BalanceAfter,
	}, nil
}

// afterDebit queues CreditBalanceLow when a debit crosses the threshold.
func (s *Service) afterDebit(ctx context.Context, result repository.DebitResult) {
	if s.bus == nil {
		return
	}
	threshold := result.Account.LowBalanceThreshold
	if threshold <= 0 {
		return
	}
	if result.Transaction.BalanceBefore >= threshold && result.Transaction.BalanceAfter < threshold {
		// The debit is committed; a failed enqueue loses only the reminder email.
		err := s.bus.PublishSync(ctx, events.CreditBalanceLow{
			BaseEvent: events.NewBaseEvent(),
			UserID:    result.Transaction.UserID,
			Email:     result.Account.Email,
			Balance:   result.Transaction.BalanceAfter,
			Threshold: threshold,
		})
		if err != nil {
			s.log.Error("low balance email not queued", "userId", result.Transaction.UserID, "error", err)
		}
	}
}

func reportKey(userID, leadID, txID uuid.UUID) string {
	return fmt.Sprintf("credit-reports/%s/%s/%s.json", userID, leadID, txID)
}

func (s *Service) archiveReport(ctx context.Context, userID, leadID, txID uuid.UUID, raw []byte) {
	if s.store == nil || len(raw) == 0 {
		return
	}
	if err := s.store.PutJSON(ctx, s.bucket, reportKey(userID, leadID, txID), raw); err != nil {
		s.log.Warn("credit report archive failed", "transactionId", txID, "error", err)
	}
}

// ReportURL returns a short-lived download link to an archived report.
func (s *Service) ReportURL(ctx context.Context, userID, txID uuid.UUID) (transport.ReportURLResponse, error) {
	if s.store == nil {
		return transport.ReportURLResponse{}, apperr.NotFound("report archive is not configured")
	}
	tx, err := s.repo.GetTransaction(ctx, userID, txID)
	if err != nil {
		return transport.ReportURLResponse{}, err
	}
	if tx.Type != repository.TypePull || tx.LeadID == nil {
		return transport.ReportURLResponse{}, apperr.NotFound("no report for this transaction")
	}
	url, err := s.store.PresignGet(ctx, s.bucket, reportKey(userID, *tx.LeadID, tx.ID))
	if err != nil {
		return transport.ReportURLResponse{}, fmt.Errorf("presign report: %w", err)
	}
	return transport.ReportURLResponse{URL: url, ExpiresAt: s.now().Add(storage.PresignedURLTTL).UTC()}, nil
}

func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (transport.BalanceResponse, error) {
	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return transport.BalanceResponse{}, err
	}
	var remaining int64
	if s.pricing.PullCost > 0 {
		remaining = acct.Balance / s.pricing.PullCost
	}
	return transport.BalanceResponse{
		Balance:             acct.Balance,
		LowBalanceThreshold: acct.LowBalanceThreshold,
		PullCost:            s.pricing.PullCost,
		PreQualifyCost:      s.pricing.PreQualifyCost,
		PullsRemaining:      remaining,
	}, nil
}

func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, req transport.ListTransactionsRequest) ([]transport.TransactionResponse, int, error) {
	page, limit := req.Page, req.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	items, total, err := s.repo.ListTransactions(ctx, repository.ListParams{
		UserID: userID,
		Type:   req.Type,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, 0, err
	}
	out := make([]transport.TransactionResponse, 0, len(items))
	for _, t := range items {
		out = append(out, toTransactionResponse(t))
	}
	return out, total, nil
}

// Grant records a credit purchase.
func (s *Service) Grant(ctx context.Context, req transport.GrantRequest) (transport.TransactionResponse, error) {
	var externalID *string
	if v := strings.TrimSpace(req.ExternalTransactionID); v != "" {
		externalID = &v
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "credit purchase"
	}
	tx, err := s.repo.Grant(ctx, req.UserID, req.AmountInCents, externalID, description)
	if err != nil {
		return transport.TransactionResponse{}, err
	}
	s.log.Info("credits granted", "userId", req.UserID, "amountInCents", req.AmountInCents, "transactionId", tx.ID)
	return toTransactionResponse(tx), nil
}

func (s *Service) Refund(ctx context.Context, txID uuid.UUID, req transport.RefundRequest) (transport.TransactionResponse, error) {
	tx, err := s.repo.Refund(ctx, txID, req.Reason)
	if err != nil {
		return transport.TransactionResponse{}, err
	}
	s.log.Info("credit pull refunded", "userId", tx.UserID, "refundedTransactionId", txID, "amountInCents", tx.CostInCents)
	return toTransactionResponse(tx), nil
}

func toTransactionResponse(t repository.Transaction) transport.TransactionResponse {
	return transport.TransactionResponse{
		ID:                    t.ID,
		LeadID:                t.LeadID,
		Type:                  t.Type,
		CostInCents:           t.CostInCents,
		BalanceBefore:         t.BalanceBefore,
		BalanceAfter:          t.BalanceAfter,
		ExternalTransactionID: t.ExternalTransactionID,
		RefundedTransactionID: t.RefundedTransactionID,
		Description:           t.Description,
		CreatedAt:             t.CreatedAt,
	}
}
