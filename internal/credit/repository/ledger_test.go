package repository

import (
	"errors"
	"testing"
	"time"

	"glasswallet_backend/platform/apperr"

	"github.com/google/uuid"
)

func account(balance int64) Account {
	return Account{UserID: uuid.New(), Email: "owner@example.com", Balance: balance}
}

func TestPullEntrySubtractsCost(t *testing.T) {
	acct := account(500)
	leadID := uuid.New()
	entry, err := pullEntry(acct, DebitParams{UserID: acct.UserID, LeadID: &leadID, Cost: 150, Description: "credit pull"}, nil)
	if err != nil {
		t.Fatalf("pull entry: %v", err)
	}
	if entry.Type != TypePull || entry.BalanceBefore != 500 || entry.BalanceAfter != 350 || entry.CostInCents != 150 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.LeadID == nil || *entry.LeadID != leadID {
		t.Fatalf("expected lead to be recorded, got %v", entry.LeadID)
	}
}

func TestPullEntryAllowsExactBalance(t *testing.T) {
	acct := account(100)
	entry, err := pullEntry(acct, DebitParams{UserID: acct.UserID, Cost: 100}, nil)
	if err != nil {
		t.Fatalf("pull entry: %v", err)
	}
	if entry.BalanceAfter != 0 {
		t.Fatalf("expected zero balance, got %d", entry.BalanceAfter)
	}
}

func TestPullEntryNeverGoesNegative(t *testing.T) {
	acct := account(99)
	_, err := pullEntry(acct, DebitParams{UserID: acct.UserID, Cost: 100}, nil)
	if !apperr.HasCode(err, apperr.CodeInsufficientCredits) {
		t.Fatalf("expected %s, got %v", apperr.CodeInsufficientCredits, err)
	}

	_, err = pullEntry(acct, DebitParams{UserID: acct.UserID, Cost: -5}, nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for negative cost, got %v", err)
	}
}

func TestPullEntryRunsGuardAgainstLockedState(t *testing.T) {
	acct := account(1000)
	processed := time.Now().Add(-time.Hour)
	var gotBalance int64
	var gotProcessed *time.Time
	guardErr := apperr.BusinessLogic("RECENT_PULL_EXISTS", "pulled within the last 30 days")

	_, err := pullEntry(acct, DebitParams{
		UserID: acct.UserID,
		Cost:   100,
		Guard: func(balance int64, processedAt *time.Time) error {
			gotBalance, gotProcessed = balance, processedAt
			return guardErr
		},
	}, &processed)
	if !errors.Is(err, guardErr) {
		t.Fatalf("expected guard error, got %v", err)
	}
	if gotBalance != 1000 || gotProcessed == nil || !gotProcessed.Equal(processed) {
		t.Fatalf("guard saw balance=%d processedAt=%v", gotBalance, gotProcessed)
	}
}

func TestPullEntryGuardErrorWinsOverBalance(t *testing.T) {
	acct := account(10)
	guardErr := errors.New("lead already processed")
	_, err := pullEntry(acct, DebitParams{
		UserID: acct.UserID,
		Cost:   100,
		Guard:  func(int64, *time.Time) error { return guardErr },
	}, nil)
	if !errors.Is(err, guardErr) {
		t.Fatalf("expected guard error before the balance check, got %v", err)
	}
}

func TestPurchaseEntryAddsAmount(t *testing.T) {
	acct := account(250)
	ext := "stripe_pi_123"
	entry, err := purchaseEntry(acct, 1000, &ext, "top up")
	if err != nil {
		t.Fatalf("purchase entry: %v", err)
	}
	if entry.Type != TypePurchase || entry.BalanceBefore != 250 || entry.BalanceAfter != 1250 || entry.UserID != acct.UserID {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.ExternalTransactionID == nil || *entry.ExternalTransactionID != ext {
		t.Fatalf("expected external id to be kept, got %v", entry.ExternalTransactionID)
	}

	for _, amount := range []int64{0, -100} {
		if _, err := purchaseEntry(acct, amount, nil, ""); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("amount %d: expected validation error, got %v", amount, err)
		}
	}
}

func TestCheckRefundable(t *testing.T) {
	pull := Transaction{ID: uuid.New(), Type: TypePull, CostInCents: 100}

	if err := checkRefundable(pull, false); err != nil {
		t.Fatalf("expected fresh pull to be refundable, got %v", err)
	}
	if err := checkRefundable(pull, true); !apperr.HasCode(err, CodeAlreadyRefunded) {
		t.Fatalf("expected %s, got %v", CodeAlreadyRefunded, err)
	}
	for _, typ := range []string{TypePurchase, TypeRefund} {
		if err := checkRefundable(Transaction{ID: uuid.New(), Type: typ}, false); !apperr.HasCode(err, CodeNotRefundable) {
			t.Fatalf("%s: expected %s, got %v", typ, CodeNotRefundable, err)
		}
	}
}

func TestRefundEntryUsesCurrentBalance(t *testing.T) {
	leadID := uuid.New()
	original := Transaction{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		LeadID:        &leadID,
		Type:          TypePull,
		CostInCents:   150,
		BalanceBefore: 500,
		BalanceAfter:  350,
	}
	// Balance moved after the pull.
	acct := Account{UserID: original.UserID, Balance: 1200}

	entry := refundEntry(original, acct, "  bureau returned no file ")
	if entry.Type != TypeRefund || entry.BalanceBefore != 1200 || entry.BalanceAfter != 1350 || entry.CostInCents != 150 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.RefundedTransactionID == nil || *entry.RefundedTransactionID != original.ID {
		t.Fatalf("expected refund to point at the pull, got %v", entry.RefundedTransactionID)
	}
	if entry.Description != "refund: bureau returned no file" {
		t.Fatalf("unexpected description %q", entry.Description)
	}
	if blank := refundEntry(original, acct, " "); blank.Description != "refund" {
		t.Fatalf("unexpected blank-reason description %q", blank.Description)
	}
}
