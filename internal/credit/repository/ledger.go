package repository

import (
	"strings"
	"time"

	"glasswallet_backend/platform/apperr"
)

// Error codes raised by the ledger.
const (
	CodeNotRefundable   = "NOT_REFUNDABLE"
	CodeAlreadyRefunded = "ALREADY_REFUNDED"
)

// pullEntry builds the ledger row for a debit against the locked account.
// The guard runs first so callers see their own domain error before the
// generic balance check.
func pullEntry(acct Account, p DebitParams, processedAt *time.Time) (Transaction, error) {
	if p.Cost < 0 {
		return Transaction{}, apperr.Validation("debit cost must not be negative")
	}
	if p.Guard != nil {
		if err := p.Guard(acct.Balance, processedAt); err != nil {
			return Transaction{}, err
		}
	}
	if acct.Balance < p.Cost {
		return Transaction{}, apperr.InsufficientCredits("insufficient credits").
			WithDetails(map[string]int64{"required": p.Cost, "balance": acct.Balance})
	}
	return Transaction{
		UserID:                p.UserID,
		LeadID:                p.LeadID,
		Type:                  TypePull,
		CostInCents:           p.Cost,
		BalanceBefore:         acct.Balance,
		BalanceAfter:          acct.Balance - p.Cost,
		ExternalTransactionID: p.ExternalID,
		Description:           p.Description,
	}, nil
}

func purchaseEntry(acct Account, amount int64, externalID *string, description string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, apperr.Validation("grant amount must be positive")
	}
	return Transaction{
		UserID:                acct.UserID,
		Type:                  TypePurchase,
		CostInCents:           amount,
		BalanceBefore:         acct.Balance,
		BalanceAfter:          acct.Balance + amount,
		ExternalTransactionID: externalID,
		Description:           description,
	}, nil
}

// checkRefundable rejects anything but a pull that has no refund yet.
func checkRefundable(original Transaction, alreadyRefunded bool) error {
	if original.Type != TypePull {
		return apperr.BusinessLogic(CodeNotRefundable, "only pull transactions can be refunded")
	}
	if alreadyRefunded {
		return errAlreadyRefunded()
	}
	return nil
}

func errAlreadyRefunded() error {
	return apperr.Conflict("transaction already refunded").WithCode(CodeAlreadyRefunded)
}

// refundEntry credits the original cost back on top of the current balance,
// which may have moved since the pull.
func refundEntry(original Transaction, acct Account, reason string) Transaction {
	description := "refund"
	if reason = strings.TrimSpace(reason); reason != "" {
		description = "refund: " + reason
	}
	refunded := original.ID
	return Transaction{
		UserID:                original.UserID,
		LeadID:                original.LeadID,
		Type:                  TypeRefund,
		CostInCents:           original.CostInCents,
		BalanceBefore:         acct.Balance,
		BalanceAfter:          acct.Balance + original.CostInCents,
		RefundedTransactionID: &refunded,
		Description:           description,
	}
}
