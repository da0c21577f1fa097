package transport

import (
	"time"

	"github.com/google/uuid"
)

// PullRequest asks for a hard pull on a stored lead.
type PullRequest struct {
	LeadID       uuid.UUID `json:"leadId" validate:"required"`
	ConsentGiven bool      `json:"consentGiven"`
}

type PullResponse struct {
	Success        bool      `json:"success"`
	LeadID         uuid.UUID `json:"leadId"`
	CreditScore    *int      `json:"creditScore,omitempty"`
	IncomeEstimate *int64    `json:"incomeEstimate,omitempty"`
	CostInCents    int64     `json:"costInCents"`
	TransactionID  uuid.UUID `json:"transactionId"`
	BalanceAfter   int64     `json:"balanceAfter"`
	ProcessedAt    time.Time `json:"processedAt"`
}

// PreQualifyRequest is a soft check on an identity that need not be stored.
type PreQualifyRequest struct {
	LeadID       *uuid.UUID `json:"leadId"`
	FirstName    string     `json:"firstName" validate:"required,max=100"`
	LastName     string     `json:"lastName" validate:"required,max=100"`
	Email        string     `json:"email" validate:"omitempty,email"`
	ZipCode      string     `json:"zipCode" validate:"omitempty,max=10"`
	ConsentGiven bool       `json:"consentGiven"`
}

type PreQualifyResponse struct {
	Tier          string    `json:"tier"`
	ScoreBandLow  int       `json:"scoreBandLow"`
	ScoreBandHigh int       `json:"scoreBandHigh"`
	CostInCents   int64     `json:"costInCents"`
	TransactionID uuid.UUID `json:"transactionId"`
	BalanceAfter  int64     `json:"balanceAfter"`
}

type BalanceResponse struct {
	Balance             int64 `json:"balance"`
	LowBalanceThreshold int64 `json:"lowBalanceThreshold"`
	PullCost            int64 `json:"pullCost"`
	PreQualifyCost      int64 `json:"preQualifyCost"`
	PullsRemaining      int64 `json:"pullsRemaining"`
}

type ListTransactionsRequest struct {
	Page  int    `form:"page" validate:"omitempty,min=1"`
	Limit int    `form:"limit" validate:"omitempty,min=1,max=100"`
	Type  string `form:"type" validate:"omitempty,oneof=pull purchase refund"`
}

type TransactionResponse struct {
	ID                    uuid.UUID  `json:"id"`
	LeadID                *uuid.UUID `json:"leadId,omitempty"`
	Type                  string     `json:"transactionType"`
	CostInCents           int64      `json:"costInCents"`
	BalanceBefore         int64      `json:"creditBalanceBefore"`
	BalanceAfter          int64      `json:"creditBalanceAfter"`
	ExternalTransactionID *string    `json:"externalTransactionId,omitempty"`
	RefundedTransactionID *uuid.UUID `json:"refundedTransactionId,omitempty"`
	Description           string     `json:"description"`
	CreatedAt             time.Time  `json:"createdAt"`
}

// GrantRequest records a credit purchase for a user.
type GrantRequest struct {
	UserID                uuid.UUID `json:"userId" validate:"required"`
	AmountInCents         int64     `json:"amountInCents" validate:"required,min=1,max=100000000"`
	ExternalTransactionID string    `json:"externalTransactionId" validate:"max=200"`
	Description           string    `json:"description" validate:"max=500"`
}

type RefundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type ReportURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
