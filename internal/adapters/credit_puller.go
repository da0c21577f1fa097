package adapters

import (
	"context"

	creditservice "glasswallet_backend/internal/credit/service"
	"glasswallet_backend/internal/leads/ports"

	"github.com/google/uuid"
)

// CreditPuller adapts the credit gateway for the leads pipeline.
type CreditPuller struct {
	svc *creditservice.Service
}

func NewCreditPuller(svc *creditservice.Service) *CreditPuller {
	return &CreditPuller{svc: svc}
}

func (a *CreditPuller) Pull(ctx context.Context, userID, leadID uuid.UUID, consentGiven bool) (ports.CreditOutcome, error) {
	resp, err := a.svc.Pull(ctx, userID, leadID, consentGiven)
	if err != nil {
		return ports.CreditOutcome{}, err
	}
	return ports.CreditOutcome{
		CreditScore:    resp.CreditScore,
		IncomeEstimate: resp.IncomeEstimate,
		CostInCents:    resp.CostInCents,
		TransactionID:  resp.TransactionID,
		BalanceAfter:   resp.BalanceAfter,
	}, nil
}

var _ ports.CreditPuller = (*CreditPuller)(nil)
