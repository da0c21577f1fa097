package adapters

import (
	"context"

	"glasswallet_backend/internal/intelligence/scoring"
	"glasswallet_backend/internal/leads/ports"
)

// SignalComputer is the intelligence call the leads pipeline needs.
type SignalComputer interface {
	Signals(in scoring.Input) scoring.Signals
}

// SignalProvider feeds intelligence signals into rule evaluation.
type SignalProvider struct {
	svc SignalComputer
}

func NewSignalProvider(svc SignalComputer) *SignalProvider {
	return &SignalProvider{svc: svc}
}

func (a *SignalProvider) Signals(_ context.Context, in ports.SignalInput) (ports.Signals, error) {
	s := a.svc.Signals(scoring.Input{
		CreditScore:    in.CreditScore,
		IncomeEstimate: in.IncomeEstimate,
		HasEmail:       in.HasEmail,
		HasPhone:       in.HasPhone,
		State:          in.State,
		Source:         in.Source,
		CreatedAt:      in.CreatedAt,
		ProcessedAt:    in.ProcessedAt,
	})
	return ports.Signals{
		AIScore:               s.AIScore,
		RiskScore:             s.RiskScore,
		AnomalyCount:          len(s.Anomalies),
		ConversionProbability: s.ConversionProbability,
	}, nil
}

var _ ports.SignalProvider = (*SignalProvider)(nil)
