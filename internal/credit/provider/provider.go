// Package provider contains credit-bureau clients behind a single interface.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrProviderUnavailable is retryable: the bureau could not be reached or failed.
	ErrProviderUnavailable = errors.New("credit provider unavailable")
	// ErrInvalidInput is not retryable: the bureau rejected the subject.
	ErrInvalidInput = errors.New("credit provider rejected input")
)

// Subject identifies the consumer being pulled.
type Subject struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Street    string `json:"street,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	ZipCode   string `json:"zipCode,omitempty"`
}

func (s Subject) validate() error {
	if strings.TrimSpace(s.FirstName) == "" || strings.TrimSpace(s.LastName) == "" {
		return ErrInvalidInput
	}
	return nil
}

// Report is a hard-pull result.
type Report struct {
	ReportID       string          `json:"reportId"`
	Bureau         string          `json:"bureau"`
	CreditScore    int             `json:"creditScore"`
	IncomeEstimate int64           `json:"incomeEstimate"`
	Raw            json.RawMessage `json:"-"`
}

// Tier buckets a score for soft checks.
type Tier string

const (
	TierPrime     Tier = "prime"
	TierNearPrime Tier = "near_prime"
	TierSubprime  Tier = "subprime"
)

// TierFor maps a score to its tier.
func TierFor(score int) Tier {
	switch {
	case score >= 720:
		return TierPrime
	case score >= 620:
		return TierNearPrime
	default:
		return TierSubprime
	}
}

// SoftReport is a pre-qualification result. It never exposes the exact score.
type SoftReport struct {
	Tier          Tier `json:"tier"`
	ScoreBandLow  int  `json:"scoreBandLow"`
	ScoreBandHigh int  `json:"scoreBandHigh"`
}

// SoftReportFor builds a 20-point score band around score.
func SoftReportFor(score int) SoftReport {
	low := (score / 20) * 20
	if low < 300 {
		low = 300
	}
	high := low + 19
	if high > 850 {
		high = 850
	}
	return SoftReport{Tier: TierFor(score), ScoreBandLow: low, ScoreBandHigh: high}
}

// Provider pulls consumer credit data.
type Provider interface {
	Pull(ctx context.Context, subject Subject) (Report, error)
	SoftCheck(ctx context.Context, subject Subject) (SoftReport, error)
}
