// Package scoring derives deterministic lead-quality signals from stored lead data.
// The same input always yields the same signals so rule evaluation is reproducible.
package scoring

import (
	"math"
	"strings"
	"time"
)

// Input is the lead data signals are computed from.
type Input struct {
	CreditScore    *int
	IncomeEstimate *int64 // cents per year
	HasEmail       bool
	HasPhone       bool
	State          string
	Source         string
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}

// Anomaly severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Anomaly is a data-quality or consistency flag.
type Anomaly struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Signals are the computed facts.
type Signals struct {
	AIScore               int       `json:"aiScore"`
	RiskScore             int       `json:"riskScore"`
	ConversionProbability float64   `json:"conversionProbability"`
	Anomalies             []Anomaly `json:"anomalies"`
}

const (
	minScore = 300
	maxScore = 850
	// one dollar a year in cents
	dollar = 100
)

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Compute scores a lead at time now.
func Compute(in Input, now time.Time) Signals {
	score := 0
	risk := 50

	if in.CreditScore != nil {
		cs := clamp(*in.CreditScore, minScore, maxScore)
		// credit score contributes up to 60 points, linearly over the FICO range
		score += (cs - minScore) * 60 / (maxScore - minScore)
		risk = 100 - (cs-minScore)*100/(maxScore-minScore)
	}
	if in.IncomeEstimate != nil {
		income := *in.IncomeEstimate / dollar
		switch {
		case income >= 100_000:
			score += 20
			risk -= 10
		case income >= 50_000:
			score += 12
			risk -= 5
		case income >= 25_000:
			score += 5
		default:
			risk += 10
		}
	}
	if in.HasEmail {
		score += 8
	}
	if in.HasPhone {
		score += 7
	}
	if in.Source == "widget" || in.Source == "webhook" {
		// inbound leads convert better than uploaded lists
		score += 5
	}

	age := now.Sub(in.CreatedAt)
	switch {
	case age > 90*24*time.Hour:
		score -= 10
	case age > 30*24*time.Hour:
		score -= 5
	}

	anomalies := detect(in, now)
	for _, a := range anomalies {
		switch a.Severity {
		case SeverityHigh:
			risk += 20
		case SeverityMedium:
			risk += 10
		default:
			risk += 3
		}
	}

	score = clamp(score, 0, 100)
	risk = clamp(risk, 0, 100)
	// logistic curve centered on a score of 55
	p := 1 / (1 + math.Exp(-float64(score-55)/10))
	p = p * float64(100-risk/2) / 100

	return Signals{
		AIScore:               score,
		RiskScore:             risk,
		ConversionProbability: math.Round(p*1000) / 1000,
		Anomalies:             anomalies,
	}
}

func detect(in Input, now time.Time) []Anomaly {
	out := make([]Anomaly, 0)
	if !in.HasEmail && !in.HasPhone {
		out = append(out, Anomaly{Code: "NO_CONTACT", Severity: SeverityHigh, Message: "lead has neither email nor phone"})
	}
	if in.CreditScore != nil && (*in.CreditScore < minScore || *in.CreditScore > maxScore) {
		out = append(out, Anomaly{Code: "SCORE_OUT_OF_RANGE", Severity: SeverityHigh, Message: "credit score outside 300-850"})
	}
	if in.CreditScore != nil && in.IncomeEstimate != nil {
		income := *in.IncomeEstimate / dollar
		if *in.CreditScore >= 780 && income < 20_000 {
			out = append(out, Anomaly{Code: "SCORE_INCOME_MISMATCH", Severity: SeverityMedium, Message: "very high score with very low income"})
		}
		if *in.CreditScore < 500 && income > 250_000 {
			out = append(out, Anomaly{Code: "SCORE_INCOME_MISMATCH", Severity: SeverityMedium, Message: "very low score with very high income"})
		}
	}
	if in.ProcessedAt != nil && in.CreditScore == nil {
		out = append(out, Anomaly{Code: "MISSING_PULL_RESULT", Severity: SeverityMedium, Message: "lead processed without a stored score"})
	}
	if strings.TrimSpace(in.State) == "" {
		out = append(out, Anomaly{Code: "NO_STATE", Severity: SeverityLow, Message: "state missing, geo targeting unavailable"})
	}
	if in.CreatedAt.After(now.Add(time.Minute)) {
		out = append(out, Anomaly{Code: "FUTURE_TIMESTAMP", Severity: SeverityLow, Message: "created in the future"})
	}
	return out
}
