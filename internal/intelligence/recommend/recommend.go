// Package recommend turns lead signals into next-step recommendations.
package recommend

import (
	"context"
	"fmt"
	"sort"

	"glasswallet_backend/internal/intelligence/scoring"
)

// Actions a recommendation can suggest.
const (
	ActionPullCredit   = "pull_credit"
	ActionSyncToPixels = "sync_to_pixels"
	ActionNurture      = "nurture"
	ActionReviewData   = "review_data"
	ActionBlacklist    = "consider_blacklist"
	ActionContactNow   = "contact_now"
)

// Recommendation is one suggested next step.
type Recommendation struct {
	Action   string `json:"action"`
	Reason   string `json:"reason"`
	Priority int    `json:"priority"` // 1 is most urgent
}

// Context is what a recommender knows about the lead.
type Context struct {
	CreditScore *int
	Tags        []string
	Signals     scoring.Signals
}

func (c Context) hasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Recommender produces recommendations for a lead.
type Recommender interface {
	Name() string
	Recommend(ctx context.Context, in Context) ([]Recommendation, error)
}

// Heuristic is the deterministic recommender.
type Heuristic struct{}

func (Heuristic) Name() string { return "heuristic" }

func (Heuristic) Recommend(_ context.Context, in Context) ([]Recommendation, error) {
	out := make([]Recommendation, 0, 4)
	s := in.Signals

	for _, a := range s.Anomalies {
		if a.Severity == scoring.SeverityHigh {
			out = append(out, Recommendation{Action: ActionReviewData, Reason: a.Message, Priority: 1})
			break
		}
	}
	if in.CreditScore == nil {
		out = append(out, Recommendation{Action: ActionPullCredit, Reason: "no credit data yet, a pull unlocks qualification", Priority: 2})
	}
	qualified := in.hasTag("qualified") || in.hasTag("whitelist")
	switch {
	case qualified && s.ConversionProbability >= 0.5:
		out = append(out, Recommendation{Action: ActionContactNow, Reason: fmt.Sprintf("qualified with %.0f%% conversion probability", s.ConversionProbability*100), Priority: 1})
		out = append(out, Recommendation{Action: ActionSyncToPixels, Reason: "build lookalike audiences from qualified leads", Priority: 2})
	case qualified:
		out = append(out, Recommendation{Action: ActionSyncToPixels, Reason: "qualified lead not yet used for targeting", Priority: 2})
	case s.RiskScore >= 80 && in.CreditScore != nil:
		out = append(out, Recommendation{Action: ActionBlacklist, Reason: fmt.Sprintf("risk score %d", s.RiskScore), Priority: 3})
	case in.CreditScore != nil:
		out = append(out, Recommendation{Action: ActionNurture, Reason: "not qualified yet, keep in nurture sequence", Priority: 3})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

var _ Recommender = Heuristic{}
