// Package engine evaluates auto-tagging rules against lead facts.
// It is pure: no I/O, no clock, no randomness, so the same facts and rules
// always produce the same decisions.
package engine

import (
	"fmt"
	"sort"
	"strings"
)

// TagType is a qualification label.
type TagType string

const (
	TagWhitelist   TagType = "whitelist"
	TagBlacklist   TagType = "blacklist"
	TagQualified   TagType = "qualified"
	TagUnqualified TagType = "unqualified"
)

// Valid reports whether t is a known tag type.
func (t TagType) Valid() bool {
	switch t {
	case TagWhitelist, TagBlacklist, TagQualified, TagUnqualified:
		return true
	}
	return false
}

// Opposite returns the tag of opposing polarity.
func (t TagType) Opposite() TagType {
	switch t {
	case TagWhitelist:
		return TagBlacklist
	case TagBlacklist:
		return TagWhitelist
	case TagQualified:
		return TagUnqualified
	case TagUnqualified:
		return TagQualified
	}
	return ""
}

// Policy selects how multiple firing rules combine.
type Policy string

const (
	// PolicyCumulative applies every firing rule.
	PolicyCumulative Policy = "cumulative"
	// PolicyFirstMatch applies only the highest-priority firing rule.
	PolicyFirstMatch Policy = "first_match"
)

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyCumulative:
		return PolicyCumulative, nil
	case PolicyFirstMatch:
		return PolicyFirstMatch, nil
	}
	return "", fmt.Errorf("unknown rule conflict policy %q", value)
}

// Actions is what a firing rule does.
type Actions struct {
	AddTag        TagType  `json:"addTag" yaml:"addTag"`
	SyncToPixels  bool     `json:"syncToPixels" yaml:"syncToPixels"`
	WebhookEvents []string `json:"webhookEvents,omitempty" yaml:"webhookEvents"`
}

// Rule is an evaluable auto-tagging rule.
type Rule struct {
	ID         string
	Name       string
	Conditions []Condition
	Actions    Actions
	Priority   int
	Active     bool
}

// Decision is one tag the evaluator wants applied.
type Decision struct {
	TagType       TagType  `json:"tagType"`
	Reason        string   `json:"reason"`
	RuleID        string   `json:"ruleId,omitempty"`
	RuleName      string   `json:"ruleName,omitempty"`
	Priority      int      `json:"priority"`
	SyncToPixels  bool     `json:"syncToPixels"`
	WebhookEvents []string `json:"webhookEvents,omitempty"`
}

// Result is the outcome of an evaluation.
type Result struct {
	Decisions    []Decision `json:"decisions"`
	MatchedRules []string   `json:"matchedRules"`
	// Baseline is true when no user rule fired and the baseline heuristic ran.
	Baseline bool `json:"baseline"`
}

// TagTypes lists the decided tag types in order.
func (r Result) TagTypes() []TagType {
	out := make([]TagType, 0, len(r.Decisions))
	for _, d := range r.Decisions {
		out = append(out, d.TagType)
	}
	return out
}

// Baseline thresholds.
const (
	BaselinePrimeScore   = 720
	BaselinePrimeIncome  = 8_000_000
	BaselineSubprimeMax  = 580
	baselinePriorityRank = -1 << 31
)

// Evaluate applies rules to facts under policy.
// Rules are ordered by priority (higher first) then by ID so ties are stable.
// Opposing tags never both survive: the higher-priority side wins.
func Evaluate(facts Facts, rules []Rule, policy Policy) Result {
	ordered := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active && r.Actions.AddTag.Valid() {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	firing := make([]Rule, 0, len(ordered))
	for _, r := range ordered {
		if Matches(facts, r.Conditions) {
			firing = append(firing, r)
		}
	}

	if len(firing) == 0 {
		return Result{Decisions: baseline(facts), MatchedRules: []string{}, Baseline: true}
	}
	if policy == PolicyFirstMatch {
		firing = firing[:1]
	}

	res := Result{MatchedRules: make([]string, 0, len(firing))}
	index := make(map[TagType]int)
	for _, r := range firing {
		res.MatchedRules = append(res.MatchedRules, r.ID)
		tag := r.Actions.AddTag

		if _, blocked := index[tag.Opposite()]; blocked {
			continue
		}
		if i, seen := index[tag]; seen {
			d := &res.Decisions[i]
			d.SyncToPixels = d.SyncToPixels || r.Actions.SyncToPixels
			d.WebhookEvents = unionEvents(d.WebhookEvents, r.Actions.WebhookEvents)
			continue
		}

		index[tag] = len(res.Decisions)
		res.Decisions = append(res.Decisions, Decision{
			TagType:       tag,
			Reason:        fmt.Sprintf("Matched rule %q", r.Name),
			RuleID:        r.ID,
			RuleName:      r.Name,
			Priority:      r.Priority,
			SyncToPixels:  r.Actions.SyncToPixels,
			WebhookEvents: unionEvents(nil, r.Actions.WebhookEvents),
		})
	}
	return res
}

func baseline(facts Facts) []Decision {
	score, hasScore := facts.Number(FieldCreditScore)
	if !hasScore {
		return []Decision{}
	}
	income, hasIncome := facts.Number(FieldIncomeEstimate)

	switch {
	case score >= BaselinePrimeScore && hasIncome && income >= BaselinePrimeIncome:
		reason := fmt.Sprintf("Baseline: credit score %d and income $%d", int(score), int64(income)/100)
		return []Decision{
			{TagType: TagQualified, Reason: reason, Priority: baselinePriorityRank},
			{TagType: TagWhitelist, Reason: reason, Priority: baselinePriorityRank},
		}
	case score <= BaselineSubprimeMax:
		reason := fmt.Sprintf("Baseline: credit score %d", int(score))
		return []Decision{
			{TagType: TagUnqualified, Reason: reason, Priority: baselinePriorityRank},
			{TagType: TagBlacklist, Reason: reason, Priority: baselinePriorityRank},
		}
	}
	return []Decision{}
}

func unionEvents(existing, add []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(add))
	for _, e := range existing {
		seen[e] = struct{}{}
	}
	for _, e := range add {
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		existing = append(existing, e)
	}
	return existing
}
