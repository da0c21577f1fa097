package engine

import "testing"

func rule(id string, priority int, tag TagType, conds ...Condition) Rule {
	return Rule{ID: id, Name: id, Priority: priority, Active: true, Conditions: conds, Actions: Actions{AddTag: tag}}
}

func gte(field string, v any) Condition { return Condition{Field: field, Operator: OpGTE, Value: v} }
func lte(field string, v any) Condition { return Condition{Field: field, Operator: OpLTE, Value: v} }

func TestBaselineQualifiesWhenNoRuleFires(t *testing.T) {
	res := Evaluate(Facts{FieldCreditScore: 730, FieldIncomeEstimate: int64(9_000_000)}, nil, PolicyCumulative)

	if !res.Baseline {
		t.Fatalf("expected baseline evaluation")
	}
	tags := res.TagTypes()
	if len(tags) != 2 || tags[0] != TagQualified || tags[1] != TagWhitelist {
		t.Fatalf("expected [qualified whitelist], got %v", tags)
	}
}

func TestBaselineBlacklistsSubprime(t *testing.T) {
	res := Evaluate(Facts{FieldCreditScore: 580}, nil, PolicyCumulative)
	tags := res.TagTypes()
	if len(tags) != 2 || tags[0] != TagUnqualified || tags[1] != TagBlacklist {
		t.Fatalf("expected [unqualified blacklist], got %v", tags)
	}
}

func TestBaselineLeavesMiddleUntagged(t *testing.T) {
	res := Evaluate(Facts{FieldCreditScore: 650, FieldIncomeEstimate: 5_000_000}, nil, PolicyCumulative)
	if len(res.Decisions) != 0 {
		t.Fatalf("expected no decisions, got %v", res.TagTypes())
	}
	res = Evaluate(Facts{}, nil, PolicyCumulative)
	if len(res.Decisions) != 0 {
		t.Fatalf("expected no decisions without a score")
	}
}

func TestBaselineSkippedWhenUserRuleFires(t *testing.T) {
	rules := []Rule{rule("r1", 1, TagWhitelist, gte(FieldCreditScore, 600))}
	res := Evaluate(Facts{FieldCreditScore: 800, FieldIncomeEstimate: 10_000_000}, rules, PolicyCumulative)

	if res.Baseline {
		t.Fatalf("baseline must not run when a user rule fires")
	}
	tags := res.TagTypes()
	if len(tags) != 1 || tags[0] != TagWhitelist {
		t.Fatalf("expected [whitelist], got %v", tags)
	}
}

func TestSameTypeDedupesToHighestPriority(t *testing.T) {
	low := rule("a-low", 10, TagQualified, gte(FieldCreditScore, 600))
	low.Actions.WebhookEvents = []string{"low.event"}
	high := rule("b-high", 50, TagQualified, gte(FieldCreditScore, 700))
	high.Actions.WebhookEvents = []string{"high.event"}

	res := Evaluate(Facts{FieldCreditScore: 720}, []Rule{low, high}, PolicyCumulative)
	if len(res.Decisions) != 1 {
		t.Fatalf("expected one decision, got %d", len(res.Decisions))
	}
	d := res.Decisions[0]
	if d.RuleID != "b-high" {
		t.Fatalf("expected highest priority rule to win, got %s", d.RuleID)
	}
	if len(d.WebhookEvents) != 2 || d.WebhookEvents[0] != "high.event" || d.WebhookEvents[1] != "low.event" {
		t.Fatalf("expected events unioned in priority order, got %v", d.WebhookEvents)
	}
	if len(res.MatchedRules) != 2 {
		t.Fatalf("expected both rules reported as matched")
	}
}

func TestOpposingPolarityKeepsHigherPriority(t *testing.T) {
	rules := []Rule{
		rule("white", 10, TagWhitelist, gte(FieldCreditScore, 600)),
		rule("black", 20, TagBlacklist, gte(FieldAnomalyCount, 2)),
	}
	res := Evaluate(Facts{FieldCreditScore: 700, FieldAnomalyCount: 3}, rules, PolicyCumulative)

	tags := res.TagTypes()
	if len(tags) != 1 || tags[0] != TagBlacklist {
		t.Fatalf("expected only blacklist, got %v", tags)
	}
}

func TestFirstMatchAppliesOnlyTopRule(t *testing.T) {
	rules := []Rule{
		rule("q", 100, TagQualified, gte(FieldCreditScore, 700)),
		rule("w", 90, TagWhitelist, gte(FieldCreditScore, 700)),
	}
	res := Evaluate(Facts{FieldCreditScore: 750}, rules, PolicyFirstMatch)

	tags := res.TagTypes()
	if len(tags) != 1 || tags[0] != TagQualified {
		t.Fatalf("expected [qualified], got %v", tags)
	}
}

func TestTiesBreakByRuleID(t *testing.T) {
	rules := []Rule{
		rule("b", 5, TagWhitelist, gte(FieldCreditScore, 600)),
		rule("a", 5, TagBlacklist, gte(FieldCreditScore, 600)),
	}
	res := Evaluate(Facts{FieldCreditScore: 650}, rules, PolicyCumulative)
	if tags := res.TagTypes(); len(tags) != 1 || tags[0] != TagBlacklist {
		t.Fatalf("expected rule a to win the tie, got %v", tags)
	}
}

func TestInactiveRulesIgnored(t *testing.T) {
	r := rule("r", 1, TagWhitelist, gte(FieldCreditScore, 600))
	r.Active = false
	res := Evaluate(Facts{FieldCreditScore: 650}, []Rule{r}, PolicyCumulative)
	if !res.Baseline {
		t.Fatalf("expected inactive rule to be skipped")
	}
}

func TestConditionOperators(t *testing.T) {
	facts := Facts{
		FieldCreditScore: 700,
		FieldState:       "CA",
		FieldHasEmail:    true,
		FieldRiskScore:   0.2,
	}
	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"gt", Condition{FieldCreditScore, OpGT, 699}, true},
		{"lt", Condition{FieldCreditScore, OpLT, 700}, false},
		{"lte float", Condition{FieldRiskScore, OpLTE, 0.2}, true},
		{"eq string case", Condition{FieldState, OpEQ, "ca"}, true},
		{"neq", Condition{FieldState, OpNEQ, "NY"}, true},
		{"in", Condition{FieldState, OpIn, []any{"NY", "CA"}}, true},
		{"eq bool", Condition{FieldHasEmail, OpEQ, true}, true},
		{"exists", Condition{FieldCreditScore, OpExists, nil}, true},
		{"exists false", Condition{FieldIncomeEstimate, OpExists, false}, true},
		{"absent numeric", Condition{FieldIncomeEstimate, OpGTE, 0}, false},
		{"absent neq", Condition{FieldIncomeEstimate, OpNEQ, 5}, false},
	}
	for _, tc := range cases {
		if got := Matches(facts, []Condition{tc.cond}); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]Condition{gte(FieldCreditScore, 700)}, Actions{AddTag: TagQualified}); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}
	err := Validate([]Condition{{Field: "zodiac", Operator: "like", Value: "leo"}}, Actions{AddTag: "gold"})
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	if err := Validate(nil, Actions{AddTag: TagQualified}); err == nil {
		t.Fatalf("expected error for empty conditions")
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != PolicyCumulative {
		t.Fatalf("expected default cumulative, got %s %v", p, err)
	}
	if _, err := ParsePolicy("random"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
