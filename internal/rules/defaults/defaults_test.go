package defaults

import (
	"testing"

	"glasswallet_backend/internal/rules/engine"
)

func TestDefaultPackQualifiesPrimeLead(t *testing.T) {
	rules, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected 3 default rules, got %d", len(rules))
	}

	res := engine.Evaluate(engine.Facts{
		engine.FieldCreditScore:    750,
		engine.FieldIncomeEstimate: 7_500_000,
	}, EngineRules(rules), engine.PolicyCumulative)

	tags := res.TagTypes()
	if len(tags) != 2 || tags[0] != engine.TagQualified || tags[1] != engine.TagWhitelist {
		t.Fatalf("expected [qualified whitelist], got %v", tags)
	}
	if res.Baseline {
		t.Fatalf("expected rule path, not baseline")
	}
	if !res.Decisions[0].SyncToPixels {
		t.Fatalf("expected qualified decision to sync")
	}
}

func TestDefaultPackBlacklistsSubprime(t *testing.T) {
	rules, _ := Load()
	res := engine.Evaluate(engine.Facts{engine.FieldCreditScore: 560}, EngineRules(rules), engine.PolicyCumulative)

	tags := res.TagTypes()
	if len(tags) != 1 || tags[0] != engine.TagBlacklist {
		t.Fatalf("expected [blacklist], got %v", tags)
	}
}
