package service

import (
	"context"
	"testing"

	"glasswallet_backend/internal/rules/engine"
	"glasswallet_backend/internal/rules/repository"
	"glasswallet_backend/internal/rules/transport"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	rules   []repository.Rule
	created int
}

func (f *fakeRepo) List(_ context.Context, userID uuid.UUID, activeOnly bool) ([]repository.Rule, error) {
	out := make([]repository.Rule, 0)
	for _, r := range f.rules {
		if r.UserID == userID && (!activeOnly || r.IsActive) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) Get(_ context.Context, userID, id uuid.UUID) (repository.Rule, error) {
	for _, r := range f.rules {
		if r.ID == id && r.UserID == userID {
			return r, nil
		}
	}
	return repository.Rule{}, apperr.NotFound("rule not found")
}

func (f *fakeRepo) Create(_ context.Context, rule repository.Rule) (repository.Rule, error) {
	rule.ID = uuid.New()
	f.rules = append(f.rules, rule)
	f.created++
	return rule, nil
}

func (f *fakeRepo) Update(_ context.Context, rule repository.Rule) (repository.Rule, error) {
	return rule, nil
}

func (f *fakeRepo) Delete(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (f *fakeRepo) CreateMissing(_ context.Context, userID uuid.UUID, rules []repository.Rule) (int, error) {
	n := 0
	for _, r := range rules {
		exists := false
		for _, have := range f.rules {
			if have.UserID == userID && have.Name == r.Name {
				exists = true
			}
		}
		if !exists {
			r.ID = uuid.New()
			f.rules = append(f.rules, r)
			n++
		}
	}
	return n, nil
}

func TestCreateRejectsInvalidDefinition(t *testing.T) {
	repo := &fakeRepo{}
	svc := New(repo, engine.PolicyCumulative, logger.New("development"))

	_, err := svc.Create(context.Background(), uuid.New(), transport.RuleRequest{
		Name:       "bad",
		Conditions: []engine.Condition{{Field: "creditScore", Operator: "between", Value: 1}},
		Actions:    engine.Actions{AddTag: engine.TagQualified},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.created != 0 {
		t.Fatalf("expected nothing persisted")
	}
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	repo := &fakeRepo{}
	svc := New(repo, engine.PolicyCumulative, logger.New("development"))
	userID := uuid.New()

	first, err := svc.SeedDefaults(context.Background(), userID)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	second, err := svc.SeedDefaults(context.Background(), userID)
	if err != nil {
		t.Fatalf("seed again: %v", err)
	}
	if first.Inserted != 3 || second.Inserted != 0 || len(second.Rules) != 3 {
		t.Fatalf("unexpected seed results %d/%d/%d", first.Inserted, second.Inserted, len(second.Rules))
	}
}

func TestDryRunIncludesDraft(t *testing.T) {
	repo := &fakeRepo{}
	svc := New(repo, engine.PolicyCumulative, logger.New("development"))

	res, err := svc.Test(context.Background(), uuid.New(), transport.TestRulesRequest{
		Facts: map[string]any{"creditScore": float64(640), "state": "TX"},
		Draft: &transport.RuleRequest{
			Name: "Texas whitelist",
			Conditions: []engine.Condition{
				{Field: "state", Operator: engine.OpEQ, Value: "tx"},
				{Field: "creditScore", Operator: engine.OpGTE, Value: float64(620)},
			},
			Actions: engine.Actions{AddTag: engine.TagWhitelist},
		},
	})
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	if len(res.Decisions) != 1 || res.Decisions[0].TagType != engine.TagWhitelist || res.Decisions[0].RuleID != "draft" {
		t.Fatalf("unexpected dry run %+v", res.Result)
	}
	if repo.created != 0 {
		t.Fatalf("dry run must not persist")
	}
}
