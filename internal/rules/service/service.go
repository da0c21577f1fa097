// Package service implements rule management and evaluation.
package service

import (
	"context"
	"strings"

	"glasswallet_backend/internal/rules/defaults"
	"glasswallet_backend/internal/rules/engine"
	"glasswallet_backend/internal/rules/repository"
	"glasswallet_backend/internal/rules/transport"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/logger"

	"github.com/google/uuid"
)

// Service manages a user's auto-tagging rules.
type Service struct {
	repo   repository.Repository
	policy engine.Policy
	log    *logger.Logger
}

// New creates a rules service.
func New(repo repository.Repository, policy engine.Policy, log *logger.Logger) *Service {
	return &Service{repo: repo, policy: policy, log: log}
}

// Policy returns the configured conflict policy.
func (s *Service) Policy() engine.Policy {
	return s.policy
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]transport.RuleResponse, error) {
	rules, err := s.repo.List(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	return toResponses(rules), nil
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, req transport.RuleRequest) (transport.RuleResponse, error) {
	if err := validateDefinition(req); err != nil {
		return transport.RuleResponse{}, err
	}
	created, err := s.repo.Create(ctx, fromRequest(userID, uuid.Nil, req))
	if err != nil {
		return transport.RuleResponse{}, err
	}
	return toResponse(created), nil
}

func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, req transport.RuleRequest) (transport.RuleResponse, error) {
	if err := validateDefinition(req); err != nil {
		return transport.RuleResponse{}, err
	}
	updated, err := s.repo.Update(ctx, fromRequest(userID, id, req))
	if err != nil {
		return transport.RuleResponse{}, err
	}
	return toResponse(updated), nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.Delete(ctx, userID, id)
}

// SeedDefaults installs the starter pack; rules whose name exists are kept.
func (s *Service) SeedDefaults(ctx context.Context, userID uuid.UUID) (transport.SeedDefaultsResponse, error) {
	pack, err := defaults.Load()
	if err != nil {
		return transport.SeedDefaultsResponse{}, err
	}

	rules := make([]repository.Rule, 0, len(pack))
	for _, r := range pack {
		rules = append(rules, repository.Rule{
			UserID:      userID,
			Name:        r.Name,
			Description: r.Description,
			Conditions:  r.Conditions,
			Actions:     r.Actions,
			Priority:    r.Priority,
			IsActive:    true,
		})
	}

	inserted, err := s.repo.CreateMissing(ctx, userID, rules)
	if err != nil {
		return transport.SeedDefaultsResponse{}, err
	}
	s.log.Info("default rules seeded", "userId", userID, "inserted", inserted)

	all, err := s.repo.List(ctx, userID, false)
	if err != nil {
		return transport.SeedDefaultsResponse{}, err
	}
	return transport.SeedDefaultsResponse{Inserted: inserted, Rules: toResponses(all)}, nil
}

// ActiveRules returns the user's active rules ready for evaluation.
func (s *Service) ActiveRules(ctx context.Context, userID uuid.UUID) ([]engine.Rule, error) {
	rules, err := s.repo.List(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.EngineRule())
	}
	return out, nil
}

// Evaluate runs the user's active rules against facts.
func (s *Service) Evaluate(ctx context.Context, userID uuid.UUID, facts engine.Facts) (engine.Result, error) {
	rules, err := s.ActiveRules(ctx, userID)
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Evaluate(facts, rules, s.policy), nil
}

// Test dry-runs the active rules plus an optional draft without persisting anything.
func (s *Service) Test(ctx context.Context, userID uuid.UUID, req transport.TestRulesRequest) (transport.TestRulesResponse, error) {
	rules, err := s.ActiveRules(ctx, userID)
	if err != nil {
		return transport.TestRulesResponse{}, err
	}
	if req.Draft != nil {
		if err := validateDefinition(*req.Draft); err != nil {
			return transport.TestRulesResponse{}, err
		}
		draft := fromRequest(userID, uuid.Nil, *req.Draft).EngineRule()
		draft.ID = "draft"
		draft.Active = true
		rules = append(rules, draft)
	}

	res := engine.Evaluate(engine.Facts(req.Facts), rules, s.policy)
	return transport.TestRulesResponse{Policy: s.policy, Result: res}, nil
}

func validateDefinition(req transport.RuleRequest) error {
	if err := engine.Validate(req.Conditions, req.Actions); err != nil {
		return apperr.Validation("invalid rule definition").WithDetails(strings.Split(err.Error(), "\n"))
	}
	return nil
}

func fromRequest(userID, id uuid.UUID, req transport.RuleRequest) repository.Rule {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return repository.Rule{
		ID:          id,
		UserID:      userID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		Priority:    req.Priority,
		IsActive:    active,
	}
}

func toResponse(r repository.Rule) transport.RuleResponse {
	return transport.RuleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Conditions:  r.Conditions,
		Actions:     r.Actions,
		Priority:    r.Priority,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toResponses(rules []repository.Rule) []transport.RuleResponse {
	out := make([]transport.RuleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, toResponse(r))
	}
	return out
}
