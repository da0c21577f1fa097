package transport

import (
	"time"

	"glasswallet_backend/internal/rules/engine"

	"github.com/google/uuid"
)

// RuleRequest creates or fully replaces a rule.
type RuleRequest struct {
	Name        string             `json:"name" validate:"required,min=1,max=120"`
	Description string             `json:"description" validate:"max=500"`
	Conditions  []engine.Condition `json:"conditions" validate:"required,min=1,max=20,dive"`
	Actions     engine.Actions     `json:"actions" validate:"required"`
	Priority    int                `json:"priority" validate:"min=-1000,max=1000"`
	IsActive    *bool              `json:"isActive"`
}

type RuleResponse struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Conditions  []engine.Condition `json:"conditions"`
	Actions     engine.Actions     `json:"actions"`
	Priority    int                `json:"priority"`
	IsActive    bool               `json:"isActive"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// TestRulesRequest dry-runs the user's active rules, plus an optional
// unsaved draft, against the supplied facts.
type TestRulesRequest struct {
	Facts map[string]any `json:"facts" validate:"required"`
	Draft *RuleRequest   `json:"draft"`
}

type TestRulesResponse struct {
	Policy engine.Policy `json:"policy"`
	engine.Result
}

type SeedDefaultsResponse struct {
	Inserted int            `json:"inserted"`
	Rules    []RuleResponse `json:"rules"`
}
