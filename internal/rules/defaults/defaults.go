// Package defaults holds the embedded starter rule pack.
package defaults

import (
	_ "embed"
	"fmt"

	"glasswallet_backend/internal/rules/engine"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var packYAML []byte

// Rule is one rule of the starter pack.
type Rule struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Priority    int                `yaml:"priority"`
	Conditions  []engine.Condition `yaml:"conditions"`
	Actions     engine.Actions     `yaml:"actions"`
}

type pack struct {
	Rules []Rule `yaml:"rules"`
}

// Load parses the embedded pack and validates every rule.
func Load() ([]Rule, error) {
	var p pack
	if err := yaml.Unmarshal(packYAML, &p); err != nil {
		return nil, fmt.Errorf("parse default rules: %w", err)
	}
	for _, r := range p.Rules {
		if err := engine.Validate(r.Conditions, r.Actions); err != nil {
			return nil, fmt.Errorf("default rule %q: %w", r.Name, err)
		}
	}
	return p.Rules, nil
}

// EngineRules converts the pack into evaluable rules with synthetic IDs.
func EngineRules(rules []Rule) []engine.Rule {
	out := make([]engine.Rule, 0, len(rules))
	for i, r := range rules {
		out = append(out, engine.Rule{
			ID:         fmt.Sprintf("default-%d", i+1),
			Name:       r.Name,
			Conditions: r.Conditions,
			Actions:    r.Actions,
			Priority:   r.Priority,
			Active:     true,
		})
	}
	return out
}
