package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Known fact fields.
const (
	FieldCreditScore           = "creditScore"
	FieldIncomeEstimate        = "incomeEstimate"
	FieldHasEmail              = "hasEmail"
	FieldHasPhone              = "hasPhone"
	FieldState                 = "state"
	FieldSource                = "source"
	FieldAIScore               = "aiScore"
	FieldRiskScore             = "riskScore"
	FieldAnomalyCount          = "anomalyCount"
	FieldConversionProbability = "conversionProbability"
)

var knownFields = map[string]bool{
	FieldCreditScore: true, FieldIncomeEstimate: true, FieldHasEmail: true, FieldHasPhone: true,
	FieldState: true, FieldSource: true, FieldAIScore: true, FieldRiskScore: true,
	FieldAnomalyCount: true, FieldConversionProbability: true,
}

// Operator compares a fact with a condition value.
type Operator string

const (
	OpGT     Operator = "gt"
	OpGTE    Operator = "gte"
	OpLT     Operator = "lt"
	OpLTE    Operator = "lte"
	OpEQ     Operator = "eq"
	OpNEQ    Operator = "neq"
	OpIn     Operator = "in"
	OpExists Operator = "exists"
)

// Condition is a single predicate over a fact.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value"`
}

// Facts are the attributes a rule can inspect. Absent keys are unknown.
type Facts map[string]any

// Number returns a numeric fact.
func (f Facts) Number(field string) (float64, bool) {
	v, ok := f[field]
	if !ok || v == nil {
		return 0, false
	}
	return toFloat(v)
}

// Matches reports whether all conditions hold. A rule with no conditions never matches.
func Matches(facts Facts, conditions []Condition) bool {
	if len(conditions) == 0 {
		return false
	}
	for _, c := range conditions {
		if !holds(facts, c) {
			return false
		}
	}
	return true
}

func holds(facts Facts, c Condition) bool {
	fact, present := facts[c.Field]
	if present && fact == nil {
		present = false
	}

	if c.Operator == OpExists {
		want := true
		if b, ok := c.Value.(bool); ok {
			want = b
		}
		return present == want
	}
	if !present {
		return false
	}

	switch c.Operator {
	case OpGT, OpGTE, OpLT, OpLTE:
		a, okA := toFloat(fact)
		b, okB := toFloat(c.Value)
		if !okA || !okB {
			return false
		}
		switch c.Operator {
		case OpGT:
			return a > b
		case OpGTE:
			return a >= b
		case OpLT:
			return a < b
		default:
			return a <= b
		}
	case OpEQ:
		return equal(fact, c.Value)
	case OpNEQ:
		return !equal(fact, c.Value)
	case OpIn:
		list, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if equal(fact, item) {
				return true
			}
		}
	}
	return false
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	return okA && okB && strings.EqualFold(strings.TrimSpace(sa), strings.TrimSpace(sb))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Validate checks a rule definition and returns every problem found.
func Validate(conditions []Condition, actions Actions) error {
	var problems []error
	if len(conditions) == 0 {
		problems = append(problems, errors.New("at least one condition is required"))
	}
	for i, c := range conditions {
		if !knownFields[c.Field] {
			problems = append(problems, fmt.Errorf("conditions[%d]: unknown field %q", i, c.Field))
		}
		switch c.Operator {
		case OpGT, OpGTE, OpLT, OpLTE:
			if _, ok := toFloat(c.Value); !ok {
				problems = append(problems, fmt.Errorf("conditions[%d]: %s needs a numeric value", i, c.Operator))
			}
		case OpEQ, OpNEQ:
			if c.Value == nil {
				problems = append(problems, fmt.Errorf("conditions[%d]: %s needs a value", i, c.Operator))
			}
		case OpIn:
			if list, ok := c.Value.([]any); !ok || len(list) == 0 {
				problems = append(problems, fmt.Errorf("conditions[%d]: in needs a non-empty list", i))
			}
		case OpExists:
			if c.Value != nil {
				if _, ok := c.Value.(bool); !ok {
					problems = append(problems, fmt.Errorf("conditions[%d]: exists takes a boolean", i))
				}
			}
		default:
			problems = append(problems, fmt.Errorf("conditions[%d]: unknown operator %q", i, c.Operator))
		}
	}
	if !actions.AddTag.Valid() {
		problems = append(problems, fmt.Errorf("actions.addTag: unknown tag type %q", actions.AddTag))
	}
	return errors.Join(problems...)
}
