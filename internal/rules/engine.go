package rules

import "fmt"

// TransferContext is the evidence a condition field resolves against.
type TransferContext struct {
	FromJurisdiction string
	FromAccredited   bool
	ToJurisdiction   string
	ToAccredited     bool
	Units            int64
}

// Outcome is one rule's evaluation.
type Outcome struct {
	RuleID      string
	Name        string
	Passed      bool
	Description string
}

// Engine evaluates composite rules against a transfer context. In strict mode
// a condition whose field cannot be resolved is false; legacy mode preserves
// the historical vacuous-true reading for rule rows that predate creation-time
// field validation.
type Engine struct {
	legacyVacuousFields bool
}

func NewEngine(legacyVacuousFields bool) *Engine {
	return &Engine{legacyVacuousFields: legacyVacuousFields}
}

// Evaluate applies one rule. AND passes iff every condition is true, OR iff
// any is true. NOT fails only when all conditions are simultaneously true.
func (e *Engine) Evaluate(rule *CompositeRule, tctx TransferContext) Outcome {
	allTrue := true
	anyTrue := false
	for _, cond := range rule.Conditions {
		if e.evalCondition(cond, tctx) {
			anyTrue = true
		} else {
			allTrue = false
		}
	}

	var passed bool
	switch rule.Operator {
	case OperatorAnd:
		passed = allTrue
	case OperatorOr:
		passed = anyTrue
	case OperatorNot:
		passed = !allTrue
	}

	return Outcome{
		RuleID:      rule.ID.String(),
		Name:        rule.Name,
		Passed:      passed,
		Description: rule.Description,
	}
}

// EvaluateAll applies every enabled rule in the given order; disabled rules
// are skipped entirely.
func (e *Engine) EvaluateAll(ruleSet []*CompositeRule, tctx TransferContext) []Outcome {
	outcomes := make([]Outcome, 0, len(ruleSet))
	for _, rule := range ruleSet {
		if !rule.Enabled {
			continue
		}
		outcomes = append(outcomes, e.Evaluate(rule, tctx))
	}
	return outcomes
}

func (e *Engine) evalCondition(cond Condition, tctx TransferContext) bool {
	actual, ok := resolveField(cond.Field, tctx)
	if !ok {
		return e.legacyVacuousFields
	}

	switch cond.Operator {
	case CondEq:
		return valuesEqual(actual, cond.Value)
	case CondNeq:
		return !valuesEqual(actual, cond.Value)
	case CondGt, CondGte, CondLt, CondLte:
		a, aok := asNumber(actual)
		b, bok := asNumber(cond.Value)
		if !aok || !bok {
			return false
		}
		switch cond.Operator {
		case CondGt:
			return a > b
		case CondGte:
			return a >= b
		case CondLt:
			return a < b
		default:
			return a <= b
		}
	case CondIn:
		return valueInList(actual, cond.Value)
	case CondNotIn:
		return !valueInList(actual, cond.Value)
	}
	return false
}

func resolveField(field string, tctx TransferContext) (any, bool) {
	switch field {
	case FieldToJurisdiction:
		return tctx.ToJurisdiction, true
	case FieldToAccredited:
		return tctx.ToAccredited, true
	case FieldFromJurisdiction:
		return tctx.FromJurisdiction, true
	case FieldFromAccredited:
		return tctx.FromAccredited, true
	case FieldTransferUnits:
		return tctx.Units, true
	}
	return nil, false
}

// valuesEqual compares a resolved field value with a JSON-decoded condition
// value. Numbers compare numerically regardless of concrete type.
func valuesEqual(actual, expected any) bool {
	if a, ok := asNumber(actual); ok {
		if b, bok := asNumber(expected); bok {
			return a == b
		}
		return false
	}
	switch a := actual.(type) {
	case string:
		b, ok := expected.(string)
		return ok && a == b
	case bool:
		b, ok := expected.(bool)
		return ok && a == b
	}
	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

func valueInList(actual, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if valuesEqual(actual, item) {
			return true
		}
	}
	return false
}

// asNumber normalizes the numeric types that reach the engine: int64 from
// resolved fields, float64 and json.Number-free decoding from stored values.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
