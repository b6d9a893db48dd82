package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	id "custos/pkg/domain"
)

func makeRule(op Operator, conditions ...Condition) *CompositeRule {
	return &CompositeRule{
		ID:         id.NewRuleID(),
		AssetID:    id.NewAssetID(),
		Name:       "test rule",
		Operator:   op,
		Conditions: conditions,
		Enabled:    true,
	}
}

func usTransfer() TransferContext {
	return TransferContext{
		FromJurisdiction: "DE",
		FromAccredited:   true,
		ToJurisdiction:   "US",
		ToAccredited:     false,
		Units:            50_000,
	}
}

func TestEngineAggregation(t *testing.T) {
	engine := NewEngine(false)
	tctx := usTransfer()

	condTrue := Condition{Field: FieldToJurisdiction, Operator: CondEq, Value: "US"}
	condFalse := Condition{Field: FieldToAccredited, Operator: CondEq, Value: true}

	t.Run("AND passes iff all conditions true", func(t *testing.T) {
		assert.True(t, engine.Evaluate(makeRule(OperatorAnd, condTrue, condTrue), tctx).Passed)
		assert.False(t, engine.Evaluate(makeRule(OperatorAnd, condTrue, condFalse), tctx).Passed)
	})

	t.Run("OR passes iff any condition true", func(t *testing.T) {
		assert.True(t, engine.Evaluate(makeRule(OperatorOr, condFalse, condTrue), tctx).Passed)
		assert.False(t, engine.Evaluate(makeRule(OperatorOr, condFalse, condFalse), tctx).Passed)
	})

	t.Run("NOT is NAND, not per-condition negation", func(t *testing.T) {
		// Fails only when every condition is simultaneously true.
		assert.False(t, engine.Evaluate(makeRule(OperatorNot, condTrue, condTrue), tctx).Passed)
		// One false condition is enough to pass.
		assert.True(t, engine.Evaluate(makeRule(OperatorNot, condTrue, condFalse), tctx).Passed)
		assert.True(t, engine.Evaluate(makeRule(OperatorNot, condFalse, condFalse), tctx).Passed)
	})
}

func TestEngineConditionOperators(t *testing.T) {
	engine := NewEngine(false)
	tctx := usTransfer()

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq string match", Condition{Field: FieldToJurisdiction, Operator: CondEq, Value: "US"}, true},
		{"eq string mismatch", Condition{Field: FieldToJurisdiction, Operator: CondEq, Value: "JP"}, false},
		{"eq bool", Condition{Field: FieldFromAccredited, Operator: CondEq, Value: true}, true},
		{"neq", Condition{Field: FieldToJurisdiction, Operator: CondNeq, Value: "JP"}, true},
		{"gt true", Condition{Field: FieldTransferUnits, Operator: CondGt, Value: float64(49_999)}, true},
		{"gt false on equal", Condition{Field: FieldTransferUnits, Operator: CondGt, Value: float64(50_000)}, false},
		{"gte on equal", Condition{Field: FieldTransferUnits, Operator: CondGte, Value: float64(50_000)}, true},
		{"lt", Condition{Field: FieldTransferUnits, Operator: CondLt, Value: float64(50_001)}, true},
		{"lte", Condition{Field: FieldTransferUnits, Operator: CondLte, Value: float64(50_000)}, true},
		{"in member", Condition{Field: FieldToJurisdiction, Operator: CondIn, Value: []any{"US", "GB"}}, true},
		{"in non-member", Condition{Field: FieldToJurisdiction, Operator: CondIn, Value: []any{"JP", "SG"}}, false},
		{"not_in non-member", Condition{Field: FieldToJurisdiction, Operator: CondNotIn, Value: []any{"JP", "SG"}}, true},
		{"not_in member", Condition{Field: FieldToJurisdiction, Operator: CondNotIn, Value: []any{"US"}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := engine.Evaluate(makeRule(OperatorAnd, tc.cond), tctx)
			assert.Equal(t, tc.want, outcome.Passed)
		})
	}
}

func TestEngineFieldResolution(t *testing.T) {
	tctx := usTransfer()
	unknown := Condition{Field: "to.unknown_field", Operator: CondEq, Value: "x"}

	t.Run("strict mode fails unresolvable fields", func(t *testing.T) {
		engine := NewEngine(false)
		assert.False(t, engine.Evaluate(makeRule(OperatorAnd, unknown), tctx).Passed)
	})

	t.Run("legacy mode treats unresolvable fields as vacuously true", func(t *testing.T) {
		engine := NewEngine(true)
		assert.True(t, engine.Evaluate(makeRule(OperatorAnd, unknown), tctx).Passed)
	})

	t.Run("numeric field compares against json numbers", func(t *testing.T) {
		engine := NewEngine(false)
		cond := Condition{Field: FieldTransferUnits, Operator: CondEq, Value: float64(50_000)}
		assert.True(t, engine.Evaluate(makeRule(OperatorAnd, cond), tctx).Passed)
	})
}

func TestEngineEvaluateAll(t *testing.T) {
	engine := NewEngine(false)
	tctx := usTransfer()

	enabled := makeRule(OperatorAnd, Condition{Field: FieldToJurisdiction, Operator: CondEq, Value: "JP"})
	disabled := makeRule(OperatorAnd, Condition{Field: FieldToJurisdiction, Operator: CondEq, Value: "JP"})
	disabled.Enabled = false

	outcomes := engine.EvaluateAll([]*CompositeRule{enabled, disabled}, tctx)
	assert.Len(t, outcomes, 1)
	assert.Equal(t, enabled.ID.String(), outcomes[0].RuleID)
	assert.False(t, outcomes[0].Passed)
}

func TestRuleValidation(t *testing.T) {
	valid := makeRule(OperatorAnd, Condition{Field: FieldToJurisdiction, Operator: CondEq, Value: "US"})

	t.Run("well-formed rule passes", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("unknown field is rejected at creation", func(t *testing.T) {
		rule := makeRule(OperatorAnd, Condition{Field: "to.net_worth", Operator: CondGt, Value: float64(1)})
		err := rule.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown field")
	})

	t.Run("unknown operators are rejected", func(t *testing.T) {
		rule := makeRule(Operator("XOR"), Condition{Field: FieldToJurisdiction, Operator: CondEq, Value: "US"})
		assert.Error(t, rule.Validate())

		rule = makeRule(OperatorAnd, Condition{Field: FieldToJurisdiction, Operator: ConditionOperator("like"), Value: "US"})
		assert.Error(t, rule.Validate())
	})

	t.Run("ordered operators need a numeric field and value", func(t *testing.T) {
		rule := makeRule(OperatorAnd, Condition{Field: FieldToJurisdiction, Operator: CondGt, Value: float64(1)})
		assert.Error(t, rule.Validate())

		rule = makeRule(OperatorAnd, Condition{Field: FieldTransferUnits, Operator: CondGt, Value: "many"})
		assert.Error(t, rule.Validate())
	})

	t.Run("in operators need a list value", func(t *testing.T) {
		rule := makeRule(OperatorAnd, Condition{Field: FieldToJurisdiction, Operator: CondIn, Value: "US"})
		assert.Error(t, rule.Validate())
	})

	t.Run("empty conditions are rejected", func(t *testing.T) {
		rule := makeRule(OperatorAnd)
		assert.Error(t, rule.Validate())
	})
}
