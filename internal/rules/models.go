// Package rules is the composite rule engine: per-asset boolean condition
// trees evaluated on every transfer in addition to the fixed transfer rules.
package rules

import (
	"errors"
	"fmt"
	"time"

	id "custos/pkg/domain"
	dErrors "custos/pkg/domain-errors"
)

// Operator aggregates a rule's conditions.
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
	// OperatorNot fails only when every condition is simultaneously true
	// (NAND). It is not a per-condition negation.
	OperatorNot Operator = "NOT"
)

func (o Operator) IsValid() bool {
	switch o {
	case OperatorAnd, OperatorOr, OperatorNot:
		return true
	}
	return false
}

// ConditionOperator compares a resolved field against the condition value.
type ConditionOperator string

const (
	CondEq    ConditionOperator = "eq"
	CondNeq   ConditionOperator = "neq"
	CondGt    ConditionOperator = "gt"
	CondGte   ConditionOperator = "gte"
	CondLt    ConditionOperator = "lt"
	CondLte   ConditionOperator = "lte"
	CondIn    ConditionOperator = "in"
	CondNotIn ConditionOperator = "not_in"
)

func (o ConditionOperator) IsValid() bool {
	switch o {
	case CondEq, CondNeq, CondGt, CondGte, CondLt, CondLte, CondIn, CondNotIn:
		return true
	}
	return false
}

// ordered reports whether the operator needs numeric operands.
func (o ConditionOperator) ordered() bool {
	switch o {
	case CondGt, CondGte, CondLt, CondLte:
		return true
	}
	return false
}

// Condition fields form a closed registry. Unknown fields are rejected when a
// rule is created, so a typo cannot silently weaken a rule.
const (
	FieldToJurisdiction   = "to.jurisdiction"
	FieldToAccredited     = "to.accredited"
	FieldFromJurisdiction = "from.jurisdiction"
	FieldFromAccredited   = "from.accredited"
	FieldTransferUnits    = "transfer.units"
)

// fieldRegistry maps each supported field to whether it resolves to a number.
var fieldRegistry = map[string]bool{
	FieldToJurisdiction:   false,
	FieldToAccredited:     false,
	FieldFromJurisdiction: false,
	FieldFromAccredited:   false,
	FieldTransferUnits:    true,
}

// KnownField reports whether field is in the registry.
func KnownField(field string) bool {
	_, ok := fieldRegistry[field]
	return ok
}

// Condition is one field comparison. Value carries the JSON-decoded operand:
// string, bool, number (float64), or a list for in/not_in.
type Condition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value"`
}

// CompositeRule is a configurable condition tree attached to an asset.
// Disabled rules are skipped entirely on the next evaluation.
type CompositeRule struct {
	ID          id.RuleID   `json:"id"`
	AssetID     id.AssetID  `json:"asset_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Operator    Operator    `json:"operator"`
	Conditions  []Condition `json:"conditions"`
	Enabled     bool        `json:"enabled"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Validate enforces the creation-time contract: a known aggregation operator,
// at least one condition, and every condition well-formed against the field
// registry.
func (r *CompositeRule) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "rule name is required")
	}
	if !r.Operator.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "operator must be AND, OR, or NOT")
	}
	if len(r.Conditions) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one condition is required")
	}
	for i, cond := range r.Conditions {
		if err := cond.validate(); err != nil {
			var de *dErrors.Error
			if errors.As(err, &de) {
				return dErrors.New(de.Code, fmt.Sprintf("condition %d: %s", i, de.Message))
			}
			return err
		}
	}
	return nil
}

func (c Condition) validate() error {
	if !KnownField(c.Field) {
		return dErrors.New(dErrors.CodeValidation, "unknown field "+c.Field)
	}
	if !c.Operator.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown operator "+string(c.Operator))
	}
	numericField := fieldRegistry[c.Field]
	if c.Operator.ordered() {
		if !numericField {
			return dErrors.New(dErrors.CodeValidation, "operator "+string(c.Operator)+" requires a numeric field")
		}
		if _, ok := asNumber(c.Value); !ok {
			return dErrors.New(dErrors.CodeValidation, "operator "+string(c.Operator)+" requires a numeric value")
		}
	}
	if c.Operator == CondIn || c.Operator == CondNotIn {
		if _, ok := c.Value.([]any); !ok {
			return dErrors.New(dErrors.CodeValidation, "operator "+string(c.Operator)+" requires a list value")
		}
	}
	return nil
}
