package domain

import dErrors "custos/pkg/domain-errors"

// DecisionType classifies a ledger entry by the evaluation that produced it.
// Invariant: the value must be one of the supported decision types.
//
// Usage: construct via ParseDecisionType at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type DecisionType string

const (
	DecisionTypeEligibilityCheck   DecisionType = "eligibility_check"
	DecisionTypeTransferValidation DecisionType = "transfer_validation"
	DecisionTypeOnboardingApproval DecisionType = "onboarding_approval"
	DecisionTypeScenarioAnalysis   DecisionType = "scenario_analysis"
)

var validDecisionTypes = map[DecisionType]bool{
	DecisionTypeEligibilityCheck:   true,
	DecisionTypeTransferValidation: true,
	DecisionTypeOnboardingApproval: true,
	DecisionTypeScenarioAnalysis:   true,
}

// ParseDecisionType constructs a DecisionType from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseDecisionType(s string) (DecisionType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "decision type cannot be empty")
	}
	t := DecisionType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid decision type")
	}
	return t, nil
}

// IsValid checks if the decision type is one of the supported enum values.
func (t DecisionType) IsValid() bool {
	return validDecisionTypes[t]
}

// DecisionResult is the overall outcome recorded with a ledger entry.
type DecisionResult string

const (
	DecisionResultApproved  DecisionResult = "approved"
	DecisionResultRejected  DecisionResult = "rejected"
	DecisionResultSimulated DecisionResult = "simulated"
)

var validDecisionResults = map[DecisionResult]bool{
	DecisionResultApproved:  true,
	DecisionResultRejected:  true,
	DecisionResultSimulated: true,
}

// IsValid checks if the decision result is one of the supported enum values.
func (r DecisionResult) IsValid() bool {
	return validDecisionResults[r]
}
