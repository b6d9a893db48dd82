// Package onboarding runs the subscription lifecycle for new investments: an
// application moves through a closed status machine from applied to allocated,
// with eligibility evaluation and manual review gating every step. Each
// transition that concludes an evaluation writes a decision record.
package onboarding

import (
	"time"

	id "custos/pkg/domain"
	dErrors "custos/pkg/domain-errors"
)

// Status is the lifecycle state of an onboarding application.
type Status string

const (
	StatusApplied    Status = "applied"
	StatusEligible   Status = "eligible"
	StatusIneligible Status = "ineligible"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusAllocated  Status = "allocated"
	StatusWithdrawn  Status = "withdrawn"
)

// transitions is the closed table of allowed status moves. Anything absent is
// an invalid transition; there is no way out of a terminal status.
var transitions = map[Status]map[Status]bool{
	StatusApplied: {
		StatusEligible:   true,
		StatusIneligible: true,
		StatusRejected:   true, // review may reject without a prior eligibility check
		StatusWithdrawn:  true,
	},
	StatusEligible: {
		StatusApproved:  true,
		StatusRejected:  true,
		StatusWithdrawn: true,
	},
	StatusApproved: {
		StatusAllocated: true,
		StatusWithdrawn: true,
	},
}

// CanTransition reports whether moving from s to target is allowed.
func (s Status) CanTransition(target Status) bool {
	return transitions[s][target]
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// IsValid checks if the status is one of the lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusApplied, StatusEligible, StatusIneligible, StatusApproved,
		StatusRejected, StatusAllocated, StatusWithdrawn:
		return true
	}
	return false
}

// ReviewDecision is the reviewer's verdict on an application.
type ReviewDecision string

const (
	ReviewApproved ReviewDecision = "approved"
	ReviewRejected ReviewDecision = "rejected"
)

// ParseReviewDecision constructs a ReviewDecision from external input.
func ParseReviewDecision(s string) (ReviewDecision, error) {
	d := ReviewDecision(s)
	if d != ReviewApproved && d != ReviewRejected {
		return "", dErrors.New(dErrors.CodeValidation, "decision must be approved or rejected")
	}
	return d, nil
}

// Record is one onboarding application. EligibilityDecisionID and
// ApprovalDecisionID link back to the ledger entries that justified the
// corresponding transitions.
type Record struct {
	ID                    id.OnboardingID `json:"id"`
	InvestorID            id.InvestorID   `json:"investor_id"`
	AssetID               id.AssetID      `json:"asset_id"`
	RequestedUnits        int64           `json:"requested_units"`
	Status                Status          `json:"status"`
	EligibilityDecisionID *id.DecisionID  `json:"eligibility_decision_id,omitempty"`
	ApprovalDecisionID    *id.DecisionID  `json:"approval_decision_id,omitempty"`
	ReviewedBy            string          `json:"reviewed_by,omitempty"`
	RejectionReasons      []string        `json:"rejection_reasons,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// CreateInput is what a new application needs.
type CreateInput struct {
	InvestorID     id.InvestorID
	AssetID        id.AssetID
	RequestedUnits int64
}

// Validate checks request-level invariants before any store access.
func (in CreateInput) Validate() error {
	if in.InvestorID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "investor_id is required")
	}
	if in.AssetID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "asset_id is required")
	}
	if in.RequestedUnits <= 0 {
		return dErrors.New(dErrors.CodeValidation, "requested_units must be positive")
	}
	return nil
}

// ReviewInput carries the reviewer's verdict.
type ReviewInput struct {
	Decision         ReviewDecision
	RejectionReasons []string
}
