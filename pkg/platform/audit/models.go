package audit

import "time"

// EventCategory classifies audit events by their primary purpose. Categories
// drive retention and routing: compliance events land on a tamper-proof topic
// with multi-year retention, operations events can be sampled.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	// Subject is the primary entity the action concerned (investor id,
	// onboarding id, ...).
	Subject string
	Action  string
	// AssetID scopes the event to an asset when one is involved.
	AssetID string
	// DecisionID links the event to the ledger entry that authorized it.
	DecisionID string
	// Decision is the outcome (e.g. "approved", "rejected", "allocated").
	Decision string
	Reason   string
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string
	// ActorID is the authenticated principal that performed the action.
	ActorID string
}

// Action names emitted by the engine.
type Action string

const (
	ActionTransferExecuted    Action = "transfer_executed"
	ActionTransferRejected    Action = "transfer_rejected"
	ActionOnboardingSubmitted Action = "onboarding_submitted"
	ActionOnboardingReviewed  Action = "onboarding_reviewed"
	ActionOnboardingWithdrawn Action = "onboarding_withdrawn"
	ActionUnitsAllocated      Action = "units_allocated"
	ActionDecisionRecorded    Action = "decision_recorded"
)

// actionCategories maps each action to its category. Everything that moves
// units or concludes a review is compliance-grade.
var actionCategories = map[Action]EventCategory{
	ActionTransferExecuted:    CategoryCompliance,
	ActionTransferRejected:    CategoryCompliance,
	ActionOnboardingReviewed:  CategoryCompliance,
	ActionUnitsAllocated:      CategoryCompliance,
	ActionOnboardingSubmitted: CategoryOperations,
	ActionOnboardingWithdrawn: CategoryOperations,
	ActionDecisionRecorded:    CategoryOperations,
}

// Category returns the EventCategory for this action. Unknown actions default
// to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}
