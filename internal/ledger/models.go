// Package ledger is the append-only decision ledger. Every evaluator writes
// its findings here before returning; a DecisionRecord is the sole referent of
// "what happened and why" for regulators.
package ledger

import (
	"encoding/json"
	"time"

	id "custos/pkg/domain"
)

// CheckResult is one evaluated check within a decision.
type CheckResult struct {
	Rule    string `json:"rule"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// ResultDetails aggregates every check and violation of a single decision so
// the full picture is visible in one record.
type ResultDetails struct {
	Checks         []CheckResult `json:"checks"`
	Overall        string        `json:"overall"`
	ViolationCount int           `json:"violation_count"`
}

// DecisionRecord is immutable once appended. InputSnapshot holds the verbatim
// request; RuleVersions pins exactly which criteria/rule versions were applied
// so the decision stays reproducible after live configuration changes.
type DecisionRecord struct {
	ID             id.DecisionID     `json:"id"`
	SequenceNumber int64             `json:"sequence_number"`
	DecisionType   id.DecisionType   `json:"decision_type"`
	AssetID        *id.AssetID       `json:"asset_id,omitempty"`
	SubjectID      string            `json:"subject_id"`
	InputSnapshot  json.RawMessage   `json:"input_snapshot"`
	RuleVersions   json.RawMessage   `json:"rule_versions"`
	Result         id.DecisionResult `json:"result"`
	ResultDetails  ResultDetails     `json:"result_details"`
	DecidedBy      string            `json:"decided_by"`
	DecidedAt      time.Time         `json:"decided_at"`
	// PrevHash/RecordHash form the tamper-evidence chain layered over the
	// sequence number guarantee.
	PrevHash   string `json:"prev_hash"`
	RecordHash string `json:"record_hash"`
}

// Draft is what evaluators hand to the ledger; the ledger assigns identity,
// sequence, actor, time, and chain hashes.
type Draft struct {
	DecisionType  id.DecisionType
	AssetID       *id.AssetID
	SubjectID     string
	InputSnapshot json.RawMessage
	RuleVersions  json.RawMessage
	Result        id.DecisionResult
	ResultDetails ResultDetails
}
