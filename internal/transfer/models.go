// Package transfer orchestrates unit transfers: it composes eligibility, the
// fixed transfer rules, and the composite rule engine into simulate/execute,
// and owns the atomic unit move between holdings.
package transfer

import (
	"time"

	"custos/internal/eligibility"
	"custos/internal/ledger"
	id "custos/pkg/domain"
	dErrors "custos/pkg/domain-errors"
)

// Rules is the fixed per-asset transfer rule row. One row per asset per
// version; the highest version is the live one, and decisions pin the version
// they applied.
type Rules struct {
	AssetID id.AssetID `json:"asset_id"`
	Version int64      `json:"version"`
	// QualificationRequired demands an accredited receiver.
	QualificationRequired bool `json:"qualification_required"`
	// LockupDays is the minimum holding period after acquisition; 0 means
	// no lockup.
	LockupDays int `json:"lockup_days"`
	// JurisdictionWhitelist limits receiver jurisdictions; empty means
	// unrestricted.
	JurisdictionWhitelist []string `json:"jurisdiction_whitelist"`
	// TransferWhitelist limits permitted recipients; nil means
	// unrestricted, an empty non-nil list permits nobody.
	TransferWhitelist []id.InvestorID `json:"transfer_whitelist"`
	CreatedAt         time.Time       `json:"created_at"`
}

// defaultRules applies when an asset has no configured row: unrestricted.
func defaultRules(assetID id.AssetID) *Rules {
	return &Rules{AssetID: assetID, Version: 0}
}

// Holding is one investor's position in one asset. Units never go negative;
// the mutation paths enforce it under the store's locking regime.
type Holding struct {
	ID         id.HoldingID  `json:"id"`
	InvestorID id.InvestorID `json:"investor_id"`
	AssetID    id.AssetID    `json:"asset_id"`
	Units      int64         `json:"units"`
	AcquiredAt time.Time     `json:"acquired_at"`
}

// Transfer is the record of an executed unit move. Created only on a
// successful execute, always referencing the decision record that approved it.
type Transfer struct {
	ID               id.TransferID `json:"id"`
	AssetID          id.AssetID    `json:"asset_id"`
	FromInvestorID   id.InvestorID `json:"from_investor_id"`
	ToInvestorID     id.InvestorID `json:"to_investor_id"`
	Units            int64         `json:"units"`
	ExecutionDate    time.Time     `json:"execution_date"`
	DecisionRecordID id.DecisionID `json:"decision_record_id"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Request is a proposed transfer, shared by simulate and execute.
type Request struct {
	AssetID        id.AssetID
	FromInvestorID id.InvestorID
	ToInvestorID   id.InvestorID
	Units          int64
	ExecutionDate  time.Time
}

// Validate enforces the request-level contract before any evaluation.
func (r Request) Validate() error {
	if r.AssetID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "asset_id is required")
	}
	if r.FromInvestorID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "from_investor_id is required")
	}
	if r.ToInvestorID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "to_investor_id is required")
	}
	if r.Units <= 0 {
		return dErrors.New(dErrors.CodeValidation, "units must be positive")
	}
	if r.ExecutionDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "execution_date is required")
	}
	return nil
}

// ValidationResult is the outcome of a simulate or of the validation phase of
// an execute. Every check is reported and every failure appears in
// Violations, never just the first.
type ValidationResult struct {
	Valid            bool                          `json:"valid"`
	Violations       []string                      `json:"violations"`
	Checks           []ledger.CheckResult          `json:"checks"`
	Summary          string                        `json:"summary"`
	DecisionRecordID id.DecisionID                 `json:"decision_record_id"`
	CriteriaApplied  *eligibility.AppliedCriterion `json:"eligibility_criteria_applied"`
}
