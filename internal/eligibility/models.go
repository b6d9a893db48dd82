// Package eligibility scores an investor against a fund structure's
// eligibility criteria and records the outcome in the decision ledger.
package eligibility

import (
	"time"

	"custos/internal/ledger"
	id "custos/pkg/domain"
)

// Criterion is one eligibility rule row for a fund structure. Rows are never
// mutated: superseding a rule creates a new row and stamps SupersededAt on the
// old one, so historical decisions stay attributable to the exact row applied.
type Criterion struct {
	ID              id.CriterionID  `json:"id"`
	FundStructureID id.FundStructureID `json:"fund_structure_id"`
	// Jurisdiction is an ISO 3166-1 alpha-2 code or the `*` wildcard.
	Jurisdiction string          `json:"jurisdiction"`
	InvestorType id.InvestorType `json:"investor_type"`
	// MinimumInvestment in minor currency units; 0 means no minimum.
	MinimumInvestment   int64  `json:"minimum_investment"`
	SuitabilityRequired bool   `json:"suitability_required"`
	// SourceReference cites the regulatory basis for the rule, e.g.
	// "KAGB §1 Abs. 19 Nr. 33".
	SourceReference string     `json:"source_reference"`
	EffectiveDate   time.Time  `json:"effective_date"`
	SupersededAt    *time.Time `json:"superseded_at,omitempty"`
}

// ApplicableAt reports whether the row is in force at the given instant.
func (c *Criterion) ApplicableAt(at time.Time) bool {
	if c.EffectiveDate.After(at) {
		return false
	}
	return c.SupersededAt == nil || c.SupersededAt.After(at)
}

// Request identifies what to evaluate. InvestmentAmount is optional; the
// minimum-investment check only runs when it is supplied.
type Request struct {
	InvestorID       id.InvestorID
	FundStructureID  id.FundStructureID
	InvestmentAmount *int64
}

// AppliedCriterion is the snapshot of the matched criteria row that travels
// with the evaluation result and into the decision record.
type AppliedCriterion struct {
	ID                  id.CriterionID `json:"id"`
	Jurisdiction        string         `json:"jurisdiction"`
	InvestorType        id.InvestorType `json:"investor_type"`
	MinimumInvestment   int64          `json:"minimum_investment"`
	SuitabilityRequired bool           `json:"suitability_required"`
	SourceReference     string         `json:"source_reference"`
	EffectiveDate       time.Time      `json:"effective_date"`
}

// Result is the full evaluation outcome. Eligible is the AND of every check;
// Checks reports each one whether it passed or not.
type Result struct {
	Eligible         bool                 `json:"eligible"`
	InvestorType     id.InvestorType      `json:"investor_type"`
	FundLegalForm    string               `json:"fund_legal_form"`
	Jurisdiction     string               `json:"jurisdiction"`
	Checks           []ledger.CheckResult `json:"checks"`
	CriteriaApplied  *AppliedCriterion    `json:"criteria_applied"`
	DecisionRecordID id.DecisionID        `json:"decision_record_id"`
}
