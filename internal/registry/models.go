// Package registry exposes the reference data the engine evaluates against:
// investors, fund structures, and assets. These records are owned by external
// administration systems; the engine consumes them read-only.
package registry

import (
	"time"

	id "custos/pkg/domain"
)

// Investor is the evaluated party on both sides of a transfer.
type Investor struct {
	ID           id.InvestorID
	Name         string
	Jurisdiction string // ISO 3166-1 alpha-2
	Type         id.InvestorType
	Accredited   bool
	// SuitabilityAssessed records whether a suitability assessment is on
	// file for this investor.
	SuitabilityAssessed bool
	KYCExpiry           time.Time
}

// FundStructure is the legal vehicle an asset belongs to.
type FundStructure struct {
	ID           id.FundStructureID
	Name         string
	LegalForm    string // e.g. "SICAV", "RAIF", "LP"
	Jurisdiction string
}

// Asset is a unit class whose transfers and allocations the engine governs.
type Asset struct {
	ID id.AssetID
	// FundStructureID is nil for assets issued outside a fund wrapper;
	// eligibility evaluation only applies when it is set.
	FundStructureID *id.FundStructureID
	Name            string
	TotalUnits      int64
	// UnitPrice in minor currency units; onboarding eligibility uses
	// requested_units * UnitPrice as the investment amount.
	UnitPrice int64
}
