// Package domain defines the typed identifiers and closed value types shared
// across modules. IDs wrap uuid.UUID so the compiler keeps an InvestorID from
// ever being passed where an AssetID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "custos/pkg/domain-errors"
)

type (
	// InvestorID identifies an investor (natural or legal person).
	InvestorID uuid.UUID
	// FundStructureID identifies a fund structure (the legal vehicle).
	FundStructureID uuid.UUID
	// AssetID identifies a tokenized asset / unit class within a fund.
	AssetID uuid.UUID
	// HoldingID identifies a single investor-asset holding row.
	HoldingID uuid.UUID
	// TransferID identifies an executed unit transfer.
	TransferID uuid.UUID
	// DecisionID identifies an entry in the decision ledger.
	DecisionID uuid.UUID
	// RuleID identifies a composite rule.
	RuleID uuid.UUID
	// CriterionID identifies an eligibility criteria row.
	CriterionID uuid.UUID
	// OnboardingID identifies an onboarding application.
	OnboardingID uuid.UUID
)

// parseUUID enforces the shared invariant: IDs must be valid, non-nil UUIDs.
func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" must not be the nil UUID")
	}
	return u, nil
}

// ParseInvestorID constructs an InvestorID from external input.
func ParseInvestorID(s string) (InvestorID, error) {
	u, err := parseUUID(s, "investor id")
	return InvestorID(u), err
}

// ParseFundStructureID constructs a FundStructureID from external input.
func ParseFundStructureID(s string) (FundStructureID, error) {
	u, err := parseUUID(s, "fund structure id")
	return FundStructureID(u), err
}

// ParseAssetID constructs an AssetID from external input.
func ParseAssetID(s string) (AssetID, error) {
	u, err := parseUUID(s, "asset id")
	return AssetID(u), err
}

// ParseDecisionID constructs a DecisionID from external input.
func ParseDecisionID(s string) (DecisionID, error) {
	u, err := parseUUID(s, "decision id")
	return DecisionID(u), err
}

// ParseRuleID constructs a RuleID from external input.
func ParseRuleID(s string) (RuleID, error) {
	u, err := parseUUID(s, "rule id")
	return RuleID(u), err
}

// ParseCriterionID constructs a CriterionID from external input.
func ParseCriterionID(s string) (CriterionID, error) {
	u, err := parseUUID(s, "criterion id")
	return CriterionID(u), err
}

// ParseTransferID constructs a TransferID from external input.
func ParseTransferID(s string) (TransferID, error) {
	u, err := parseUUID(s, "transfer id")
	return TransferID(u), err
}

// ParseHoldingID constructs a HoldingID from external input.
func ParseHoldingID(s string) (HoldingID, error) {
	u, err := parseUUID(s, "holding id")
	return HoldingID(u), err
}

// ParseOnboardingID constructs an OnboardingID from external input.
func ParseOnboardingID(s string) (OnboardingID, error) {
	u, err := parseUUID(s, "onboarding id")
	return OnboardingID(u), err
}

func (i InvestorID) String() string      { return uuid.UUID(i).String() }
func (i FundStructureID) String() string { return uuid.UUID(i).String() }
func (i AssetID) String() string         { return uuid.UUID(i).String() }
func (i HoldingID) String() string       { return uuid.UUID(i).String() }
func (i TransferID) String() string      { return uuid.UUID(i).String() }
func (i DecisionID) String() string      { return uuid.UUID(i).String() }
func (i RuleID) String() string          { return uuid.UUID(i).String() }
func (i CriterionID) String() string     { return uuid.UUID(i).String() }
func (i OnboardingID) String() string    { return uuid.UUID(i).String() }

// The IDs implement encoding.TextMarshaler/TextUnmarshaler so they travel as
// canonical UUID strings in JSON payloads and snapshots.

func (i InvestorID) MarshalText() ([]byte, error)      { return []byte(i.String()), nil }
func (i FundStructureID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i AssetID) MarshalText() ([]byte, error)         { return []byte(i.String()), nil }
func (i HoldingID) MarshalText() ([]byte, error)       { return []byte(i.String()), nil }
func (i TransferID) MarshalText() ([]byte, error)      { return []byte(i.String()), nil }
func (i DecisionID) MarshalText() ([]byte, error)      { return []byte(i.String()), nil }
func (i RuleID) MarshalText() ([]byte, error)          { return []byte(i.String()), nil }
func (i CriterionID) MarshalText() ([]byte, error)     { return []byte(i.String()), nil }
func (i OnboardingID) MarshalText() ([]byte, error)    { return []byte(i.String()), nil }

func (i *InvestorID) UnmarshalText(b []byte) error {
	v, err := ParseInvestorID(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func (i *FundStructureID) UnmarshalText(b []byte) error {
	v, err := ParseFundStructureID(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func (i *AssetID) UnmarshalText(b []byte) error {
	v, err := ParseAssetID(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func (i *HoldingID) UnmarshalText(b []byte) error {
	v, err := ParseHoldingID(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func (i *TransferID) UnmarshalText(b []byte) error {
	v, err := ParseTransferID(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func (i *DecisionID) UnmarshalText(b []byte) error {
	v, err := ParseDecisionID(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func (i *RuleID) UnmarshalText(b []byte) error {
	v, err := ParseRuleID(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func (i *CriterionID) UnmarshalText(b []byte) error {
	v, err := ParseCriterionID(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func (i *OnboardingID) UnmarshalText(b []byte) error {
	v, err := ParseOnboardingID(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func (i InvestorID) IsNil() bool      { return uuid.UUID(i) == uuid.Nil }
func (i FundStructureID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }
func (i AssetID) IsNil() bool         { return uuid.UUID(i) == uuid.Nil }
func (i DecisionID) IsNil() bool      { return uuid.UUID(i) == uuid.Nil }
func (i OnboardingID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

// NewDecisionID mints a fresh ledger identifier.
func NewDecisionID() DecisionID { return DecisionID(uuid.New()) }

// NewRuleID mints a fresh composite rule identifier.
func NewRuleID() RuleID { return RuleID(uuid.New()) }

// NewTransferID mints a fresh transfer identifier.
func NewTransferID() TransferID { return TransferID(uuid.New()) }

// NewHoldingID mints a fresh holding identifier.
func NewHoldingID() HoldingID { return HoldingID(uuid.New()) }

// NewOnboardingID mints a fresh onboarding identifier.
func NewOnboardingID() OnboardingID { return OnboardingID(uuid.New()) }

// NewInvestorID mints a fresh investor identifier. Seeding and test use; live
// investor ids come from the administration system.
func NewInvestorID() InvestorID { return InvestorID(uuid.New()) }

// NewFundStructureID mints a fresh fund structure identifier.
func NewFundStructureID() FundStructureID { return FundStructureID(uuid.New()) }

// NewAssetID mints a fresh asset identifier.
func NewAssetID() AssetID { return AssetID(uuid.New()) }

// NewCriterionID mints a fresh eligibility criterion identifier.
func NewCriterionID() CriterionID { return CriterionID(uuid.New()) }
