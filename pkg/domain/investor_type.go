package domain

import dErrors "custos/pkg/domain-errors"

// InvestorType is the regulatory classification of an investor. Eligibility
// criteria are keyed on it, so the set is closed.
type InvestorType string

const (
	InvestorTypeRetail           InvestorType = "retail"
	InvestorTypeSemiProfessional InvestorType = "semi_professional"
	InvestorTypeProfessional     InvestorType = "professional"
	InvestorTypeInstitutional    InvestorType = "institutional"
)

var validInvestorTypes = map[InvestorType]bool{
	InvestorTypeRetail:           true,
	InvestorTypeSemiProfessional: true,
	InvestorTypeProfessional:     true,
	InvestorTypeInstitutional:    true,
}

// ParseInvestorType constructs an InvestorType from external input.
func ParseInvestorType(s string) (InvestorType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "investor type cannot be empty")
	}
	t := InvestorType(s)
	if !validInvestorTypes[t] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid investor type")
	}
	return t, nil
}

// IsValid checks if the investor type is one of the supported enum values.
func (t InvestorType) IsValid() bool {
	return validInvestorTypes[t]
}

// JurisdictionWildcard matches any investor jurisdiction in eligibility
// criteria rows.
const JurisdictionWildcard = "*"
