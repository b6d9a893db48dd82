package eligibility

import (
	"context"
	"time"

	id "custos/pkg/domain"
)

// CriteriaStore reads eligibility criteria rows. ListApplicable returns every
// non-superseded row effective at the given instant for the fund and investor
// type whose jurisdiction is either an exact match or the wildcard; the
// service resolves precedence between the two.
type CriteriaStore interface {
	ListApplicable(ctx context.Context, fundID id.FundStructureID, investorType id.InvestorType, jurisdiction string, at time.Time) ([]*Criterion, error)
}
