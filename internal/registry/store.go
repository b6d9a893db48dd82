package registry

import (
	"context"

	id "custos/pkg/domain"
)

// InvestorStore reads investor reference data.
// Implementations return sentinel.ErrNotFound for unknown ids.
type InvestorStore interface {
	GetInvestor(ctx context.Context, investorID id.InvestorID) (*Investor, error)
}

// FundStore reads fund structure reference data.
type FundStore interface {
	GetFundStructure(ctx context.Context, fundID id.FundStructureID) (*FundStructure, error)
}

// AssetStore reads asset reference data.
type AssetStore interface {
	GetAsset(ctx context.Context, assetID id.AssetID) (*Asset, error)
}
