package transfer

import (
	"context"

	"custos/internal/ledger"
	id "custos/pkg/domain"
)

// HoldingStore owns holdings and the two atomic mutation paths. Both mutation
// methods append the given decision record inside the same transactional
// region as the unit move: the record and the mutation commit or fail
// together. Implementations return sentinel.ErrInsufficientUnits when the
// sender's units (or the asset's unallocated pool) cannot cover the request,
// re-checked under the lock.
type HoldingStore interface {
	GetHolding(ctx context.Context, investorID id.InvestorID, assetID id.AssetID) (*Holding, error)
	// AllocatedUnits is the sum of all holdings in the asset.
	AllocatedUnits(ctx context.Context, assetID id.AssetID) (int64, error)
	// ExecuteTransfer debits the sender, credits or creates the receiver
	// holding, records the transfer, and appends the decision record.
	ExecuteTransfer(ctx context.Context, t *Transfer, record *ledger.DecisionRecord) error
	// Allocate credits or creates the investor's holding from the asset's
	// unallocated pool (totalUnits minus currently allocated units).
	Allocate(ctx context.Context, investorID id.InvestorID, assetID id.AssetID, units, totalUnits int64, record *ledger.DecisionRecord) (*Holding, error)
}

// RulesStore reads the fixed transfer rule rows. GetActiveRules returns the
// highest-version row for the asset, or sentinel.ErrNotFound when the asset
// has none configured.
type RulesStore interface {
	GetActiveRules(ctx context.Context, assetID id.AssetID) (*Rules, error)
}
