package rules

import (
	"context"

	id "custos/pkg/domain"
)

// Store persists composite rules. Implementations return sentinel.ErrNotFound
// for unknown rule ids.
type Store interface {
	Create(ctx context.Context, rule *CompositeRule) error
	GetByID(ctx context.Context, ruleID id.RuleID) (*CompositeRule, error)
	// ListByAsset returns every rule for the asset, enabled or not, in
	// creation order.
	ListByAsset(ctx context.Context, assetID id.AssetID) ([]*CompositeRule, error)
	// ListEnabledByAsset returns only the rules the engine must evaluate.
	ListEnabledByAsset(ctx context.Context, assetID id.AssetID) ([]*CompositeRule, error)
	SetEnabled(ctx context.Context, ruleID id.RuleID, enabled bool) (*CompositeRule, error)
	Delete(ctx context.Context, ruleID id.RuleID) error
}
