package onboarding

import (
	"context"

	id "custos/pkg/domain"
)

// Store persists onboarding applications.
// Implementations return sentinel.ErrNotFound for unknown ids and
// sentinel.ErrConflict when Update's expected status no longer matches the
// stored row. The compare-and-set is what serializes concurrent transitions:
// exactly one of two racing callers observes its expected status and wins.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, onboardingID id.OnboardingID) (*Record, error)
	// Update persists rec iff the stored status still equals expected.
	Update(ctx context.Context, rec *Record, expected Status) error
	ListByAsset(ctx context.Context, assetID id.AssetID) ([]*Record, error)
}
