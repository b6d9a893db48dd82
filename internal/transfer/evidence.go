package transfer

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"custos/internal/registry"
	dErrors "custos/pkg/domain-errors"
	"custos/pkg/platform/sentinel"
)

// evidence is everything a validation needs, gathered up front so the
// evaluation itself is pure.
type evidence struct {
	from   *registry.Investor
	to     *registry.Investor
	asset  *registry.Asset
	rules  *Rules
	sender *Holding
	fund   *registry.FundStructure
}

// gatherEvidence loads the parties, the asset, the rules row, and the
// sender's holding concurrently. A missing investor or asset is a not_found
// surfaced before any evaluation; a missing rules row falls back to the
// unrestricted default and a missing sender holding stays nil for the
// sufficient_units check to report.
func (s *Service) gatherEvidence(ctx context.Context, req Request) (*evidence, error) {
	ev := &evidence{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		investor, err := s.investors.GetInvestor(gctx, req.FromInvestorID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "sending investor not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sending investor")
		}
		ev.from = investor
		return nil
	})

	g.Go(func() error {
		investor, err := s.investors.GetInvestor(gctx, req.ToInvestorID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "receiving investor not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load receiving investor")
		}
		ev.to = investor
		return nil
	})

	g.Go(func() error {
		asset, err := s.assets.GetAsset(gctx, req.AssetID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "asset not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load asset")
		}
		ev.asset = asset
		return nil
	})

	g.Go(func() error {
		rules, err := s.rules.GetActiveRules(gctx, req.AssetID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				ev.rules = defaultRules(req.AssetID)
				return nil
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transfer rules")
		}
		ev.rules = rules
		return nil
	})

	g.Go(func() error {
		holding, err := s.holdings.GetHolding(gctx, req.FromInvestorID, req.AssetID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sender holding")
		}
		ev.sender = holding
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if ev.asset.FundStructureID != nil {
		fund, err := s.funds.GetFundStructure(ctx, *ev.asset.FundStructureID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "fund structure not found")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load fund structure")
		}
		ev.fund = fund
	}

	return ev, nil
}
