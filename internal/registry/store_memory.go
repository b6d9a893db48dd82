package registry

import (
	"context"
	"sync"

	id "custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// InMemory holds reference data for development and tests.
type InMemory struct {
	mu        sync.RWMutex
	investors map[id.InvestorID]*Investor
	funds     map[id.FundStructureID]*FundStructure
	assets    map[id.AssetID]*Asset
}

func NewInMemory() *InMemory {
	return &InMemory{
		investors: make(map[id.InvestorID]*Investor),
		funds:     make(map[id.FundStructureID]*FundStructure),
		assets:    make(map[id.AssetID]*Asset),
	}
}

func (s *InMemory) GetInvestor(_ context.Context, investorID id.InvestorID) (*Investor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.investors[investorID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *InMemory) GetFundStructure(_ context.Context, fundID id.FundStructureID) (*FundStructure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fund, ok := s.funds[fundID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *fund
	return &cp, nil
}

func (s *InMemory) GetAsset(_ context.Context, assetID id.AssetID) (*Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[assetID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *asset
	return &cp, nil
}

// PutInvestor upserts an investor record. Reference data is owned elsewhere;
// this exists for seeding and tests.
func (s *InMemory) PutInvestor(inv *Investor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	s.investors[inv.ID] = &cp
}

// PutFundStructure upserts a fund structure record.
func (s *InMemory) PutFundStructure(fund *FundStructure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *fund
	s.funds[fund.ID] = &cp
}

// PutAsset upserts an asset record.
func (s *InMemory) PutAsset(asset *Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *asset
	s.assets[asset.ID] = &cp
}
