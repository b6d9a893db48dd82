package eligibility

import (
	"context"
	"sync"
	"time"

	id "custos/pkg/domain"
)

// InMemoryStore holds criteria rows for development and tests.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows []*Criterion
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) ListApplicable(_ context.Context, fundID id.FundStructureID, investorType id.InvestorType, jurisdiction string, at time.Time) ([]*Criterion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Criterion
	for _, row := range s.rows {
		if row.FundStructureID != fundID || row.InvestorType != investorType {
			continue
		}
		if row.Jurisdiction != jurisdiction && row.Jurisdiction != id.JurisdictionWildcard {
			continue
		}
		if !row.ApplicableAt(at) {
			continue
		}
		clone := *row
		matched = append(matched, &clone)
	}
	return matched, nil
}

// Put inserts a criteria row. Seeding and test use only.
func (s *InMemoryStore) Put(row *Criterion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *row
	s.rows = append(s.rows, &clone)
}

// Supersede stamps the row with the given id, ending its applicability.
func (s *InMemoryStore) Supersede(criterionID id.CriterionID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ID == criterionID && row.SupersededAt == nil {
			t := at
			row.SupersededAt = &t
		}
	}
}
