package onboarding

import (
	"context"
	"sort"
	"sync"

	id "custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// InMemoryStore keeps onboarding applications in a map. Used by tests and the
// in-memory server profile.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.OnboardingID]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.OnboardingID]*Record)}
}

func (s *InMemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, onboardingID id.OnboardingID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[onboardingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *InMemoryStore) Update(_ context.Context, rec *Record, expected Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[rec.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expected {
		return sentinel.ErrConflict
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *InMemoryStore) ListByAsset(_ context.Context, assetID id.AssetID) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, rec := range s.records {
		if rec.AssetID == assetID {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneRecord(rec *Record) *Record {
	c := *rec
	if rec.EligibilityDecisionID != nil {
		v := *rec.EligibilityDecisionID
		c.EligibilityDecisionID = &v
	}
	if rec.ApprovalDecisionID != nil {
		v := *rec.ApprovalDecisionID
		c.ApprovalDecisionID = &v
	}
	if rec.RejectionReasons != nil {
		c.RejectionReasons = append([]string(nil), rec.RejectionReasons...)
	}
	return &c
}
