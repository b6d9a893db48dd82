package ledger

import (
	"context"
	"sync"
	"time"

	id "custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// InMemoryStore keeps the ledger in a slice ordered by sequence number. A
// single mutex serializes appends, which is exactly the global ordering the
// sequence number needs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []*DecisionRecord
	byID    map[id.DecisionID]int
	lastSeq int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[id.DecisionID]int)}
}

func (s *InMemoryStore) Append(_ context.Context, record *DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[record.ID]; exists {
		return sentinel.ErrConflict
	}

	s.lastSeq++
	record.SequenceNumber = s.lastSeq

	prevHash := ""
	if n := len(s.records); n > 0 {
		prevHash = s.records[n-1].RecordHash
	}
	seal(prevHash, record)

	// Store a copy so the caller can't mutate the ledger afterwards.
	cp := cloneRecord(record)
	s.byID[record.ID] = len(s.records)
	s.records = append(s.records, cp)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, decisionID id.DecisionID) (*DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[decisionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(s.records[idx]), nil
}

func (s *InMemoryStore) ListByAsset(_ context.Context, assetID id.AssetID, from, to time.Time) ([]*DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*DecisionRecord
	for _, r := range s.records {
		if r.AssetID == nil || *r.AssetID != assetID {
			continue
		}
		if !from.IsZero() && r.DecidedAt.Before(from) {
			continue
		}
		if !to.IsZero() && r.DecidedAt.After(to) {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	return out, nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]*DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]*DecisionRecord, 0, limit)
	for i := len(s.records) - 1; i >= len(s.records)-limit; i-- {
		out = append(out, cloneRecord(s.records[i]))
	}
	return out, nil
}

func (s *InMemoryStore) ListBySequence(_ context.Context, afterSeq int64, limit int) ([]*DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*DecisionRecord
	for _, r := range s.records {
		if r.SequenceNumber <= afterSeq {
			continue
		}
		out = append(out, cloneRecord(r))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneRecord(r *DecisionRecord) *DecisionRecord {
	cp := *r
	cp.InputSnapshot = append([]byte(nil), r.InputSnapshot...)
	cp.RuleVersions = append([]byte(nil), r.RuleVersions...)
	cp.ResultDetails.Checks = append([]CheckResult(nil), r.ResultDetails.Checks...)
	if r.AssetID != nil {
		a := *r.AssetID
		cp.AssetID = &a
	}
	return &cp
}
