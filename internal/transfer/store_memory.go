package transfer

import (
	"context"
	"sync"

	"custos/internal/ledger"
	id "custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// numAssetShards spreads lock contention across assets. Every holding of one
// asset lives behind the same shard, so a transfer (two holdings, one asset)
// and an allocation (whole-asset pool arithmetic) each take exactly one lock.
const numAssetShards = 32

// InMemoryHoldingStore holds positions for development and tests. The
// transactional region of ExecuteTransfer/Allocate is the asset's shard
// mutex; the ledger append happens inside it, before any mutation, so a
// failed append leaves holdings untouched.
type InMemoryHoldingStore struct {
	shards    [numAssetShards]sync.Mutex
	mu        sync.RWMutex
	holdings  map[holdingKey]*Holding
	transfers map[id.TransferID]*Transfer
	ledger    *ledger.InMemoryStore
}

type holdingKey struct {
	investorID id.InvestorID
	assetID    id.AssetID
}

func NewInMemoryHoldingStore(ledgerStore *ledger.InMemoryStore) *InMemoryHoldingStore {
	return &InMemoryHoldingStore{
		holdings:  make(map[holdingKey]*Holding),
		transfers: make(map[id.TransferID]*Transfer),
		ledger:    ledgerStore,
	}
}

func assetShard(assetID id.AssetID) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	s := assetID.String()
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h % numAssetShards
}

func (s *InMemoryHoldingStore) GetHolding(_ context.Context, investorID id.InvestorID, assetID id.AssetID) (*Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	holding, ok := s.holdings[holdingKey{investorID, assetID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *holding
	return &clone, nil
}

func (s *InMemoryHoldingStore) AllocatedUnits(_ context.Context, assetID id.AssetID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allocatedLocked(assetID), nil
}

func (s *InMemoryHoldingStore) allocatedLocked(assetID id.AssetID) int64 {
	var total int64
	for key, holding := range s.holdings {
		if key.assetID == assetID {
			total += holding.Units
		}
	}
	return total
}

func (s *InMemoryHoldingStore) ExecuteTransfer(ctx context.Context, t *Transfer, record *ledger.DecisionRecord) error {
	shard := assetShard(t.AssetID)
	s.shards[shard].Lock()
	defer s.shards[shard].Unlock()

	s.mu.RLock()
	sender := s.holdings[holdingKey{t.FromInvestorID, t.AssetID}]
	s.mu.RUnlock()
	if sender == nil || sender.Units < t.Units {
		return sentinel.ErrInsufficientUnits
	}

	// Append before mutating: if the ledger rejects the record, the
	// holdings stay exactly as they were.
	if err := s.ledger.Append(ctx, record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sender.Units -= t.Units

	receiverKey := holdingKey{t.ToInvestorID, t.AssetID}
	if receiver, ok := s.holdings[receiverKey]; ok {
		receiver.Units += t.Units
	} else {
		s.holdings[receiverKey] = &Holding{
			ID:         id.NewHoldingID(),
			InvestorID: t.ToInvestorID,
			AssetID:    t.AssetID,
			Units:      t.Units,
			AcquiredAt: t.ExecutionDate,
		}
	}

	clone := *t
	s.transfers[t.ID] = &clone
	return nil
}

func (s *InMemoryHoldingStore) Allocate(ctx context.Context, investorID id.InvestorID, assetID id.AssetID, units, totalUnits int64, record *ledger.DecisionRecord) (*Holding, error) {
	shard := assetShard(assetID)
	s.shards[shard].Lock()
	defer s.shards[shard].Unlock()

	s.mu.RLock()
	allocated := s.allocatedLocked(assetID)
	s.mu.RUnlock()
	if totalUnits-allocated < units {
		return nil, sentinel.ErrInsufficientUnits
	}

	if err := s.ledger.Append(ctx, record); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := holdingKey{investorID, assetID}
	holding, ok := s.holdings[key]
	if ok {
		holding.Units += units
	} else {
		holding = &Holding{
			ID:         id.NewHoldingID(),
			InvestorID: investorID,
			AssetID:    assetID,
			Units:      units,
			AcquiredAt: record.DecidedAt,
		}
		s.holdings[key] = holding
	}
	clone := *holding
	return &clone, nil
}

// PutHolding inserts or replaces a holding. Seeding and test use only.
func (s *InMemoryHoldingStore) PutHolding(holding *Holding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *holding
	s.holdings[holdingKey{holding.InvestorID, holding.AssetID}] = &clone
}

// GetTransfer returns an executed transfer by id. Test use.
func (s *InMemoryHoldingStore) GetTransfer(transferID id.TransferID) (*Transfer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[transferID]
	if !ok {
		return nil, false
	}
	clone := *t
	return &clone, true
}

// InMemoryRulesStore holds transfer rule rows for development and tests.
type InMemoryRulesStore struct {
	mu   sync.RWMutex
	rows map[id.AssetID][]*Rules
}

func NewInMemoryRulesStore() *InMemoryRulesStore {
	return &InMemoryRulesStore{rows: make(map[id.AssetID][]*Rules)}
}

func (s *InMemoryRulesStore) GetActiveRules(_ context.Context, assetID id.AssetID) (*Rules, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.rows[assetID]
	if len(versions) == 0 {
		return nil, sentinel.ErrNotFound
	}
	active := versions[0]
	for _, row := range versions[1:] {
		if row.Version > active.Version {
			active = row
		}
	}
	clone := *active
	return &clone, nil
}

// Put inserts a rules row. Seeding and test use only.
func (s *InMemoryRulesStore) Put(rules *Rules) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rules
	s.rows[rules.AssetID] = append(s.rows[rules.AssetID], &clone)
}
