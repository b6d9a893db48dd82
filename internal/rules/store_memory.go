package rules

import (
	"context"
	"sort"
	"sync"

	id "custos/pkg/domain"
	"custos/pkg/platform/sentinel"
	"custos/pkg/requestcontext"
)

// InMemoryStore holds composite rules for development and tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	rules map[id.RuleID]*CompositeRule
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rules: make(map[id.RuleID]*CompositeRule)}
}

func (s *InMemoryStore) Create(_ context.Context, rule *CompositeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; exists {
		return sentinel.ErrConflict
	}
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, ruleID id.RuleID) (*CompositeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRule(rule), nil
}

func (s *InMemoryStore) ListByAsset(_ context.Context, assetID id.AssetID) ([]*CompositeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(assetID, false), nil
}

func (s *InMemoryStore) ListEnabledByAsset(_ context.Context, assetID id.AssetID) ([]*CompositeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(assetID, true), nil
}

func (s *InMemoryStore) listLocked(assetID id.AssetID, enabledOnly bool) []*CompositeRule {
	var matched []*CompositeRule
	for _, rule := range s.rules {
		if rule.AssetID != assetID {
			continue
		}
		if enabledOnly && !rule.Enabled {
			continue
		}
		matched = append(matched, cloneRule(rule))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched
}

func (s *InMemoryStore) SetEnabled(ctx context.Context, ruleID id.RuleID, enabled bool) (*CompositeRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	rule.Enabled = enabled
	rule.UpdatedAt = requestcontext.Now(ctx)
	return cloneRule(rule), nil
}

func (s *InMemoryStore) Delete(_ context.Context, ruleID id.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[ruleID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.rules, ruleID)
	return nil
}

func cloneRule(rule *CompositeRule) *CompositeRule {
	clone := *rule
	clone.Conditions = append([]Condition(nil), rule.Conditions...)
	return &clone
}
