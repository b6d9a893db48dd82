package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"custos/internal/rules/metrics"
	id "custos/pkg/domain"
	dErrors "custos/pkg/domain-errors"
	"custos/pkg/platform/sentinel"
	"custos/pkg/requestcontext"
)

// Service owns the composite rule lifecycle and runs the engine for the
// transfer orchestrator.
type Service struct {
	store   Store
	engine  *Engine
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewService(store Store, engine *Engine, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("rule engine is required")
	}
	return &Service{store: store, engine: engine, logger: logger, metrics: m}, nil
}

// CreateInput carries a new rule's fields. Conditions are validated against
// the field registry before anything is stored.
type CreateInput struct {
	AssetID     id.AssetID
	Name        string
	Description string
	Operator    Operator
	Conditions  []Condition
}

// Create validates and stores a new rule. New rules are enabled from the
// first evaluation after creation.
func (s *Service) Create(ctx context.Context, input CreateInput) (*CompositeRule, error) {
	now := requestcontext.Now(ctx)
	rule := &CompositeRule{
		ID:          id.NewRuleID(),
		AssetID:     input.AssetID,
		Name:        input.Name,
		Description: input.Description,
		Operator:    input.Operator,
		Conditions:  input.Conditions,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, rule); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "rule already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store rule")
	}

	s.metrics.IncLifecycle("created")
	if s.logger != nil {
		s.logger.InfoContext(ctx, "composite rule created",
			"rule_id", rule.ID,
			"asset_id", rule.AssetID,
			"name", rule.Name,
		)
	}
	return rule, nil
}

// Get returns a rule by id.
func (s *Service) Get(ctx context.Context, ruleID id.RuleID) (*CompositeRule, error) {
	rule, err := s.store.GetByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "rule not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load rule")
	}
	return rule, nil
}

// ListByAsset returns every rule configured for the asset.
func (s *Service) ListByAsset(ctx context.Context, assetID id.AssetID) ([]*CompositeRule, error) {
	ruleSet, err := s.store.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list rules")
	}
	return ruleSet, nil
}

// SetEnabled flips a rule on or off. The change applies to the very next
// evaluation for the asset.
func (s *Service) SetEnabled(ctx context.Context, ruleID id.RuleID, enabled bool) (*CompositeRule, error) {
	rule, err := s.store.SetEnabled(ctx, ruleID, enabled)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "rule not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update rule")
	}

	op := "disabled"
	if enabled {
		op = "enabled"
	}
	s.metrics.IncLifecycle(op)
	return rule, nil
}

// Delete removes a rule permanently.
func (s *Service) Delete(ctx context.Context, ruleID id.RuleID) error {
	if err := s.store.Delete(ctx, ruleID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "rule not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete rule")
	}
	s.metrics.IncLifecycle("deleted")
	return nil
}

// EvaluateForAsset runs every enabled rule for the asset against the transfer
// context. The returned rules slice snapshots exactly which rule versions were
// applied, for the decision record.
func (s *Service) EvaluateForAsset(ctx context.Context, assetID id.AssetID, tctx TransferContext) ([]Outcome, []*CompositeRule, error) {
	ruleSet, err := s.store.ListEnabledByAsset(ctx, assetID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load rules")
	}

	outcomes := s.engine.EvaluateAll(ruleSet, tctx)
	for _, outcome := range outcomes {
		s.metrics.IncEvaluation(outcome.Passed)
	}
	return outcomes, ruleSet, nil
}
