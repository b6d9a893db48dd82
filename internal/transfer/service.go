package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"custos/internal/eligibility"
	"custos/internal/ledger"
	"custos/internal/registry"
	"custos/internal/rules"
	"custos/internal/transfer/metrics"
	id "custos/pkg/domain"
	dErrors "custos/pkg/domain-errors"
	audit "custos/pkg/platform/audit"
	"custos/pkg/platform/sentinel"
	"custos/pkg/requestcontext"
)

// AuditEmitter is the side-channel event sink.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service composes eligibility, the fixed rules, and the composite rule
// engine into simulate/execute, and owns the atomic unit move.
type Service struct {
	investors registry.InvestorStore
	funds     registry.FundStore
	assets    registry.AssetStore
	holdings  HoldingStore
	rules     RulesStore
	composite *rules.Service
	elig      *eligibility.Service
	ledger    *ledger.Service
	auditor   AuditEmitter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

func NewService(
	investors registry.InvestorStore,
	funds registry.FundStore,
	assets registry.AssetStore,
	holdings HoldingStore,
	rulesStore RulesStore,
	composite *rules.Service,
	elig *eligibility.Service,
	ledgerService *ledger.Service,
	auditor AuditEmitter,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*Service, error) {
	if investors == nil || funds == nil || assets == nil {
		return nil, fmt.Errorf("registry stores are required")
	}
	if holdings == nil || rulesStore == nil {
		return nil, fmt.Errorf("holding and rules stores are required")
	}
	if composite == nil {
		return nil, fmt.Errorf("composite rule service is required")
	}
	if elig == nil {
		return nil, fmt.Errorf("eligibility service is required")
	}
	if ledgerService == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	return &Service{
		investors: investors,
		funds:     funds,
		assets:    assets,
		holdings:  holdings,
		rules:     rulesStore,
		composite: composite,
		elig:      elig,
		ledger:    ledgerService,
		auditor:   auditor,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("custos.transfer"),
	}, nil
}

// evaluation is the outcome of the shared validation phase.
type evaluation struct {
	checks          []ledger.CheckResult
	violations      []string
	criteriaApplied *eligibility.AppliedCriterion
	evidence        *evidence
	ruleVersions    json.RawMessage
	input           json.RawMessage
}

// Simulate validates a proposed transfer without mutating anything. A
// decision record of type transfer_validation with result simulated is
// written for every call.
func (s *Service) Simulate(ctx context.Context, req Request) (*ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "transfer.simulate")
	defer span.End()

	start := time.Now()
	eval, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	record, err := s.ledger.Record(ctx, s.draft(req, eval, id.DecisionResultSimulated))
	if err != nil {
		return nil, err
	}

	valid := len(eval.violations) == 0
	s.metrics.IncValidation("simulate", valid)
	s.metrics.ObserveValidation(time.Since(start).Seconds())

	return s.buildResult(eval, record.ID), nil
}

// Execute re-validates exactly as Simulate and, when valid, atomically moves
// the units, records the transfer, and appends the approving decision record.
// When invalid, the rejection is recorded first and the returned error
// carries every violation.
func (s *Service) Execute(ctx context.Context, req Request) (*Transfer, *ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "transfer.execute",
		trace.WithAttributes(attribute.String("asset_id", req.AssetID.String())))
	defer span.End()

	start := time.Now()
	eval, err := s.validate(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	if len(eval.violations) > 0 {
		result, err := s.reject(ctx, req, eval)
		if err != nil {
			return nil, nil, err
		}
		return nil, result, dErrors.New(dErrors.CodeTransferFailed, "transfer validation failed").
			WithViolations(eval.violations)
	}

	record, err := s.ledger.Prepare(ctx, s.draft(req, eval, id.DecisionResultApproved))
	if err != nil {
		return nil, nil, err
	}

	t := &Transfer{
		ID:               id.NewTransferID(),
		AssetID:          req.AssetID,
		FromInvestorID:   req.FromInvestorID,
		ToInvestorID:     req.ToInvestorID,
		Units:            req.Units,
		ExecutionDate:    req.ExecutionDate,
		DecisionRecordID: record.ID,
		CreatedAt:        requestcontext.Now(ctx),
	}

	mctx, mspan := s.tracer.Start(ctx, "transfer.mutate")
	err = s.holdings.ExecuteTransfer(mctx, t, record)
	mspan.End()
	if err != nil {
		if errors.Is(err, sentinel.ErrInsufficientUnits) {
			// A concurrent execute depleted the sender between the
			// evidence read and the lock. Record the rejection and
			// report it like any other failed validation.
			violation := "Sender no longer holds sufficient units"
			eval.violations = append(eval.violations, violation)
			result, rerr := s.reject(ctx, req, eval)
			if rerr != nil {
				return nil, nil, rerr
			}
			return nil, result, dErrors.New(dErrors.CodeTransferFailed, "transfer validation failed").
				WithViolations(eval.violations)
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to execute transfer")
	}
	s.ledger.Finalize(ctx, record)

	s.metrics.IncValidation("execute", true)
	s.metrics.IncExecution()
	s.metrics.ObserveValidation(time.Since(start).Seconds())

	s.emitAudit(ctx, audit.ActionTransferExecuted, req, record.ID)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "transfer executed",
			"transfer_id", t.ID,
			"asset_id", req.AssetID,
			"units", req.Units,
			"decision_id", record.ID,
		)
	}

	return t, s.buildResult(eval, record.ID), nil
}

// reject writes the rejection decision record and emits the audit event; the
// TRANSFER_FAILED error is always preceded by this write.
func (s *Service) reject(ctx context.Context, req Request, eval *evaluation) (*ValidationResult, error) {
	record, err := s.ledger.Record(ctx, s.draft(req, eval, id.DecisionResultRejected))
	if err != nil {
		return nil, err
	}

	s.metrics.IncValidation("execute", false)
	for _, check := range eval.checks {
		if !check.Passed {
			s.metrics.IncViolation(check.Rule)
		}
	}

	s.emitAudit(ctx, audit.ActionTransferRejected, req, record.ID)
	return s.buildResult(eval, record.ID), nil
}

// validate runs the full evaluation: evidence gathering, eligibility of the
// receiver when the asset sits in a fund, the fixed rules, and every enabled
// composite rule. Checks and violations aggregate across all three sources.
func (s *Service) validate(ctx context.Context, req Request) (*evaluation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ectx, espan := s.tracer.Start(ctx, "transfer.evidence")
	ev, err := s.gatherEvidence(ectx, req)
	espan.End()
	if err != nil {
		return nil, err
	}

	var checks []ledger.CheckResult
	var criteriaApplied *eligibility.AppliedCriterion

	if ev.fund != nil {
		amount := req.Units * ev.asset.UnitPrice
		eligChecks, applied, err := s.elig.RunChecks(ctx, ev.to, ev.fund, &amount)
		if err != nil {
			return nil, err
		}
		checks = append(checks, eligChecks...)
		criteriaApplied = applied
	}

	checks = append(checks, evaluateFixedRules(req, ev.rules, ev.sender, ev.to)...)

	outcomes, ruleSet, err := s.composite.EvaluateForAsset(ctx, req.AssetID, rules.TransferContext{
		FromJurisdiction: ev.from.Jurisdiction,
		FromAccredited:   ev.from.Accredited,
		ToJurisdiction:   ev.to.Jurisdiction,
		ToAccredited:     ev.to.Accredited,
		Units:            req.Units,
	})
	if err != nil {
		return nil, err
	}
	for _, outcome := range outcomes {
		message := "Composite rule satisfied"
		if !outcome.Passed {
			message = "Composite rule violated"
			if outcome.Description != "" {
				message = outcome.Description
			}
		}
		checks = append(checks, ledger.CheckResult{
			Rule:    outcome.Name,
			Passed:  outcome.Passed,
			Message: message,
		})
	}

	var violations []string
	for _, check := range checks {
		if !check.Passed {
			violations = append(violations, fmt.Sprintf("%s: %s", check.Rule, check.Message))
		}
	}

	input, err := json.Marshal(requestSnapshot{
		AssetID:        req.AssetID,
		FromInvestorID: req.FromInvestorID,
		ToInvestorID:   req.ToInvestorID,
		Units:          req.Units,
		ExecutionDate:  req.ExecutionDate,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot request")
	}

	versions, err := json.Marshal(versionSnapshot{
		TransferRulesVersion: ev.rules.Version,
		CompositeRules:       compositeVersions(ruleSet),
		Criterion:            criteriaApplied,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot rule versions")
	}

	return &evaluation{
		checks:          checks,
		violations:      violations,
		criteriaApplied: criteriaApplied,
		evidence:        ev,
		ruleVersions:    versions,
		input:           input,
	}, nil
}

type requestSnapshot struct {
	AssetID        id.AssetID    `json:"asset_id"`
	FromInvestorID id.InvestorID `json:"from_investor_id"`
	ToInvestorID   id.InvestorID `json:"to_investor_id"`
	Units          int64         `json:"units"`
	ExecutionDate  time.Time     `json:"execution_date"`
}

type versionSnapshot struct {
	TransferRulesVersion int64                         `json:"transfer_rules_version"`
	CompositeRules       []compositeVersion            `json:"composite_rules"`
	Criterion            *eligibility.AppliedCriterion `json:"criterion"`
}

type compositeVersion struct {
	ID        id.RuleID `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

func compositeVersions(ruleSet []*rules.CompositeRule) []compositeVersion {
	versions := make([]compositeVersion, 0, len(ruleSet))
	for _, rule := range ruleSet {
		versions = append(versions, compositeVersion{
			ID:        rule.ID,
			Name:      rule.Name,
			UpdatedAt: rule.UpdatedAt,
		})
	}
	return versions
}

func (s *Service) draft(req Request, eval *evaluation, result id.DecisionResult) ledger.Draft {
	assetID := req.AssetID
	overall := string(result)
	return ledger.Draft{
		DecisionType:  id.DecisionTypeTransferValidation,
		AssetID:       &assetID,
		SubjectID:     req.FromInvestorID.String(),
		InputSnapshot: eval.input,
		RuleVersions:  eval.ruleVersions,
		Result:        result,
		ResultDetails: ledger.ResultDetails{
			Checks:         eval.checks,
			Overall:        overall,
			ViolationCount: len(eval.violations),
		},
	}
}

func (s *Service) buildResult(eval *evaluation, recordID id.DecisionID) *ValidationResult {
	valid := len(eval.violations) == 0
	passed := 0
	for _, check := range eval.checks {
		if check.Passed {
			passed++
		}
	}
	return &ValidationResult{
		Valid:            valid,
		Violations:       eval.violations,
		Checks:           eval.checks,
		Summary:          fmt.Sprintf("%d of %d checks passed, %d violations", passed, len(eval.checks), len(eval.violations)),
		DecisionRecordID: recordID,
		CriteriaApplied:  eval.criteriaApplied,
	}
}

func (s *Service) emitAudit(ctx context.Context, action audit.Action, req Request, decisionID id.DecisionID) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Subject:    req.FromInvestorID.String(),
		Action:     string(action),
		AssetID:    req.AssetID.String(),
		DecisionID: decisionID.String(),
		RequestID:  requestcontext.RequestID(ctx),
		ActorID:    requestcontext.Actor(ctx),
	}
	if err := s.auditor.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "transfer audit emit failed",
			"action", action,
			"decision_id", decisionID,
			"error", err,
		)
	}
}
