package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"custos/internal/eligibility"
	"custos/internal/ledger"
	"custos/internal/onboarding/metrics"
	"custos/internal/registry"
	"custos/internal/transfer"
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

// Service drives the onboarding status machine. Transitions are serialized by
// the store's compare-and-set on the current status, so two racing calls on
// the same application resolve to exactly one winner.
type Service struct {
	store     Store
	investors registry.InvestorStore
	assets    registry.AssetStore
	elig      *eligibility.Service
	holdings  transfer.HoldingStore
	ledger    *ledger.Service
	auditor   AuditEmitter
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewService(
	store Store,
	investors registry.InvestorStore,
	assets registry.AssetStore,
	elig *eligibility.Service,
	holdings transfer.HoldingStore,
	ledgerService *ledger.Service,
	auditor AuditEmitter,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("onboarding store is required")
	}
	if investors == nil || assets == nil {
		return nil, fmt.Errorf("registry stores are required")
	}
	if elig == nil {
		return nil, fmt.Errorf("eligibility service is required")
	}
	if holdings == nil {
		return nil, fmt.Errorf("holding store is required")
	}
	if ledgerService == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	return &Service{
		store:     store,
		investors: investors,
		assets:    assets,
		elig:      elig,
		holdings:  holdings,
		ledger:    ledgerService,
		auditor:   auditor,
		logger:    logger,
		metrics:   m,
	}, nil
}

// Create opens a new application in status applied. The investor and asset
// must exist; nothing is evaluated yet and no decision record is written.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.investors.GetInvestor(ctx, in.InvestorID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "investor not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load investor")
	}
	if _, err := s.assets.GetAsset(ctx, in.AssetID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "asset not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load asset")
	}

	now := requestcontext.Now(ctx)
	rec := &Record{
		ID:             id.NewOnboardingID(),
		InvestorID:     in.InvestorID,
		AssetID:        in.AssetID,
		RequestedUnits: in.RequestedUnits,
		Status:         StatusApplied,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create onboarding")
	}

	s.metrics.IncSubmission()
	s.emitAudit(ctx, audit.ActionOnboardingSubmitted, rec, "", "")
	if s.logger != nil {
		s.logger.InfoContext(ctx, "onboarding submitted",
			"onboarding_id", rec.ID,
			"investor_id", rec.InvestorID,
			"asset_id", rec.AssetID,
			"requested_units", rec.RequestedUnits,
		)
	}
	return rec, nil
}

// Get returns one application.
func (s *Service) Get(ctx context.Context, onboardingID id.OnboardingID) (*Record, error) {
	rec, err := s.store.Get(ctx, onboardingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "onboarding not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load onboarding")
	}
	return rec, nil
}

// CheckEligibility evaluates the investor against the asset's fund criteria
// with investment_amount = requested_units * unit_price, and moves the
// application to eligible or ineligible. Only valid from applied; an illegal
// source status fails before any evaluation or ledger write.
func (s *Service) CheckEligibility(ctx context.Context, onboardingID id.OnboardingID) (*Record, *eligibility.Result, error) {
	rec, err := s.Get(ctx, onboardingID)
	if err != nil {
		return nil, nil, err
	}
	if !rec.Status.CanTransition(StatusEligible) {
		return nil, nil, invalidTransition(rec.Status, "check-eligibility")
	}

	asset, err := s.assets.GetAsset(ctx, rec.AssetID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "asset not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load asset")
	}
	if asset.FundStructureID == nil {
		return nil, nil, dErrors.New(dErrors.CodeInvalidInput,
			"asset is not issued under a fund structure")
	}

	amount := rec.RequestedUnits * asset.UnitPrice
	result, err := s.elig.Evaluate(ctx, eligibility.Request{
		InvestorID:       rec.InvestorID,
		FundStructureID:  *asset.FundStructureID,
		InvestmentAmount: &amount,
	})
	if err != nil {
		return nil, nil, err
	}

	from := rec.Status
	if result.Eligible {
		rec.Status = StatusEligible
	} else {
		rec.Status = StatusIneligible
	}
	rec.EligibilityDecisionID = &result.DecisionRecordID
	rec.UpdatedAt = requestcontext.Now(ctx)
	if err := s.persistTransition(ctx, rec, from); err != nil {
		return nil, nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "onboarding eligibility checked",
			"onboarding_id", rec.ID,
			"status", rec.Status,
			"decision_id", result.DecisionRecordID,
		)
	}
	return rec, result, nil
}

// Review records the reviewer's verdict. Approval requires a prior eligible
// result; rejection is also allowed straight from applied. The verdict is
// written to the ledger as an onboarding_approval decision before the status
// moves.
func (s *Service) Review(ctx context.Context, onboardingID id.OnboardingID, in ReviewInput) (*Record, error) {
	rec, err := s.Get(ctx, onboardingID)
	if err != nil {
		return nil, err
	}

	var target Status
	switch in.Decision {
	case ReviewApproved:
		target = StatusApproved
	case ReviewRejected:
		target = StatusRejected
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "decision must be approved or rejected")
	}
	if !rec.Status.CanTransition(target) {
		return nil, invalidTransition(rec.Status, "review")
	}

	record, err := s.recordReview(ctx, rec, in)
	if err != nil {
		return nil, err
	}

	from := rec.Status
	rec.Status = target
	rec.ApprovalDecisionID = &record.ID
	rec.ReviewedBy = record.DecidedBy
	if in.Decision == ReviewRejected {
		rec.RejectionReasons = in.RejectionReasons
	}
	rec.UpdatedAt = requestcontext.Now(ctx)
	if err := s.persistTransition(ctx, rec, from); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, audit.ActionOnboardingReviewed, rec, record.ID.String(), string(in.Decision))
	if s.logger != nil {
		s.logger.InfoContext(ctx, "onboarding reviewed",
			"onboarding_id", rec.ID,
			"decision", in.Decision,
			"reviewed_by", rec.ReviewedBy,
			"decision_id", record.ID,
		)
	}
	return rec, nil
}

// Allocate credits the investor's holding with the requested units from the
// asset's unallocated pool. Only valid from approved. The status move to
// allocated happens first and acts as the claim: of two racing calls exactly
// one passes the compare-and-set and proceeds to mutate the pool. On a failed
// allocation the claim is released back to approved.
func (s *Service) Allocate(ctx context.Context, onboardingID id.OnboardingID) (*Record, *transfer.Holding, error) {
	rec, err := s.Get(ctx, onboardingID)
	if err != nil {
		return nil, nil, err
	}
	if !rec.Status.CanTransition(StatusAllocated) {
		return nil, nil, invalidTransition(rec.Status, "allocate")
	}

	asset, err := s.assets.GetAsset(ctx, rec.AssetID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "asset not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load asset")
	}

	from := rec.Status
	rec.Status = StatusAllocated
	rec.UpdatedAt = requestcontext.Now(ctx)
	if err := s.persistTransition(ctx, rec, from); err != nil {
		return nil, nil, err
	}

	holding, err := s.allocate(ctx, rec, asset)
	if err != nil {
		s.release(ctx, rec, from)
		return nil, nil, err
	}

	s.metrics.IncTransition(string(StatusAllocated))
	s.metrics.AddAllocatedUnits(rec.RequestedUnits)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "onboarding units allocated",
			"onboarding_id", rec.ID,
			"investor_id", rec.InvestorID,
			"asset_id", rec.AssetID,
			"units", rec.RequestedUnits,
		)
	}
	return rec, holding, nil
}

// Withdraw closes a still-open application at the investor's request. Allowed
// from any non-terminal status; no decision record is written because no
// evaluation concluded.
func (s *Service) Withdraw(ctx context.Context, onboardingID id.OnboardingID) (*Record, error) {
	rec, err := s.Get(ctx, onboardingID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.CanTransition(StatusWithdrawn) {
		return nil, invalidTransition(rec.Status, "withdraw")
	}

	from := rec.Status
	rec.Status = StatusWithdrawn
	rec.UpdatedAt = requestcontext.Now(ctx)
	if err := s.persistTransition(ctx, rec, from); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, audit.ActionOnboardingWithdrawn, rec, "", "")
	return rec, nil
}

// allocate performs the pool-sourced holding credit. The decision record is
// appended by the holding store inside the same transactional region as the
// credit, so the mutation and its justification commit together.
func (s *Service) allocate(ctx context.Context, rec *Record, asset *registry.Asset) (*transfer.Holding, error) {
	record, err := s.ledger.Prepare(ctx, s.allocationDraft(rec, asset))
	if err != nil {
		return nil, err
	}

	holding, err := s.holdings.Allocate(ctx, rec.InvestorID, rec.AssetID, rec.RequestedUnits, asset.TotalUnits, record)
	if err != nil {
		if errors.Is(err, sentinel.ErrInsufficientUnits) {
			return nil, s.rejectAllocation(ctx, rec, asset)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate units")
	}
	s.ledger.Finalize(ctx, record)

	s.emitAudit(ctx, audit.ActionUnitsAllocated, rec, record.ID.String(), "allocated")
	return holding, nil
}

// rejectAllocation records the pool-exhaustion rejection before the failure
// surfaces, mirroring the transfer execute contract.
func (s *Service) rejectAllocation(ctx context.Context, rec *Record, asset *registry.Asset) error {
	allocated, err := s.holdings.AllocatedUnits(ctx, rec.AssetID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read allocated units")
	}
	violation := fmt.Sprintf("Unallocated pool holds %d units, %d requested",
		asset.TotalUnits-allocated, rec.RequestedUnits)

	draft := s.allocationDraft(rec, asset)
	draft.Result = id.DecisionResultRejected
	draft.ResultDetails = ledger.ResultDetails{
		Checks: []ledger.CheckResult{{
			Rule:    "unallocated_pool_sufficient",
			Passed:  false,
			Message: violation,
		}},
		Overall:        string(id.DecisionResultRejected),
		ViolationCount: 1,
	}
	if _, err := s.ledger.Record(ctx, draft); err != nil {
		return err
	}

	return dErrors.New(dErrors.CodeTransferFailed, "allocation failed").
		WithViolations([]string{violation})
}

func (s *Service) allocationDraft(rec *Record, asset *registry.Asset) ledger.Draft {
	assetID := rec.AssetID
	input, _ := json.Marshal(allocationSnapshot{
		OnboardingID:   rec.ID,
		InvestorID:     rec.InvestorID,
		AssetID:        rec.AssetID,
		RequestedUnits: rec.RequestedUnits,
	})
	versions, _ := json.Marshal(allocationVersions{
		ApprovalDecisionID: rec.ApprovalDecisionID,
		AssetTotalUnits:    asset.TotalUnits,
	})
	return ledger.Draft{
		DecisionType:  id.DecisionTypeOnboardingApproval,
		AssetID:       &assetID,
		SubjectID:     rec.InvestorID.String(),
		InputSnapshot: input,
		RuleVersions:  versions,
		Result:        id.DecisionResultApproved,
		ResultDetails: ledger.ResultDetails{
			Checks: []ledger.CheckResult{{
				Rule:    "unallocated_pool_sufficient",
				Passed:  true,
				Message: fmt.Sprintf("%d units allocated from the unallocated pool", rec.RequestedUnits),
			}},
			Overall: string(id.DecisionResultApproved),
		},
	}
}

// recordReview writes the onboarding_approval decision for a manual verdict.
func (s *Service) recordReview(ctx context.Context, rec *Record, in ReviewInput) (*ledger.DecisionRecord, error) {
	assetID := rec.AssetID
	result := id.DecisionResultApproved
	checks := []ledger.CheckResult{{
		Rule:    "manual_review",
		Passed:  true,
		Message: "Application approved by reviewer",
	}}
	violationCount := 0
	if in.Decision == ReviewRejected {
		result = id.DecisionResultRejected
		message := "Application rejected by reviewer"
		if len(in.RejectionReasons) > 0 {
			message = fmt.Sprintf("Application rejected: %s", strings.Join(in.RejectionReasons, "; "))
		}
		checks = []ledger.CheckResult{{Rule: "manual_review", Passed: false, Message: message}}
		violationCount = len(in.RejectionReasons)
		if violationCount == 0 {
			violationCount = 1
		}
	}

	input, _ := json.Marshal(reviewSnapshot{
		OnboardingID:     rec.ID,
		Decision:         in.Decision,
		RejectionReasons: in.RejectionReasons,
	})
	versions, _ := json.Marshal(reviewVersions{
		EligibilityDecisionID: rec.EligibilityDecisionID,
	})

	return s.ledger.Record(ctx, ledger.Draft{
		DecisionType:  id.DecisionTypeOnboardingApproval,
		AssetID:       &assetID,
		SubjectID:     rec.InvestorID.String(),
		InputSnapshot: input,
		RuleVersions:  versions,
		Result:        result,
		ResultDetails: ledger.ResultDetails{
			Checks:         checks,
			Overall:        string(result),
			ViolationCount: violationCount,
		},
	})
}

// persistTransition writes the mutated record and translates a lost
// compare-and-set into the invalid-state error the caller would have seen had
// it read the winner's status.
func (s *Service) persistTransition(ctx context.Context, rec *Record, expected Status) error {
	err := s.store.Update(ctx, rec, expected)
	if err == nil {
		if rec.Status != StatusAllocated {
			s.metrics.IncTransition(string(rec.Status))
		}
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "onboarding not found")
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.New(dErrors.CodeInvalidState,
			"onboarding status changed concurrently")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update onboarding")
}

// release hands the allocation claim back after a failed pool credit.
func (s *Service) release(ctx context.Context, rec *Record, previous Status) {
	rec.Status = previous
	if err := s.store.Update(ctx, rec, StatusAllocated); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to release allocation claim",
			"onboarding_id", rec.ID,
			"error", err,
		)
	}
}

func (s *Service) emitAudit(ctx context.Context, action audit.Action, rec *Record, decisionID, decision string) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		Subject:    rec.ID.String(),
		Action:     string(action),
		AssetID:    rec.AssetID.String(),
		DecisionID: decisionID,
		Decision:   decision,
		RequestID:  requestcontext.RequestID(ctx),
		ActorID:    requestcontext.Actor(ctx),
	}
	if err := s.auditor.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", action,
			"onboarding_id", rec.ID,
			"error", err,
		)
	}
}

func invalidTransition(from Status, operation string) error {
	return dErrors.New(dErrors.CodeInvalidState,
		fmt.Sprintf("cannot %s an onboarding in status %s", operation, from))
}

type allocationSnapshot struct {
	OnboardingID   id.OnboardingID `json:"onboarding_id"`
	InvestorID     id.InvestorID   `json:"investor_id"`
	AssetID        id.AssetID      `json:"asset_id"`
	RequestedUnits int64           `json:"requested_units"`
}

type allocationVersions struct {
	ApprovalDecisionID *id.DecisionID `json:"approval_decision_id"`
	AssetTotalUnits    int64          `json:"asset_total_units"`
}

type reviewVersions struct {
	EligibilityDecisionID *id.DecisionID `json:"eligibility_decision_id"`
}

type reviewSnapshot struct {
	OnboardingID     id.OnboardingID `json:"onboarding_id"`
	Decision         ReviewDecision  `json:"decision"`
	RejectionReasons []string        `json:"rejection_reasons,omitempty"`
}
