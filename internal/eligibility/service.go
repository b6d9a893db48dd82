package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"custos/internal/eligibility/metrics"
	"custos/internal/ledger"
	"custos/internal/registry"
	id "custos/pkg/domain"
	dErrors "custos/pkg/domain-errors"
	"custos/pkg/platform/sentinel"
	"custos/pkg/requestcontext"
)

// Check rule names as they appear in results and decision records.
const (
	CheckInvestorType = "investor_type_eligible"
	CheckKYC          = "kyc_not_expired"
	CheckMinimum      = "minimum_investment"
	CheckSuitability  = "suitability"
)

// Service evaluates investors against fund eligibility criteria. Every
// standalone evaluation is persisted to the decision ledger, eligible or not.
type Service struct {
	investors registry.InvestorStore
	funds     registry.FundStore
	criteria  CriteriaStore
	ledger    *ledger.Service
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewService(
	investors registry.InvestorStore,
	funds registry.FundStore,
	criteria CriteriaStore,
	ledgerService *ledger.Service,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*Service, error) {
	if investors == nil || funds == nil || criteria == nil {
		return nil, fmt.Errorf("eligibility stores are required")
	}
	if ledgerService == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	return &Service{
		investors: investors,
		funds:     funds,
		criteria:  criteria,
		ledger:    ledgerService,
		logger:    logger,
		metrics:   m,
	}, nil
}

type inputSnapshot struct {
	InvestorID       id.InvestorID      `json:"investor_id"`
	FundStructureID  id.FundStructureID `json:"fund_structure_id"`
	InvestmentAmount *int64             `json:"investment_amount,omitempty"`
}

type ruleVersionSnapshot struct {
	Criterion *AppliedCriterion `json:"criterion"`
}

// Evaluate scores the investor against the fund's criteria and appends an
// eligibility_check record. Unknown investor or fund fails with not_found
// before any check runs and before anything reaches the ledger.
func (s *Service) Evaluate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	investor, err := s.investors.GetInvestor(ctx, req.InvestorID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "investor not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load investor")
	}
	fund, err := s.funds.GetFundStructure(ctx, req.FundStructureID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "fund structure not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load fund structure")
	}

	checks, applied, err := s.RunChecks(ctx, investor, fund, req.InvestmentAmount)
	if err != nil {
		return nil, err
	}

	eligible := true
	violations := 0
	for _, check := range checks {
		if !check.Passed {
			eligible = false
			violations++
			s.metrics.IncCheckFailure(check.Rule)
		}
	}

	input, err := json.Marshal(inputSnapshot{
		InvestorID:       req.InvestorID,
		FundStructureID:  req.FundStructureID,
		InvestmentAmount: req.InvestmentAmount,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot request")
	}
	versions, err := json.Marshal(ruleVersionSnapshot{Criterion: applied})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot criteria")
	}

	result := id.DecisionResultRejected
	if eligible {
		result = id.DecisionResultApproved
	}
	record, err := s.ledger.Record(ctx, ledger.Draft{
		DecisionType:  id.DecisionTypeEligibilityCheck,
		SubjectID:     req.InvestorID.String(),
		InputSnapshot: input,
		RuleVersions:  versions,
		Result:        result,
		ResultDetails: ledger.ResultDetails{
			Checks:         checks,
			Overall:        string(result),
			ViolationCount: violations,
		},
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncEvaluation(eligible)
	s.metrics.ObserveEvaluation(time.Since(start).Seconds())
	if s.logger != nil {
		s.logger.InfoContext(ctx, "eligibility evaluated",
			"investor_id", req.InvestorID,
			"fund_structure_id", req.FundStructureID,
			"eligible", eligible,
			"decision_id", record.ID,
		)
	}

	return &Result{
		Eligible:         eligible,
		InvestorType:     investor.Type,
		FundLegalForm:    fund.LegalForm,
		Jurisdiction:     investor.Jurisdiction,
		Checks:           checks,
		CriteriaApplied:  applied,
		DecisionRecordID: record.ID,
	}, nil
}

// RunChecks evaluates every eligibility check without touching the ledger.
// The transfer orchestrator uses this directly so a transfer validation stays
// a single decision record. All checks run even after a failure.
func (s *Service) RunChecks(ctx context.Context, investor *registry.Investor, fund *registry.FundStructure, amount *int64) ([]ledger.CheckResult, *AppliedCriterion, error) {
	now := requestcontext.Now(ctx)

	rows, err := s.criteria.ListApplicable(ctx, fund.ID, investor.Type, investor.Jurisdiction, now)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load eligibility criteria")
	}
	matched := selectCriterion(rows, investor.Jurisdiction)

	var applied *AppliedCriterion
	if matched != nil {
		applied = &AppliedCriterion{
			ID:                  matched.ID,
			Jurisdiction:        matched.Jurisdiction,
			InvestorType:        matched.InvestorType,
			MinimumInvestment:   matched.MinimumInvestment,
			SuitabilityRequired: matched.SuitabilityRequired,
			SourceReference:     matched.SourceReference,
			EffectiveDate:       matched.EffectiveDate,
		}
	}

	checks := make([]ledger.CheckResult, 0, 4)

	if matched == nil {
		checks = append(checks, ledger.CheckResult{
			Rule:    CheckInvestorType,
			Passed:  false,
			Message: "No eligibility criteria for this investor type/jurisdiction",
		})
	} else {
		checks = append(checks, ledger.CheckResult{
			Rule:    CheckInvestorType,
			Passed:  true,
			Message: fmt.Sprintf("Investor type %s eligible under %s", investor.Type, matched.SourceReference),
		})
	}

	if investor.KYCExpiry.Before(now) {
		checks = append(checks, ledger.CheckResult{
			Rule:    CheckKYC,
			Passed:  false,
			Message: fmt.Sprintf("KYC expired on %s", investor.KYCExpiry.Format("2006-01-02")),
		})
	} else {
		checks = append(checks, ledger.CheckResult{
			Rule:    CheckKYC,
			Passed:  true,
			Message: fmt.Sprintf("KYC valid until %s", investor.KYCExpiry.Format("2006-01-02")),
		})
	}

	if amount != nil && matched != nil && matched.MinimumInvestment > 0 {
		if *amount < matched.MinimumInvestment {
			checks = append(checks, ledger.CheckResult{
				Rule:    CheckMinimum,
				Passed:  false,
				Message: fmt.Sprintf("Investment amount %d is below minimum %d", *amount, matched.MinimumInvestment),
			})
		} else {
			checks = append(checks, ledger.CheckResult{
				Rule:    CheckMinimum,
				Passed:  true,
				Message: fmt.Sprintf("Investment amount %d meets minimum %d", *amount, matched.MinimumInvestment),
			})
		}
	}

	if matched != nil && matched.SuitabilityRequired {
		if investor.SuitabilityAssessed {
			checks = append(checks, ledger.CheckResult{
				Rule:    CheckSuitability,
				Passed:  true,
				Message: "Suitability assessment on file",
			})
		} else {
			checks = append(checks, ledger.CheckResult{
				Rule:    CheckSuitability,
				Passed:  false,
				Message: "Suitability assessment required but not on file",
			})
		}
	}

	return checks, applied, nil
}

// selectCriterion picks the row to apply. An exact jurisdiction match beats
// the wildcard; within each class the most recently effective row wins.
func selectCriterion(rows []*Criterion, jurisdiction string) *Criterion {
	var exact, wildcard *Criterion
	for _, row := range rows {
		switch row.Jurisdiction {
		case jurisdiction:
			if exact == nil || row.EffectiveDate.After(exact.EffectiveDate) {
				exact = row
			}
		case id.JurisdictionWildcard:
			if wildcard == nil || row.EffectiveDate.After(wildcard.EffectiveDate) {
				wildcard = row
			}
		}
	}
	if exact != nil {
		return exact
	}
	return wildcard
}
