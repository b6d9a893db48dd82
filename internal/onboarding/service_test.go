package onboarding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custos/internal/eligibility"
	"custos/internal/ledger"
	"custos/internal/registry"
	"custos/internal/transfer"
	id "custos/pkg/domain"
	dErrors "custos/pkg/domain-errors"
	"custos/pkg/requestcontext"
)

// =============================================================================
// Onboarding Service Test Suite
// =============================================================================
// Justification for unit tests: the status machine's core guarantee is that an
// illegal transition fails with no mutation and no ledger write, and that the
// allocation claim serializes racing allocate calls. Both need direct store
// inspection.

type OnboardingServiceSuite struct {
	suite.Suite
	registry    *registry.InMemory
	store       *InMemoryStore
	criteria    *eligibility.InMemoryStore
	holdings    *transfer.InMemoryHoldingStore
	ledgerStore *ledger.InMemoryStore
	service     *Service

	now      time.Time
	fund     *registry.FundStructure
	asset    *registry.Asset
	investor *registry.Investor
}

func TestOnboardingServiceSuite(t *testing.T) {
	suite.Run(t, new(OnboardingServiceSuite))
}

func (s *OnboardingServiceSuite) SetupTest() {
	s.registry = registry.NewInMemory()
	s.store = NewInMemoryStore()
	s.criteria = eligibility.NewInMemoryStore()
	s.ledgerStore = ledger.NewInMemoryStore()
	s.holdings = transfer.NewInMemoryHoldingStore(s.ledgerStore)

	ledgerService, err := ledger.NewService(s.ledgerStore, nil, nil, nil)
	s.Require().NoError(err)

	eligService, err := eligibility.NewService(
		s.registry, s.registry, s.criteria, ledgerService, nil, nil)
	s.Require().NoError(err)

	s.service, err = NewService(
		s.store, s.registry, s.registry,
		eligService, s.holdings, ledgerService, nil, nil, nil)
	s.Require().NoError(err)

	s.now = time.Date(2026, 4, 15, 9, 0, 0, 0, time.UTC)

	s.fund = &registry.FundStructure{
		ID:           id.NewFundStructureID(),
		Name:         "Meridian Growth Fund",
		LegalForm:    "RAIF",
		Jurisdiction: "LU",
	}
	s.registry.PutFundStructure(s.fund)

	fundID := s.fund.ID
	s.asset = &registry.Asset{
		ID:              id.NewAssetID(),
		FundStructureID: &fundID,
		Name:            "Class B Units",
		TotalUnits:      100_000,
		UnitPrice:       250,
	}
	s.registry.PutAsset(s.asset)

	s.investor = &registry.Investor{
		ID:           id.NewInvestorID(),
		Name:         "Nora Feld",
		Jurisdiction: "DE",
		Type:         id.InvestorTypeProfessional,
		Accredited:   true,
		KYCExpiry:    s.now.AddDate(1, 0, 0),
	}
	s.registry.PutInvestor(s.investor)

	s.criteria.Put(&eligibility.Criterion{
		ID:              id.NewCriterionID(),
		FundStructureID: s.fund.ID,
		Jurisdiction:    "*",
		InvestorType:    id.InvestorTypeProfessional,
		SourceReference: "AIFMD Annex II",
		EffectiveDate:   s.now.AddDate(-2, 0, 0),
	})
}

func (s *OnboardingServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *OnboardingServiceSuite) submit(units int64) *Record {
	rec, err := s.service.Create(s.ctx(), CreateInput{
		InvestorID:     s.investor.ID,
		AssetID:        s.asset.ID,
		RequestedUnits: units,
	})
	s.Require().NoError(err)
	return rec
}

// submitApproved walks an application to approved through the normal path.
func (s *OnboardingServiceSuite) submitApproved(units int64) *Record {
	return s.submitApprovedFor(s.asset, units)
}

func (s *OnboardingServiceSuite) submitApprovedFor(asset *registry.Asset, units int64) *Record {
	rec, err := s.service.Create(s.ctx(), CreateInput{
		InvestorID:     s.investor.ID,
		AssetID:        asset.ID,
		RequestedUnits: units,
	})
	s.Require().NoError(err)
	rec, _, err = s.service.CheckEligibility(s.ctx(), rec.ID)
	s.Require().NoError(err)
	s.Require().Equal(StatusEligible, rec.Status)
	rec, err = s.service.Review(s.ctx(), rec.ID, ReviewInput{Decision: ReviewApproved})
	s.Require().NoError(err)
	return rec
}

// newFundAsset gives a subtest its own unit pool so allocation totals do not
// bleed between subtests.
func (s *OnboardingServiceSuite) newFundAsset(totalUnits int64) *registry.Asset {
	fundID := s.fund.ID
	asset := &registry.Asset{
		ID:              id.NewAssetID(),
		FundStructureID: &fundID,
		Name:            "Class C Units",
		TotalUnits:      totalUnits,
		UnitPrice:       250,
	}
	s.registry.PutAsset(asset)
	return asset
}

func (s *OnboardingServiceSuite) ledgerCount() int {
	records, err := s.ledgerStore.ListRecent(context.Background(), 100)
	s.Require().NoError(err)
	return len(records)
}

// =============================================================================
// Create Tests
// =============================================================================

func (s *OnboardingServiceSuite) TestCreate() {
	s.Run("opens in status applied with no decision links", func() {
		rec := s.submit(1_000)

		s.Equal(StatusApplied, rec.Status)
		s.Nil(rec.EligibilityDecisionID)
		s.Nil(rec.ApprovalDecisionID)
		s.Equal(s.now, rec.CreatedAt)
		s.Zero(s.ledgerCount())
	})

	s.Run("unknown investor fails not found", func() {
		_, err := s.service.Create(s.ctx(), CreateInput{
			InvestorID:     id.NewInvestorID(),
			AssetID:        s.asset.ID,
			RequestedUnits: 1_000,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown asset fails not found", func() {
		_, err := s.service.Create(s.ctx(), CreateInput{
			InvestorID:     s.investor.ID,
			AssetID:        id.NewAssetID(),
			RequestedUnits: 1_000,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("non-positive units fail validation", func() {
		_, err := s.service.Create(s.ctx(), CreateInput{
			InvestorID:     s.investor.ID,
			AssetID:        s.asset.ID,
			RequestedUnits: 0,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Eligibility Check Tests
// =============================================================================

func (s *OnboardingServiceSuite) TestCheckEligibility() {
	s.Run("eligible investor moves to eligible and stamps the decision", func() {
		rec := s.submit(1_000)
		rec, result, err := s.service.CheckEligibility(s.ctx(), rec.ID)
		s.Require().NoError(err)

		s.Equal(StatusEligible, rec.Status)
		s.True(result.Eligible)
		s.Require().NotNil(rec.EligibilityDecisionID)
		s.Equal(result.DecisionRecordID, *rec.EligibilityDecisionID)

		record, err := s.ledgerStore.GetByID(context.Background(), result.DecisionRecordID)
		s.Require().NoError(err)
		s.Equal(id.DecisionTypeEligibilityCheck, record.DecisionType)
	})

	s.Run("investment amount is requested units times unit price", func() {
		// 400 units * 250 = 100,000 sits below a 150,000 minimum.
		s.criteria.Put(&eligibility.Criterion{
			ID:                id.NewCriterionID(),
			FundStructureID:   s.fund.ID,
			Jurisdiction:      "DE",
			InvestorType:      id.InvestorTypeProfessional,
			MinimumInvestment: 150_000,
			SourceReference:   "Fund prospectus s.4",
			EffectiveDate:     s.now.AddDate(-1, 0, 0),
		})

		rec := s.submit(400)
		rec, result, err := s.service.CheckEligibility(s.ctx(), rec.ID)
		s.Require().NoError(err)

		s.Equal(StatusIneligible, rec.Status)
		s.False(result.Eligible)

		found := false
		for _, check := range result.Checks {
			if check.Rule == eligibility.CheckMinimum {
				found = true
				s.False(check.Passed)
				s.Contains(check.Message, "100000")
			}
		}
		s.True(found)
	})

	s.Run("retail investor with no criteria moves to ineligible", func() {
		retail := &registry.Investor{
			ID:           id.NewInvestorID(),
			Name:         "Pia Voss",
			Jurisdiction: "DE",
			Type:         id.InvestorTypeRetail,
			KYCExpiry:    s.now.AddDate(1, 0, 0),
		}
		s.registry.PutInvestor(retail)

		rec, err := s.service.Create(s.ctx(), CreateInput{
			InvestorID:     retail.ID,
			AssetID:        s.asset.ID,
			RequestedUnits: 1_000,
		})
		s.Require().NoError(err)

		rec, result, err := s.service.CheckEligibility(s.ctx(), rec.ID)
		s.Require().NoError(err)
		s.Equal(StatusIneligible, rec.Status)
		s.False(result.Eligible)
		s.NotNil(rec.EligibilityDecisionID)
	})

	s.Run("illegal source status fails invalid state with no ledger write", func() {
		rec := s.submit(1_000)
		_, _, err := s.service.CheckEligibility(s.ctx(), rec.ID)
		s.Require().NoError(err)

		before := s.ledgerCount()
		_, _, err = s.service.CheckEligibility(s.ctx(), rec.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Equal(before, s.ledgerCount())

		stored, err := s.service.Get(s.ctx(), rec.ID)
		s.Require().NoError(err)
		s.Equal(StatusEligible, stored.Status)
	})

	s.Run("asset outside a fund structure cannot be checked", func() {
		bare := &registry.Asset{
			ID:         id.NewAssetID(),
			Name:       "Direct Units",
			TotalUnits: 10_000,
			UnitPrice:  50,
		}
		s.registry.PutAsset(bare)

		rec, err := s.service.Create(s.ctx(), CreateInput{
			InvestorID:     s.investor.ID,
			AssetID:        bare.ID,
			RequestedUnits: 100,
		})
		s.Require().NoError(err)

		_, _, err = s.service.CheckEligibility(s.ctx(), rec.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		stored, err := s.service.Get(s.ctx(), rec.ID)
		s.Require().NoError(err)
		s.Equal(StatusApplied, stored.Status)
	})

	s.Run("unknown onboarding fails not found", func() {
		_, _, err := s.service.CheckEligibility(s.ctx(), id.NewOnboardingID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// Review Tests
// =============================================================================

func (s *OnboardingServiceSuite) TestReview() {
	s.Run("approval from eligible writes an onboarding_approval record", func() {
		rec := s.submit(1_000)
		rec, _, err := s.service.CheckEligibility(s.ctx(), rec.ID)
		s.Require().NoError(err)

		actorCtx := requestcontext.WithActor(s.ctx(), "reviewer@custos")
		rec, err = s.service.Review(actorCtx, rec.ID, ReviewInput{Decision: ReviewApproved})
		s.Require().NoError(err)

		s.Equal(StatusApproved, rec.Status)
		s.Equal("reviewer@custos", rec.ReviewedBy)
		s.Require().NotNil(rec.ApprovalDecisionID)

		record, err := s.ledgerStore.GetByID(context.Background(), *rec.ApprovalDecisionID)
		s.Require().NoError(err)
		s.Equal(id.DecisionTypeOnboardingApproval, record.DecisionType)
		s.Equal(id.DecisionResultApproved, record.Result)
	})

	s.Run("rejection straight from applied records the reasons", func() {
		rec := s.submit(1_000)
		rec, err := s.service.Review(s.ctx(), rec.ID, ReviewInput{
			Decision:         ReviewRejected,
			RejectionReasons: []string{"incomplete KYC file", "source of funds unclear"},
		})
		s.Require().NoError(err)

		s.Equal(StatusRejected, rec.Status)
		s.Equal([]string{"incomplete KYC file", "source of funds unclear"}, rec.RejectionReasons)

		record, err := s.ledgerStore.GetByID(context.Background(), *rec.ApprovalDecisionID)
		s.Require().NoError(err)
		s.Equal(id.DecisionResultRejected, record.Result)
		s.Equal(2, record.ResultDetails.ViolationCount)
		s.Contains(record.ResultDetails.Checks[0].Message, "incomplete KYC file")
	})

	s.Run("approval from applied is an invalid state", func() {
		rec := s.submit(1_000)

		before := s.ledgerCount()
		_, err := s.service.Review(s.ctx(), rec.ID, ReviewInput{Decision: ReviewApproved})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Equal(before, s.ledgerCount())
	})

	s.Run("review of a terminal application is an invalid state", func() {
		rec := s.submit(1_000)
		rec, err := s.service.Review(s.ctx(), rec.ID, ReviewInput{Decision: ReviewRejected})
		s.Require().NoError(err)
		s.True(rec.Status.Terminal())

		_, err = s.service.Review(s.ctx(), rec.ID, ReviewInput{Decision: ReviewApproved})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown decision fails validation", func() {
		rec := s.submit(1_000)
		_, err := s.service.Review(s.ctx(), rec.ID, ReviewInput{Decision: "deferred"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Allocation Tests
// =============================================================================

func (s *OnboardingServiceSuite) TestAllocate() {
	s.Run("credits the holding from the unallocated pool", func() {
		asset := s.newFundAsset(100_000)
		rec := s.submitApprovedFor(asset, 2_000)
		rec, holding, err := s.service.Allocate(s.ctx(), rec.ID)
		s.Require().NoError(err)

		s.Equal(StatusAllocated, rec.Status)
		s.Equal(int64(2_000), holding.Units)
		s.Equal(s.investor.ID, holding.InvestorID)

		allocated, err := s.holdings.AllocatedUnits(context.Background(), asset.ID)
		s.Require().NoError(err)
		s.Equal(int64(2_000), allocated)
	})

	s.Run("allocation appends an approved decision record", func() {
		rec := s.submitApprovedFor(s.newFundAsset(100_000), 2_000)
		before := s.ledgerCount()

		_, _, err := s.service.Allocate(s.ctx(), rec.ID)
		s.Require().NoError(err)
		s.Equal(before+1, s.ledgerCount())

		records, err := s.ledgerStore.ListRecent(context.Background(), 1)
		s.Require().NoError(err)
		s.Equal(id.DecisionTypeOnboardingApproval, records[0].DecisionType)
		s.Equal(id.DecisionResultApproved, records[0].Result)
		s.Equal(s.investor.ID.String(), records[0].SubjectID)
	})

	s.Run("allocate from non-approved fails with no mutation", func() {
		asset := s.newFundAsset(100_000)
		rec, err := s.service.Create(s.ctx(), CreateInput{
			InvestorID:     s.investor.ID,
			AssetID:        asset.ID,
			RequestedUnits: 2_000,
		})
		s.Require().NoError(err)

		before := s.ledgerCount()
		_, _, err = s.service.Allocate(s.ctx(), rec.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Equal(before, s.ledgerCount())

		allocated, err := s.holdings.AllocatedUnits(context.Background(), asset.ID)
		s.Require().NoError(err)
		s.Zero(allocated)
	})

	s.Run("allocate twice fails the second call", func() {
		asset := s.newFundAsset(100_000)
		rec := s.submitApprovedFor(asset, 2_000)
		_, _, err := s.service.Allocate(s.ctx(), rec.ID)
		s.Require().NoError(err)

		_, _, err = s.service.Allocate(s.ctx(), rec.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

		allocated, err := s.holdings.AllocatedUnits(context.Background(), asset.ID)
		s.Require().NoError(err)
		s.Equal(int64(2_000), allocated)
	})

	s.Run("pool exhaustion records a rejection and releases the claim", func() {
		asset := s.newFundAsset(1_000)
		rec := s.submitApprovedFor(asset, 1_001)

		_, _, err := s.service.Allocate(s.ctx(), rec.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeTransferFailed))

		var dErr *dErrors.Error
		s.Require().ErrorAs(err, &dErr)
		s.NotEmpty(dErr.Violations)

		records, err := s.ledgerStore.ListRecent(context.Background(), 1)
		s.Require().NoError(err)
		s.Equal(id.DecisionResultRejected, records[0].Result)

		// The claim is released so the application can be withdrawn.
		stored, err := s.service.Get(s.ctx(), rec.ID)
		s.Require().NoError(err)
		s.Equal(StatusApproved, stored.Status)

		allocated, err := s.holdings.AllocatedUnits(context.Background(), asset.ID)
		s.Require().NoError(err)
		s.Zero(allocated)
	})

	s.Run("existing holding is incremented not replaced", func() {
		asset := s.newFundAsset(100_000)
		s.holdings.PutHolding(&transfer.Holding{
			ID:         id.NewHoldingID(),
			InvestorID: s.investor.ID,
			AssetID:    asset.ID,
			Units:      500,
			AcquiredAt: s.now.AddDate(0, -6, 0),
		})

		rec := s.submitApprovedFor(asset, 2_000)
		_, holding, err := s.service.Allocate(s.ctx(), rec.ID)
		s.Require().NoError(err)
		s.Equal(int64(2_500), holding.Units)
	})
}

// =============================================================================
// Withdraw Tests
// =============================================================================

func (s *OnboardingServiceSuite) TestWithdraw() {
	s.Run("open application can be withdrawn", func() {
		rec := s.submit(1_000)
		rec, err := s.service.Withdraw(s.ctx(), rec.ID)
		s.Require().NoError(err)

		s.Equal(StatusWithdrawn, rec.Status)
		s.True(rec.Status.Terminal())
		s.Zero(s.ledgerCount())
	})

	s.Run("allocated application cannot be withdrawn", func() {
		rec := s.submitApproved(1_000)
		rec, _, err := s.service.Allocate(s.ctx(), rec.ID)
		s.Require().NoError(err)

		_, err = s.service.Withdraw(s.ctx(), rec.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

// =============================================================================
// Transition Table Tests
// =============================================================================

func TestStatusTransitions(t *testing.T) {
	terminal := []Status{StatusIneligible, StatusRejected, StatusAllocated, StatusWithdrawn}
	for _, status := range terminal {
		if !status.Terminal() {
			t.Errorf("%s should be terminal", status)
		}
	}
	open := []Status{StatusApplied, StatusEligible, StatusApproved}
	for _, status := range open {
		if status.Terminal() {
			t.Errorf("%s should not be terminal", status)
		}
		if !status.CanTransition(StatusWithdrawn) {
			t.Errorf("%s should allow withdrawal", status)
		}
	}
	if StatusApplied.CanTransition(StatusApproved) {
		t.Error("approval requires a prior eligibility result")
	}
	if !StatusApplied.CanTransition(StatusRejected) {
		t.Error("rejection straight from applied should be allowed")
	}
	if StatusEligible.CanTransition(StatusAllocated) {
		t.Error("allocation requires review approval")
	}
}
