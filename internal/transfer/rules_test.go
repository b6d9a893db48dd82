package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custos/internal/ledger"
	"custos/internal/registry"
	id "custos/pkg/domain"
)

func checkByRule(t *testing.T, checks []ledger.CheckResult, rule string) ledger.CheckResult {
	t.Helper()
	for _, check := range checks {
		if check.Rule == rule {
			return check
		}
	}
	require.Failf(t, "check missing", "no check named %s", rule)
	return ledger.CheckResult{}
}

func TestFixedRules(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	from := id.NewInvestorID()
	to := id.NewInvestorID()
	assetID := id.NewAssetID()

	receiver := &registry.Investor{ID: to, Jurisdiction: "DE", Accredited: true}
	holding := &Holding{InvestorID: from, AssetID: assetID, Units: 100_000, AcquiredAt: now}
	request := Request{
		AssetID:        assetID,
		FromInvestorID: from,
		ToInvestorID:   to,
		Units:          50_000,
		ExecutionDate:  now,
	}

	t.Run("unrestricted rules pass everything", func(t *testing.T) {
		checks := evaluateFixedRules(request, defaultRules(assetID), holding, receiver)
		assert.Len(t, checks, 6)
		for _, check := range checks {
			assert.True(t, check.Passed, check.Rule)
		}
	})

	t.Run("all rules evaluate even when the first fails", func(t *testing.T) {
		selfReq := request
		selfReq.ToInvestorID = from
		checks := evaluateFixedRules(selfReq, defaultRules(assetID), holding, receiver)
		assert.Len(t, checks, 6)
		assert.False(t, checkByRule(t, checks, CheckSelfTransfer).Passed)
	})

	t.Run("qualification fails for unaccredited receiver regardless of other fields", func(t *testing.T) {
		rules := defaultRules(assetID)
		rules.QualificationRequired = true
		unaccredited := &registry.Investor{ID: to, Jurisdiction: "DE", Accredited: false}

		checks := evaluateFixedRules(request, rules, holding, unaccredited)
		assert.False(t, checkByRule(t, checks, CheckQualification).Passed)
	})

	t.Run("lockup blocks execution on the acquisition day", func(t *testing.T) {
		rules := defaultRules(assetID)
		rules.LockupDays = 90

		checks := evaluateFixedRules(request, rules, holding, receiver)
		lockup := checkByRule(t, checks, CheckLockup)
		assert.False(t, lockup.Passed)
		assert.Contains(t, lockup.Message, "locked up until")
	})

	t.Run("lockup clears 91 days after acquisition", func(t *testing.T) {
		rules := defaultRules(assetID)
		rules.LockupDays = 90

		late := request
		late.ExecutionDate = now.AddDate(0, 0, 91)
		checks := evaluateFixedRules(late, rules, holding, receiver)
		assert.True(t, checkByRule(t, checks, CheckLockup).Passed)
	})

	t.Run("jurisdiction whitelist blocks non-members", func(t *testing.T) {
		rules := defaultRules(assetID)
		rules.JurisdictionWhitelist = []string{"US", "GB"}

		checks := evaluateFixedRules(request, rules, holding, receiver)
		assert.False(t, checkByRule(t, checks, CheckJurisdiction).Passed)

		rules.JurisdictionWhitelist = []string{"DE"}
		checks = evaluateFixedRules(request, rules, holding, receiver)
		assert.True(t, checkByRule(t, checks, CheckJurisdiction).Passed)
	})

	t.Run("nil transfer whitelist is unrestricted, empty list permits nobody", func(t *testing.T) {
		rules := defaultRules(assetID)
		checks := evaluateFixedRules(request, rules, holding, receiver)
		assert.True(t, checkByRule(t, checks, CheckTransferWhitelist).Passed)

		rules.TransferWhitelist = []id.InvestorID{}
		checks = evaluateFixedRules(request, rules, holding, receiver)
		assert.False(t, checkByRule(t, checks, CheckTransferWhitelist).Passed)

		rules.TransferWhitelist = []id.InvestorID{to}
		checks = evaluateFixedRules(request, rules, holding, receiver)
		assert.True(t, checkByRule(t, checks, CheckTransferWhitelist).Passed)
	})

	t.Run("sufficient units compares holding against request", func(t *testing.T) {
		big := request
		big.Units = 100_001
		checks := evaluateFixedRules(big, defaultRules(assetID), holding, receiver)
		assert.False(t, checkByRule(t, checks, CheckSufficientUnits).Passed)
	})

	t.Run("missing holding fails sufficient units but not lockup", func(t *testing.T) {
		rules := defaultRules(assetID)
		rules.LockupDays = 90

		checks := evaluateFixedRules(request, rules, nil, receiver)
		assert.False(t, checkByRule(t, checks, CheckSufficientUnits).Passed)
		assert.True(t, checkByRule(t, checks, CheckLockup).Passed)
	})
}
