package transfer

import (
	"fmt"
	"slices"

	"custos/internal/ledger"
	"custos/internal/registry"
)

// Fixed rule names as they appear in results and decision records.
const (
	CheckSelfTransfer      = "self_transfer"
	CheckQualification     = "qualification"
	CheckLockup            = "lockup"
	CheckJurisdiction      = "jurisdiction"
	CheckTransferWhitelist = "transfer_whitelist"
	CheckSufficientUnits   = "sufficient_units"
)

// evaluateFixedRules runs the fixed transfer rule set. Every rule is
// evaluated and reported; failures never short-circuit the rest. sender may
// be nil when the from investor holds nothing in the asset.
func evaluateFixedRules(req Request, rules *Rules, sender *Holding, receiver *registry.Investor) []ledger.CheckResult {
	checks := make([]ledger.CheckResult, 0, 6)

	if req.FromInvestorID == req.ToInvestorID {
		checks = append(checks, ledger.CheckResult{
			Rule:    CheckSelfTransfer,
			Passed:  false,
			Message: "Sender and receiver must differ",
		})
	} else {
		checks = append(checks, ledger.CheckResult{
			Rule:    CheckSelfTransfer,
			Passed:  true,
			Message: "Sender and receiver differ",
		})
	}

	if rules.QualificationRequired && !receiver.Accredited {
		checks = append(checks, ledger.CheckResult{
			Rule:    CheckQualification,
			Passed:  false,
			Message: "Receiving investor is not accredited but the asset requires qualification",
		})
	} else {
		message := "No qualification requirement"
		if rules.QualificationRequired {
			message = "Receiving investor is accredited"
		}
		checks = append(checks, ledger.CheckResult{
			Rule:    CheckQualification,
			Passed:  true,
			Message: message,
		})
	}

	lockup := ledger.CheckResult{Rule: CheckLockup, Passed: true, Message: "No lockup applies"}
	if rules.LockupDays > 0 && sender != nil {
		releasedAt := sender.AcquiredAt.AddDate(0, 0, rules.LockupDays)
		if releasedAt.After(req.ExecutionDate) {
			lockup.Passed = false
			lockup.Message = fmt.Sprintf("Holding is locked up until %s", releasedAt.Format("2006-01-02"))
		} else {
			lockup.Message = fmt.Sprintf("Lockup ended %s", releasedAt.Format("2006-01-02"))
		}
	}
	checks = append(checks, lockup)

	jurisdiction := ledger.CheckResult{Rule: CheckJurisdiction, Passed: true, Message: "No jurisdiction restriction"}
	if len(rules.JurisdictionWhitelist) > 0 {
		if slices.Contains(rules.JurisdictionWhitelist, receiver.Jurisdiction) {
			jurisdiction.Message = fmt.Sprintf("Receiver jurisdiction %s is whitelisted", receiver.Jurisdiction)
		} else {
			jurisdiction.Passed = false
			jurisdiction.Message = fmt.Sprintf("Receiver jurisdiction %s is not in the whitelist", receiver.Jurisdiction)
		}
	}
	checks = append(checks, jurisdiction)

	whitelist := ledger.CheckResult{Rule: CheckTransferWhitelist, Passed: true, Message: "No transfer whitelist"}
	if rules.TransferWhitelist != nil {
		if slices.Contains(rules.TransferWhitelist, req.ToInvestorID) {
			whitelist.Message = "Receiver is on the transfer whitelist"
		} else {
			whitelist.Passed = false
			whitelist.Message = "Receiver is not on the transfer whitelist"
		}
	}
	checks = append(checks, whitelist)

	held := int64(0)
	if sender != nil {
		held = sender.Units
	}
	if held >= req.Units {
		checks = append(checks, ledger.CheckResult{
			Rule:    CheckSufficientUnits,
			Passed:  true,
			Message: fmt.Sprintf("Sender holds %d units, %d requested", held, req.Units),
		})
	} else {
		checks = append(checks, ledger.CheckResult{
			Rule:    CheckSufficientUnits,
			Passed:  false,
			Message: fmt.Sprintf("Sender holds %d units, %d requested", held, req.Units),
		})
	}

	return checks
}
