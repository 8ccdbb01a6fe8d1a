// Package classification decides whether an intake case can be
// auto-completed or needs a human reviewer. The evaluation is a pure
// function of the case's indicator flags.
package classification

import "github.com/spec-kit/hra-case-service/internal/domain"

// Disposition is the outcome of classifying a case's indicators.
type Disposition string

const (
	AutoComplete Disposition = "AUTO_COMPLETE"
	ManualReview Disposition = "MANUAL_REVIEW"
)

// Canonical indicator names as they appear on intake records.
const (
	IndicatorGFCIntelligence     = "gfcIntelligenceYes"
	IndicatorCAMTRMSReferral     = "camTRMSReferral"
	IndicatorTRMSFinancialCrimes = "tramsFinancialCrimesReferral"
	IndicatorEscalationRequired  = "escalationRequired"
	IndicatorBeneficialOwnership = "beneficialOwnershipChange"
	IndicatorAddressChange       = "addressChange"
	IndicatorNAICSChange         = "naicsChange"
	IndicatorIncomeSourceChange  = "incomeSourceChange"
	IndicatorRiskDriversOver10   = "riskDriversOver10"
	IndicatorNewRiskFactorsGte5  = "newRiskFactorsGte5"
	IndicatorIncompleteInfo      = "incompleteInfo"
)

type trigger struct {
	indicator string
	label     string
}

// Ordered so that reported reasons are stable across runs.
var manualReviewTriggers = []trigger{
	{IndicatorGFCIntelligence, "GFC Intelligence is Yes"},
	{IndicatorCAMTRMSReferral, "TRMS raised as part of CAM"},
	{IndicatorTRMSFinancialCrimes, "TRMS Financial Crimes referral"},
	{IndicatorEscalationRequired, "Client escalation required"},
	{IndicatorBeneficialOwnership, "Beneficial ownership change"},
	{IndicatorAddressChange, "Address change"},
	{IndicatorNAICSChange, "Nature of business (NAICS) change"},
	{IndicatorIncomeSourceChange, "Source of income change"},
	{IndicatorRiskDriversOver10, "Total risk CRR drivers over 10"},
	{IndicatorNewRiskFactorsGte5, "Five or more new risk factors"},
	{IndicatorIncompleteInfo, "Required information not completed"},
}

// Classify evaluates the indicator set. Any true manual-review indicator
// forces ManualReview; the all-false set auto-completes. Unknown indicator
// keys are ignored, and an unset key reads as false. Callers that cannot
// confirm required data is populated must set incompleteInfo themselves.
func Classify(indicators domain.Indicators) Disposition {
	for _, t := range manualReviewTriggers {
		if indicators.Set(t.indicator) {
			return ManualReview
		}
	}
	return AutoComplete
}

// Reasons returns the human-readable labels of every manual-review trigger
// present in the indicator set, in canonical order. Empty for cases that
// auto-complete.
func Reasons(indicators domain.Indicators) []string {
	var reasons []string
	for _, t := range manualReviewTriggers {
		if indicators.Set(t.indicator) {
			reasons = append(reasons, t.label)
		}
	}
	return reasons
}

// ManualReviewIndicators lists the canonical indicator names the engine
// evaluates, in canonical order.
func ManualReviewIndicators() []string {
	names := make([]string, 0, len(manualReviewTriggers))
	for _, t := range manualReviewTriggers {
		names = append(names, t.indicator)
	}
	return names
}
