package domain

import "strings"

const (
	MsgInsuranceTypeRequired = "Insurance type is required for insurance deals."
	MsgCoverageRequired      = "Coverage amount is required for insurance deals."
)

// ValidateDeal checks a submitted deal against the canonical schema rules.
// It returns the list of failed rule names; an empty list means the deal is
// acceptable for storage.
func ValidateDeal(d Deal) []string {
	failed := make([]string, 0)

	if strings.TrimSpace(d.Title) == "" {
		failed = append(failed, "deal.title_required")
	}
	if !ValidDealType(d.Type) {
		failed = append(failed, "deal.type_unknown")
	}
	if d.Amount < 0 {
		failed = append(failed, "deal.amount_non_negative")
	}
	if d.Year != nil && (*d.Year < 1900 || *d.Year > 2100) {
		failed = append(failed, "deal.year_out_of_range")
	}
	if d.Coverage != nil && *d.Coverage < 0 {
		failed = append(failed, "deal.coverage_non_negative")
	}

	return failed
}

// ReviewPrecondition reports the fixed rejection message for a deal that must
// not be sent to the external reviewer. Insurance deals need both an
// insurance type and a coverage amount before a review is worth an external
// call; all other types have no preconditions beyond schema validation.
// The second return is false when the deal may proceed to review.
func ReviewPrecondition(d Deal) (string, bool) {
	if d.Type != DealTypeInsurance {
		return "", false
	}
	if d.InsuranceType == nil || strings.TrimSpace(*d.InsuranceType) == "" {
		return MsgInsuranceTypeRequired, true
	}
	if d.Coverage == nil {
		return MsgCoverageRequired, true
	}
	return "", false
}
