package llm

import (
	"fmt"
	"strings"

	"dealdesk/internal/domain"
)

const COMPLIANCE_SYSTEM = `You are a compliance officer reviewing deals on a business platform.
You review one deal at a time and decide whether it is appropriate for posting.
You answer in exactly one of two forms and nothing else:
APPROVED
REJECTED: <specific reason>`

const COMPLIANCE_USER_TEMPLATE = `Your task is to review the following deal and determine if it's appropriate for posting.

REVIEW CRITERIA:
1. The deal must be legal and ethical
2. All required information for the specific deal type must be provided
3. The amount must be reasonable for the type of deal
4. The description must be clear and not misleading

DEAL DETAILS:
{{DEAL_TEXT}}

INSTRUCTIONS:
- If the deal meets all criteria, respond with "APPROVED"
- If the deal fails any criteria, respond with "REJECTED: [specific reason for rejection]"
- Be concise and specific in rejection reasons
- Focus only on the deal content, not technical issues

Your response:`

const notSpecified = "Not specified"

func RenderTemplate(tpl string, vars map[string]string) string {
	rendered := tpl
	for k, v := range vars {
		rendered = strings.ReplaceAll(rendered, "{{"+k+"}}", v)
	}
	return rendered
}

// BuildCompliancePrompt formats a deal snapshot into the review prompt. It is
// a pure function: it does not validate the deal, it only formats it,
// printing "Not specified" for absent optional fields.
func BuildCompliancePrompt(d domain.Deal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", d.Title)
	fmt.Fprintf(&b, "Type: %s\n", d.Type)
	fmt.Fprintf(&b, "Description: %s\n", d.Description)
	fmt.Fprintf(&b, "Amount: £%.2f\n\n", d.Amount)

	switch d.Type {
	case domain.DealTypeInsurance:
		fmt.Fprintf(&b, "Insurance Type: %s\n", strOrNotSpecified(d.InsuranceType))
		fmt.Fprintf(&b, "Coverage Amount: %s\n", amountOrNotSpecified(d.Coverage))
	case domain.DealTypeProperty:
		fmt.Fprintf(&b, "Property Type: %s\n", strOrNotSpecified(d.PropertyType))
		fmt.Fprintf(&b, "Location: %s\n", strOrNotSpecified(d.Location))
	case domain.DealTypeCar:
		fmt.Fprintf(&b, "Make: %s\n", strOrNotSpecified(d.Make))
		fmt.Fprintf(&b, "Model: %s\n", strOrNotSpecified(d.Model))
		fmt.Fprintf(&b, "Year: %s\n", yearOrNotSpecified(d.Year))
	}

	return RenderTemplate(COMPLIANCE_USER_TEMPLATE, map[string]string{
		"DEAL_TEXT": b.String(),
	})
}

func strOrNotSpecified(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return notSpecified
	}
	return *v
}

func amountOrNotSpecified(v *float64) string {
	if v == nil {
		return notSpecified
	}
	return fmt.Sprintf("£%.2f", *v)
}

func yearOrNotSpecified(v *int) string {
	if v == nil {
		return notSpecified
	}
	return fmt.Sprintf("%d", *v)
}
