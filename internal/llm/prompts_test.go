package llm

import (
	"strings"
	"testing"

	"dealdesk/internal/domain"
)

func TestRenderTemplate(t *testing.T) {
	r := RenderTemplate("hello {{A}} {{B}}", map[string]string{
		"A": "one",
		"B": "two",
	})
	if r != "hello one two" {
		t.Fatalf("unexpected render result: %s", r)
	}
}

func TestBuildCompliancePromptCar(t *testing.T) {
	make := "Tesla"
	model := "Model Y"
	year := 2024
	deal := domain.Deal{
		Title:       "Nearly new Tesla",
		Type:        domain.DealTypeCar,
		Description: "One owner, full history",
		Amount:      55000,
		Make:        &make,
		Model:       &model,
		Year:        &year,
	}

	prompt := BuildCompliancePrompt(deal)
	for _, p := range []string{
		"Title: Nearly new Tesla",
		"Type: car",
		"Amount: £55000.00",
		"Make: Tesla",
		"Model: Model Y",
		"Year: 2024",
		`respond with "APPROVED"`,
		`respond with "REJECTED: [specific reason for rejection]"`,
	} {
		if !strings.Contains(prompt, p) {
			t.Fatalf("prompt missing expected text %q", p)
		}
	}
}

func TestBuildCompliancePromptSubstitutesNotSpecified(t *testing.T) {
	deal := domain.Deal{
		Title:  "Office space",
		Type:   domain.DealTypeProperty,
		Amount: 1200,
	}
	prompt := BuildCompliancePrompt(deal)
	if !strings.Contains(prompt, "Property Type: Not specified") {
		t.Fatalf("absent property type should render as Not specified")
	}
	if !strings.Contains(prompt, "Location: Not specified") {
		t.Fatalf("absent location should render as Not specified")
	}
}

func TestBuildCompliancePromptDeterministic(t *testing.T) {
	ins := "life"
	cov := 5000.0
	deal := domain.Deal{
		Title:         "Life cover",
		Type:          domain.DealTypeInsurance,
		Description:   "Standard term policy",
		Amount:        120,
		InsuranceType: &ins,
		Coverage:      &cov,
	}
	if BuildCompliancePrompt(deal) != BuildCompliancePrompt(deal) {
		t.Fatalf("prompt builder must be deterministic for an unchanged snapshot")
	}
}
