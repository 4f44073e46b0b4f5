package prompts

import (
	"strings"
	"testing"
)

func TestSystemInstruction(t *testing.T) {
	result := SystemInstruction("U1001")

	if !strings.Contains(result, "helping user ID U1001.") {
		t.Error("instruction should name the user")
	}
	for _, want := range []string{
		"get_user_loan_detail",
		"Loan Servicing tools",
		"Personalized Loan Advisor tool",
		"ALWAYS use Smart Refinance Agent tool",
		"Be concise, financial but user-friendly.",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("instruction should contain %q", want)
		}
	}
}

func TestRefinanceOverrides(t *testing.T) {
	rate := 5.0
	score := 760
	income := 98000.5

	got := RefinanceOverrides(&rate, &score, &income)
	if !strings.HasPrefix(got, "\nPerform refinance analysis") {
		t.Errorf("suffix should start on a new line: %q", got)
	}
	if !strings.Contains(got, "rate=5, score=760, income=98000.5.") {
		t.Errorf("unexpected values: %q", got)
	}
	if !strings.HasSuffix(got, "Use new offer column if present for better recommendation.") {
		t.Errorf("unexpected ending: %q", got)
	}
}

func TestRefinanceOverrides_Absent(t *testing.T) {
	got := RefinanceOverrides(nil, nil, nil)
	if !strings.Contains(got, "rate=none, score=none, income=none.") {
		t.Errorf("absent values should render as none: %q", got)
	}
}
