package render

import (
	"strings"
	"testing"
)

func TestHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"bold", "Your balance is **$182,000.00**.", []string{"<strong>$182,000.00</strong>"}},
		{"list", "- Rate: 7.25%\n- Offer: 6.5%", []string{"<ul>", "<li>Rate: 7.25%</li>"}},
		{"table", "| Rate | Payment |\n|---|---|\n| 6.5% | $1,150.00 |", []string{"<table>", "<td>6.5%</td>"}},
		{"raw html escaped", "<script>alert(1)</script>", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HTML(tt.in)
			if err != nil {
				t.Fatalf("HTML() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("HTML() = %q, want substring %q", got, w)
				}
			}
			if strings.Contains(got, "<script>") {
				t.Errorf("HTML() passed raw script through: %q", got)
			}
		})
	}
}

func TestPlain(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"## Summary\n**Proceed** with refinance", "Summary\nProceed with refinance"},
		{"See [rates](https://example.com/rates)", "See rates (https://example.com/rates)"},
		{"Use `smart_refinance_agent` *now*", "Use smart_refinance_agent now"},
		{"Rate is 6.5% * 12 months", "Rate is 6.5% * 12 months"},
	}
	for _, tt := range tests {
		if got := Plain(tt.in); got != tt.want {
			t.Errorf("Plain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
