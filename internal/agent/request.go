package agent

import (
	"errors"
	"strings"

	"github.com/nugget/loanagent/internal/prompts"
)

// ErrEmptyQuery is returned when a request has no question.
var ErrEmptyQuery = errors.New("query is required")

// refinanceKeywords trigger the override hint in EffectiveQuery.
var refinanceKeywords = []string{"refinance", "restructure"}

// Request is a customer question plus optional figures the customer
// supplied for a refinance analysis.
type Request struct {
	Query           string   `json:"query"`
	UserID          string   `json:"user_id"`
	NewInterestRate *float64 `json:"new_interest_rate,omitempty"`
	NewCreditScore  *int     `json:"new_credit_score,omitempty"`
	NewIncome       *float64 `json:"new_income,omitempty"`
}

// EffectiveQuery returns the user message sent to the model. Queries
// containing "refinance" or "restructure" get the override figures
// appended; all others pass through unchanged.
func EffectiveQuery(req Request) string {
	lower := strings.ToLower(req.Query)
	for _, kw := range refinanceKeywords {
		if strings.Contains(lower, kw) {
			return req.Query + prompts.RefinanceOverrides(req.NewInterestRate, req.NewCreditScore, req.NewIncome)
		}
	}
	return req.Query
}
