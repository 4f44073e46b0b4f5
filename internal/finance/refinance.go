package finance

import (
	"fmt"
	"strings"

	"github.com/nugget/loanagent/internal/bank"
)

// Fallbacks used when neither an override nor a stored value exists.
const (
	DefaultCreditScore = 700
	DefaultIncome      = 50000.0

	// EstimatedRateFactor gives the proposed rate when there is no
	// override and no standing offer: a 5% reduction of the current rate.
	EstimatedRateFactor = 0.95

	// FavorableThreshold is the rate improvement, in percentage points,
	// a refinance must exceed to be recommended.
	FavorableThreshold = 0.5
)

// Overrides are caller-supplied figures that replace stored values.
// Nil or non-positive fields are ignored.
type Overrides struct {
	InterestRate *float64
	CreditScore  *int
	Income       *float64
}

// Source says where an input to the analysis came from.
type Source string

const (
	SourceOverride Source = "override"
	SourceStored   Source = "stored"
	SourceOffer    Source = "offer"
	SourceEstimate Source = "estimate"
	SourceDefault  Source = "default"
)

// Recommendation is the outcome of a refinance analysis.
type Recommendation string

const (
	Favorable Recommendation = "favorable"
	Neutral   Recommendation = "neutral"
)

// RefinanceAnalysis compares a loan's current rate with a proposed one.
type RefinanceAnalysis struct {
	UserID string `json:"user_id"`

	CurrentRate    float64 `json:"current_rate"`
	CurrentBalance float64 `json:"current_balance"`
	CurrentPayment float64 `json:"current_payment"`

	ProposedRate       float64 `json:"proposed_rate"`
	ProposedRateSource Source  `json:"proposed_rate_source"`
	CreditScore        int     `json:"credit_score"`
	CreditScoreSource  Source  `json:"credit_score_source"`
	AnnualIncome       float64 `json:"annual_income"`
	IncomeSource       Source  `json:"income_source"`

	RateDifference float64 `json:"rate_difference"`
	MonthlySavings float64 `json:"monthly_savings"`
	AnnualSavings  float64 `json:"annual_savings"`

	Recommendation Recommendation `json:"recommendation"`
}

// AnalyzeRefinance computes the savings from moving loan to a proposed
// rate. Each input is taken from the override if given, else the stored
// record, else a fallback:
//
//	rate:   override > loan offer rate > current rate × 0.95
//	score:  override > account > 700
//	income: override > account > 50,000
//
// Both loan and account are required.
func AnalyzeRefinance(loan *bank.Loan, account *bank.Account, o Overrides) (*RefinanceAnalysis, error) {
	if loan == nil || account == nil {
		return nil, fmt.Errorf("refinance analysis: %w", bank.ErrNotFound)
	}

	a := &RefinanceAnalysis{
		UserID:         loan.UserID,
		CurrentRate:    loan.InterestRate,
		CurrentBalance: loan.OutstandingBalance,
		CurrentPayment: loan.MonthlyPayment,
	}

	switch {
	case o.InterestRate != nil && *o.InterestRate > 0:
		a.ProposedRate, a.ProposedRateSource = *o.InterestRate, SourceOverride
	case loan.OfferRate != nil && *loan.OfferRate > 0:
		a.ProposedRate, a.ProposedRateSource = *loan.OfferRate, SourceOffer
	default:
		a.ProposedRate, a.ProposedRateSource = loan.InterestRate*EstimatedRateFactor, SourceEstimate
	}

	switch {
	case o.CreditScore != nil && *o.CreditScore > 0:
		a.CreditScore, a.CreditScoreSource = *o.CreditScore, SourceOverride
	case account.CreditScore != nil:
		a.CreditScore, a.CreditScoreSource = *account.CreditScore, SourceStored
	default:
		a.CreditScore, a.CreditScoreSource = DefaultCreditScore, SourceDefault
	}

	switch {
	case o.Income != nil && *o.Income > 0:
		a.AnnualIncome, a.IncomeSource = *o.Income, SourceOverride
	case account.AnnualIncome != nil:
		a.AnnualIncome, a.IncomeSource = *account.AnnualIncome, SourceStored
	default:
		a.AnnualIncome, a.IncomeSource = DefaultIncome, SourceDefault
	}

	a.RateDifference = a.CurrentRate - a.ProposedRate
	a.MonthlySavings = a.CurrentBalance * (a.RateDifference / 100) / 12
	a.AnnualSavings = a.MonthlySavings * 12

	a.Recommendation = Neutral
	if a.RateDifference > FavorableThreshold {
		a.Recommendation = Favorable
	}
	return a, nil
}

// Render formats the analysis for the model.
func (a *RefinanceAnalysis) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Refinance Analysis for User %s:\n\n", a.UserID)

	sb.WriteString("Current Loan:\n")
	fmt.Fprintf(&sb, "- Rate: %s\n", Percent(a.CurrentRate))
	fmt.Fprintf(&sb, "- Balance: %s\n", Money(a.CurrentBalance))
	fmt.Fprintf(&sb, "- Monthly Payment: %s\n\n", Money(a.CurrentPayment))

	sb.WriteString("Proposed Terms:\n")
	fmt.Fprintf(&sb, "- New Rate: %s (%s)\n", Percent(round2(a.ProposedRate)), a.ProposedRateSource.describe())
	fmt.Fprintf(&sb, "- Credit Score: %d (%s)\n", a.CreditScore, a.CreditScoreSource.describe())
	fmt.Fprintf(&sb, "- Annual Income: %s (%s)\n\n", Money(a.AnnualIncome), a.IncomeSource.describe())

	sb.WriteString("Potential Savings:\n")
	fmt.Fprintf(&sb, "- Monthly Savings: %s\n", Money(a.MonthlySavings))
	fmt.Fprintf(&sb, "- Annual Savings: %s\n", Money(a.AnnualSavings))
	fmt.Fprintf(&sb, "- Rate Improvement: %.2f percentage points\n\n", a.RateDifference)

	if a.Recommendation == Favorable {
		sb.WriteString("Recommendation: Proceed with refinance\n")
	} else {
		sb.WriteString("Recommendation: Current terms are competitive\n")
	}
	return sb.String()
}

func (s Source) describe() string {
	switch s {
	case SourceOverride:
		return "user-provided"
	case SourceOffer:
		return "standing offer"
	case SourceEstimate:
		return "estimated 5% reduction"
	case SourceDefault:
		return "assumed"
	default:
		return "on file"
	}
}
