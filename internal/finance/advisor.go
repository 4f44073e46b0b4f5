package finance

import (
	"fmt"
	"strings"

	"github.com/nugget/loanagent/internal/bank"
)

// Thresholds for advisor recommendations.
const (
	RefinanceCreditScore = 740
	RefinanceRate        = 6.5
	HighDebtToIncome     = 43.0
)

// PrepaymentImpact is the qualitative effect of paying ahead. No
// amortization schedule is computed.
const PrepaymentImpact = "Extra principal payments reduce the outstanding balance sooner, which lowers total interest paid and can shorten the loan term."

// Advice is the result of the loan advisor.
type Advice struct {
	UserID             string  `json:"user_id"`
	LoanNumber         string  `json:"loan_number"`
	LoanType           string  `json:"loan_type"`
	OutstandingBalance float64 `json:"outstanding_balance"`
	MonthlyPayment     float64 `json:"monthly_payment"`
	InterestRate       float64 `json:"interest_rate"`

	MonthlyInterest   float64 `json:"monthly_interest"`
	RemainingPayments int     `json:"remaining_payments"`
	PrepaymentImpact  string  `json:"prepayment_impact"`

	// Set when an account record was available.
	CreditScore       *int     `json:"credit_score,omitempty"`
	DebtToIncomeRatio *float64 `json:"debt_to_income_ratio,omitempty"`

	Recommendations []string `json:"recommendations"`
}

// Advise builds prepayment and optimization advice for a loan. The
// account is optional and only sharpens the recommendations.
func Advise(loan *bank.Loan, account *bank.Account) (*Advice, error) {
	if loan == nil {
		return nil, fmt.Errorf("loan advice: %w", bank.ErrNotFound)
	}

	adv := &Advice{
		UserID:             loan.UserID,
		LoanNumber:         loan.LoanNumber,
		LoanType:           loan.LoanType,
		OutstandingBalance: loan.OutstandingBalance,
		MonthlyPayment:     loan.MonthlyPayment,
		InterestRate:       loan.InterestRate,
		MonthlyInterest:    loan.OutstandingBalance * loan.InterestRate / 100 / 12,
		RemainingPayments:  max(loan.LoanTermMonths-loan.PaymentsMade, 0),
		PrepaymentImpact:   PrepaymentImpact,
	}
	if account != nil {
		adv.CreditScore = account.CreditScore
		adv.DebtToIncomeRatio = account.DebtToIncomeRatio
	}

	adv.Recommendations = append(adv.Recommendations,
		"Consider making extra principal payments to reduce total interest.")

	strongCredit := adv.CreditScore != nil && *adv.CreditScore >= RefinanceCreditScore
	if strongCredit || loan.InterestRate >= RefinanceRate {
		adv.Recommendations = append(adv.Recommendations,
			"Your credit profile or current rate suggests refinancing could pay off; explore refinancing options.")
	}

	adv.Recommendations = append(adv.Recommendations,
		"Set up automatic payments for potential rate discounts.")

	if adv.DebtToIncomeRatio != nil && *adv.DebtToIncomeRatio > HighDebtToIncome {
		adv.Recommendations = append(adv.Recommendations,
			fmt.Sprintf("Your debt-to-income ratio is above %.0f%%; prioritise paying down higher-rate debt before prepaying this loan.", HighDebtToIncome))
	}
	return adv, nil
}

// Render formats the advice for the model.
func (a *Advice) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Loan Optimization Analysis for User %s:\n\n", a.UserID)

	sb.WriteString("Current Loan Status:\n")
	if a.LoanNumber != "" {
		fmt.Fprintf(&sb, "- Loan: %s (%s)\n", a.LoanNumber, a.LoanType)
	}
	fmt.Fprintf(&sb, "- Outstanding Balance: %s\n", Money(a.OutstandingBalance))
	fmt.Fprintf(&sb, "- Monthly Payment: %s\n", Money(a.MonthlyPayment))
	fmt.Fprintf(&sb, "- Interest Rate: %s\n", Percent(a.InterestRate))
	fmt.Fprintf(&sb, "- Interest Portion This Month: %s\n", Money(a.MonthlyInterest))
	fmt.Fprintf(&sb, "- Remaining Payments: %d\n", a.RemainingPayments)
	if a.CreditScore != nil {
		fmt.Fprintf(&sb, "- Credit Score: %d\n", *a.CreditScore)
	}
	if a.DebtToIncomeRatio != nil {
		fmt.Fprintf(&sb, "- Debt-to-Income Ratio: %s\n", Percent(*a.DebtToIncomeRatio))
	}

	fmt.Fprintf(&sb, "\nPrepayment Impact: %s\n\nRecommendations:\n", a.PrepaymentImpact)
	for i, r := range a.Recommendations {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r)
	}
	return sb.String()
}
