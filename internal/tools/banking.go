package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/loanagent/internal/bank"
	"github.com/nugget/loanagent/internal/finance"
	"github.com/nugget/loanagent/internal/prompts"
)

// Banking tool names.
const (
	ToolFinancialInfo = "get_user_financial_info"
	ToolAccountDetail = "get_user_account_detail"
	ToolLoanDetail    = "get_user_loan_detail"
	ToolMortgageRate  = "get_current_mortgage_rate"
	ToolLoanAdvisor   = "loan_advisor_agent"
	ToolRefinance     = "smart_refinance_agent"
)

// MarketRates are the published mortgage rates, in percent.
type MarketRates struct {
	Fixed30 float64
	Fixed15 float64
	ARM51   float64
}

// Banking implements the banking tools over a record repository.
type Banking struct {
	repo   bank.Repository
	rates  MarketRates
	logger *slog.Logger
}

// NewBanking creates the banking tool set.
func NewBanking(repo bank.Repository, rates MarketRates, logger *slog.Logger) *Banking {
	if logger == nil {
		logger = slog.Default()
	}
	return &Banking{repo: repo, rates: rates, logger: logger.With("component", "tools")}
}

var userIDSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"user_id": map[string]any{
			"type":        "string",
			"description": "The customer's user ID (e.g., U1001)",
		},
	},
	"required": []string{"user_id"},
}

// Tools returns the six banking tools.
func (b *Banking) Tools() []*Tool {
	return []*Tool{
		{
			Name:        ToolFinancialInfo,
			Description: prompts.FinancialInfoToolDescription,
			Parameters:  userIDSchema,
			Kind:        KindQuery,
			Handler:     b.handleFinancialInfo,
		},
		{
			Name:        ToolAccountDetail,
			Description: prompts.AccountDetailToolDescription,
			Parameters:  userIDSchema,
			Kind:        KindQuery,
			Handler:     b.handleAccountDetail,
		},
		{
			Name:        ToolLoanDetail,
			Description: prompts.LoanDetailToolDescription,
			Parameters:  userIDSchema,
			Kind:        KindQuery,
			Handler:     b.handleLoanDetail,
		},
		{
			Name:        ToolMortgageRate,
			Description: prompts.MortgageRateToolDescription,
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Kind:    KindQuery,
			Handler: b.handleMortgageRate,
		},
		{
			Name:        ToolLoanAdvisor,
			Description: prompts.LoanAdvisorToolDescription,
			Parameters:  userIDSchema,
			Kind:        KindAnalysis,
			Handler:     b.handleLoanAdvisor,
		},
		{
			Name:        ToolRefinance,
			Description: prompts.RefinanceToolDescription,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"user_id": map[string]any{
						"type":        "string",
						"description": "The customer's user ID (e.g., U1001)",
					},
					"new_interest_rate": map[string]any{
						"type":        "number",
						"description": "Proposed annual interest rate in percent (e.g., 5.25)",
						"minimum":     0,
						"maximum":     30,
					},
					"new_credit_score": map[string]any{
						"type":        "integer",
						"description": "Updated credit score",
						"minimum":     300,
						"maximum":     850,
					},
					"new_income": map[string]any{
						"type":        "number",
						"description": "Updated annual income in dollars",
						"minimum":     0,
					},
				},
				"required": []string{"user_id"},
			},
			Kind:    KindAnalysis,
			Handler: b.handleRefinance,
		},
	}
}

func (b *Banking) handleFinancialInfo(ctx context.Context, args map[string]any) (string, error) {
	userID := stringArg(args, "user_id")
	a, err := b.account(ctx, userID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Financial Information for User %s:\n", userID)
	fmt.Fprintf(&sb, "- Annual Income: %s\n", optMoney(a.AnnualIncome))
	if a.CreditScore != nil {
		fmt.Fprintf(&sb, "- Credit Score: %d\n", *a.CreditScore)
	} else {
		sb.WriteString("- Credit Score: N/A\n")
	}
	fmt.Fprintf(&sb, "- Debt-to-Income Ratio: %s\n", optPercent(a.DebtToIncomeRatio))
	fmt.Fprintf(&sb, "- Account Status: %s\n", orNA(a.AccountStatus))
	return sb.String(), nil
}

func (b *Banking) handleAccountDetail(ctx context.Context, args map[string]any) (string, error) {
	userID := stringArg(args, "user_id")
	a, err := b.account(ctx, userID)
	if err != nil {
		return "", err
	}

	lastUpdated := "N/A"
	if !a.LastUpdated.IsZero() {
		lastUpdated = a.LastUpdated.Format("2006-01-02 15:04 MST")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Account Details for User %s:\n", userID)
	fmt.Fprintf(&sb, "- Account Number: %s\n", orNA(a.AccountNumber))
	fmt.Fprintf(&sb, "- Account Type: %s\n", orNA(a.AccountType))
	fmt.Fprintf(&sb, "- Account Status: %s\n", orNA(a.AccountStatus))
	fmt.Fprintf(&sb, "- Last Updated: %s\n", lastUpdated)
	fmt.Fprintf(&sb, "- Contact Email: %s\n", orNA(a.Email))
	return sb.String(), nil
}

func (b *Banking) handleLoanDetail(ctx context.Context, args map[string]any) (string, error) {
	userID := stringArg(args, "user_id")
	l, err := b.loan(ctx, userID)
	if err != nil {
		return "", err
	}

	nextDue := "N/A"
	if !l.NextPaymentDate.IsZero() {
		nextDue = l.NextPaymentDate.Format(bank.DateLayout)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Loan Details for User %s:\n", userID)
	fmt.Fprintf(&sb, "- Loan Number: %s\n", orNA(l.LoanNumber))
	fmt.Fprintf(&sb, "- Loan Type: %s\n", orNA(l.LoanType))
	fmt.Fprintf(&sb, "- Original Amount: %s\n", finance.Money(l.OriginalAmount))
	fmt.Fprintf(&sb, "- Outstanding Balance: %s\n", finance.Money(l.OutstandingBalance))
	fmt.Fprintf(&sb, "- Interest Rate: %s\n", finance.Percent(l.InterestRate))
	fmt.Fprintf(&sb, "- Monthly Payment: %s\n", finance.Money(l.MonthlyPayment))
	fmt.Fprintf(&sb, "- Next Payment Due: %s\n", nextDue)
	fmt.Fprintf(&sb, "- Loan Term: %d months\n", l.LoanTermMonths)
	fmt.Fprintf(&sb, "- Payments Made: %d\n", l.PaymentsMade)
	if l.OfferRate != nil {
		fmt.Fprintf(&sb, "- Refinance Offer Rate: %s\n", finance.Percent(*l.OfferRate))
	}
	return sb.String(), nil
}

func (b *Banking) handleMortgageRate(_ context.Context, _ map[string]any) (string, error) {
	var sb strings.Builder
	sb.WriteString("Current Market Mortgage Rates:\n")
	fmt.Fprintf(&sb, "- 30-year Fixed: %.3f%%\n", b.rates.Fixed30)
	fmt.Fprintf(&sb, "- 15-year Fixed: %.3f%%\n", b.rates.Fixed15)
	fmt.Fprintf(&sb, "- 5/1 ARM: %.3f%%\n", b.rates.ARM51)
	sb.WriteString("\nRates updated daily and subject to credit approval.\n")
	return sb.String(), nil
}

func (b *Banking) handleLoanAdvisor(ctx context.Context, args map[string]any) (string, error) {
	userID := stringArg(args, "user_id")
	l, err := b.loan(ctx, userID)
	if err != nil {
		return "", err
	}

	// Advice works without an account; only lookup failures matter.
	a, err := b.account(ctx, userID)
	var notFound *ErrDataNotFound
	if errors.As(err, &notFound) {
		a, err = nil, nil
	}
	if err != nil {
		return "", err
	}

	adv, err := finance.Advise(l, a)
	if err != nil {
		return "", err
	}
	return adv.Render(), nil
}

func (b *Banking) handleRefinance(ctx context.Context, args map[string]any) (string, error) {
	userID := stringArg(args, "user_id")

	l, err := b.loan(ctx, userID)
	if err != nil {
		return "", err
	}
	a, err := b.account(ctx, userID)
	if err != nil {
		return "", err
	}

	analysis, err := finance.AnalyzeRefinance(l, a, finance.Overrides{
		InterestRate: floatArg(args, "new_interest_rate"),
		CreditScore:  intArg(args, "new_credit_score"),
		Income:       floatArg(args, "new_income"),
	})
	if err != nil {
		return "", err
	}

	b.logger.Debug("refinance analysed",
		"request_id", RequestIDFromContext(ctx),
		"user_id", userID,
		"proposed_rate", analysis.ProposedRate,
		"rate_source", analysis.ProposedRateSource,
		"recommendation", analysis.Recommendation,
	)
	return analysis.Render(), nil
}

func (b *Banking) account(ctx context.Context, userID string) (*bank.Account, error) {
	a, err := b.repo.Account(ctx, userID)
	if errors.Is(err, bank.ErrNotFound) {
		return nil, &ErrDataNotFound{What: "account", UserID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return a, nil
}

func (b *Banking) loan(ctx context.Context, userID string) (*bank.Loan, error) {
	l, err := b.repo.Loan(ctx, userID)
	if errors.Is(err, bank.ErrNotFound) {
		return nil, &ErrDataNotFound{What: "loan", UserID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("load loan: %w", err)
	}
	return l, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func optMoney(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return finance.Money(*v)
}

func optPercent(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return finance.Percent(*v)
}
