// Package bank reads customer account and loan records. Records are
// read-only from the agent's point of view; Migrate and Seed exist for
// local setup and tests.
package bank

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for a user.
var ErrNotFound = errors.New("record not found")

// Date layout used for next_payment_date.
const DateLayout = "2006-01-02"

// Account is a row of user_accounts. Nullable numeric columns are
// pointers; a nil value means the bank has no figure on file.
type Account struct {
	UserID            string    `json:"user_id"`
	AccountNumber     string    `json:"account_number"`
	AccountType       string    `json:"account_type"`
	AccountStatus     string    `json:"account_status"`
	AnnualIncome      *float64  `json:"annual_income,omitempty"`
	CreditScore       *int      `json:"credit_score,omitempty"`
	DebtToIncomeRatio *float64  `json:"debt_to_income_ratio,omitempty"`
	Email             string    `json:"email,omitempty"`
	LastUpdated       time.Time `json:"last_updated,omitempty"`
}

// Loan is a row of user_loans. Rates are percentages (6.5 means 6.5%).
type Loan struct {
	UserID             string    `json:"user_id"`
	LoanNumber         string    `json:"loan_number"`
	LoanType           string    `json:"loan_type"`
	OriginalAmount     float64   `json:"original_amount"`
	OutstandingBalance float64   `json:"outstanding_balance"`
	InterestRate       float64   `json:"interest_rate"`
	MonthlyPayment     float64   `json:"monthly_payment"`
	NextPaymentDate    time.Time `json:"next_payment_date,omitempty"`
	LoanTermMonths     int       `json:"loan_term_months"`
	PaymentsMade       int       `json:"payments_made"`

	// OfferRate is the rate of a standing refinance offer, if any.
	OfferRate *float64 `json:"offer_rate,omitempty"`
}

// Repository looks up records by user id. Implementations return
// ErrNotFound (possibly wrapped) when the user has no record.
type Repository interface {
	Account(ctx context.Context, userID string) (*Account, error)
	Loan(ctx context.Context, userID string) (*Loan, error)
}

// Float64 returns a pointer to v, for optional fields.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional fields.
func Int(v int) *int { return &v }
