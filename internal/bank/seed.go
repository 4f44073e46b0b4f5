package bank

import (
	"context"
	"fmt"
	"time"
)

// DemoAccounts and DemoLoans are the records written by Seed. U1003 has
// an account but no loan.
var (
	DemoAccounts = []Account{
		{
			UserID:            "U1001",
			AccountNumber:     "ACC-100100",
			AccountType:       "Checking",
			AccountStatus:     "Active",
			AnnualIncome:      Float64(98000),
			CreditScore:       Int(742),
			DebtToIncomeRatio: Float64(28.5),
			Email:             "jordan.lee@example.com",
			LastUpdated:       time.Date(2026, 9, 30, 14, 0, 0, 0, time.UTC),
		},
		{
			UserID:            "U1002",
			AccountNumber:     "ACC-100200",
			AccountType:       "Savings",
			AccountStatus:     "Active",
			AnnualIncome:      Float64(61000),
			CreditScore:       Int(688),
			DebtToIncomeRatio: Float64(46.2),
			Email:             "sam.rivera@example.com",
			LastUpdated:       time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC),
		},
		{
			UserID:        "U1003",
			AccountNumber: "ACC-100300",
			AccountType:   "Checking",
			AccountStatus: "Active",
			Email:         "casey.morgan@example.com",
		},
	}

	DemoLoans = []Loan{
		{
			UserID:             "U1001",
			LoanNumber:         "LN-5001",
			LoanType:           "30-year Fixed Mortgage",
			OriginalAmount:     250000,
			OutstandingBalance: 182000,
			InterestRate:       7.25,
			MonthlyPayment:     1705.44,
			NextPaymentDate:    time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
			LoanTermMonths:     360,
			PaymentsMade:       62,
			OfferRate:          Float64(6.5),
		},
		{
			UserID:             "U1002",
			LoanNumber:         "LN-5002",
			LoanType:           "15-year Fixed Mortgage",
			OriginalAmount:     180000,
			OutstandingBalance: 121500,
			InterestRate:       5.5,
			MonthlyPayment:     1470.73,
			NextPaymentDate:    time.Date(2026, 11, 15, 0, 0, 0, 0, time.UTC),
			LoanTermMonths:     180,
			PaymentsMade:       48,
		},
	}
)

// Seed replaces the demo users' rows with DemoAccounts and DemoLoans in
// a single transaction.
func (s *SQLStore) Seed(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, a := range DemoAccounts {
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM user_accounts WHERE user_id = ?"), a.UserID); err != nil {
			return fmt.Errorf("clear account %s: %w", a.UserID, err)
		}
		if _, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO user_accounts ("+accountColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			a.UserID, a.AccountNumber, a.AccountType, a.AccountStatus,
			a.AnnualIncome, a.CreditScore, a.DebtToIncomeRatio, nullString(a.Email), formatTimestamp(a.LastUpdated),
		); err != nil {
			return fmt.Errorf("insert account %s: %w", a.UserID, err)
		}
	}

	for _, l := range DemoLoans {
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM user_loans WHERE loan_number = ?"), l.LoanNumber); err != nil {
			return fmt.Errorf("clear loan %s: %w", l.LoanNumber, err)
		}
		if _, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO user_loans ("+loanColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			l.UserID, l.LoanNumber, l.LoanType, l.OriginalAmount,
			l.OutstandingBalance, l.InterestRate, l.MonthlyPayment, formatDate(l.NextPaymentDate),
			l.LoanTermMonths, l.PaymentsMade, l.OfferRate,
		); err != nil {
			return fmt.Errorf("insert loan %s: %w", l.LoanNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	s.logger.Info("demo records seeded", "accounts", len(DemoAccounts), "loans", len(DemoLoans))
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
