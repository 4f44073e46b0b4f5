package bank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Options configures an SQLStore.
type Options struct {
	Driver string
	DSN    string
	// QueryTimeout bounds every lookup. Zero means 5 seconds.
	QueryTimeout time.Duration
	Logger       *slog.Logger
}

// SQLStore is a Repository over database/sql. It is safe for concurrent
// use; the underlying pool is shared by all requests.
type SQLStore struct {
	db           *sql.DB
	driver       string
	queryTimeout time.Duration
	logger       *slog.Logger
}

// Open connects to the configured database. The connection is not
// verified; call Ping for that.
func Open(opts Options) (*SQLStore, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}

	dsn := opts.DSN
	switch opts.Driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case DriverPostgres, DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Driver, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &SQLStore{
		db:           db,
		driver:       opts.Driver,
		queryTimeout: opts.QueryTimeout,
		logger:       opts.Logger.With("component", "bank", "driver", opts.Driver),
	}, nil
}

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Driver returns the driver name the store was opened with.
func (s *SQLStore) Driver() string { return s.driver }

// Ping runs SELECT 1 to verify connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database probe: %w", err)
	}
	return nil
}

const accountColumns = `user_id, account_number, account_type, account_status,
	annual_income, credit_score, debt_to_income_ratio, email, last_updated`

const loanColumns = `user_id, loan_number, loan_type, original_amount,
	outstanding_balance, interest_rate, monthly_payment, next_payment_date,
	loan_term_months, payments_made, offer_rate`

// Account returns the user's account record.
func (s *SQLStore) Account(ctx context.Context, userID string) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := s.rebind("SELECT " + accountColumns + " FROM user_accounts WHERE user_id = ?")

	var (
		a           Account
		income      sql.NullFloat64
		score       sql.NullInt64
		dti         sql.NullFloat64
		email       sql.NullString
		lastUpdated sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&a.UserID, &a.AccountNumber, &a.AccountType, &a.AccountStatus,
		&income, &score, &dti, &email, &lastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}

	if income.Valid {
		a.AnnualIncome = &income.Float64
	}
	if score.Valid {
		a.CreditScore = Int(int(score.Int64))
	}
	if dti.Valid {
		a.DebtToIncomeRatio = &dti.Float64
	}
	a.Email = email.String
	a.LastUpdated = parseTimestamp(lastUpdated.String)

	s.logger.Debug("account loaded", "user_id", userID)
	return &a, nil
}

// Loan returns the user's loan. A user with several loans gets the one
// with the lowest loan number.
func (s *SQLStore) Loan(ctx context.Context, userID string) (*Loan, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := s.rebind("SELECT " + loanColumns + " FROM user_loans WHERE user_id = ? ORDER BY loan_number")

	var (
		l        Loan
		nextDate sql.NullString
		offer    sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&l.UserID, &l.LoanNumber, &l.LoanType, &l.OriginalAmount,
		&l.OutstandingBalance, &l.InterestRate, &l.MonthlyPayment, &nextDate,
		&l.LoanTermMonths, &l.PaymentsMade, &offer,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loan for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query loan: %w", err)
	}

	l.NextPaymentDate = parseTimestamp(nextDate.String)
	if offer.Valid {
		l.OfferRate = &offer.Float64
	}

	s.logger.Debug("loan loaded", "user_id", userID, "loan_number", l.LoanNumber)
	return &l, nil
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Dates are stored as text so the three drivers scan them identically.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(DateLayout)
}

func formatTimestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
