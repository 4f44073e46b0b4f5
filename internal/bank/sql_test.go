package bank

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(Options{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "data", "bank.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Seed(ctx))
	return s
}

func TestSQLStore_Account(t *testing.T) {
	s := testStore(t)

	a, err := s.Account(context.Background(), "U1001")
	require.NoError(t, err)

	assert.Equal(t, "ACC-100100", a.AccountNumber)
	assert.Equal(t, "Active", a.AccountStatus)
	require.NotNil(t, a.AnnualIncome)
	assert.InDelta(t, 98000, *a.AnnualIncome, 0.001)
	require.NotNil(t, a.CreditScore)
	assert.Equal(t, 742, *a.CreditScore)
	assert.Equal(t, time.Date(2026, 9, 30, 14, 0, 0, 0, time.UTC), a.LastUpdated.UTC())
}

func TestSQLStore_AccountNullColumns(t *testing.T) {
	s := testStore(t)

	a, err := s.Account(context.Background(), "U1003")
	require.NoError(t, err)
	assert.Nil(t, a.AnnualIncome)
	assert.Nil(t, a.CreditScore)
	assert.Nil(t, a.DebtToIncomeRatio)
	assert.True(t, a.LastUpdated.IsZero())
}

func TestSQLStore_Loan(t *testing.T) {
	s := testStore(t)

	l, err := s.Loan(context.Background(), "U1001")
	require.NoError(t, err)

	assert.Equal(t, "LN-5001", l.LoanNumber)
	assert.InDelta(t, 182000, l.OutstandingBalance, 0.001)
	assert.InDelta(t, 7.25, l.InterestRate, 0.0001)
	assert.Equal(t, 360, l.LoanTermMonths)
	assert.Equal(t, 62, l.PaymentsMade)
	assert.Equal(t, "2026-11-01", l.NextPaymentDate.Format(DateLayout))
	require.NotNil(t, l.OfferRate)
	assert.InDelta(t, 6.5, *l.OfferRate, 0.0001)

	l2, err := s.Loan(context.Background(), "U1002")
	require.NoError(t, err)
	assert.Nil(t, l2.OfferRate)
}

func TestSQLStore_NotFound(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Account(ctx, "U9999")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Loan(ctx, "U1003")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_SeedIsRepeatable(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Seed(context.Background()))

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM user_loans").Scan(&n))
	assert.Equal(t, len(DemoLoans), n)
}

func TestSQLStore_Ping(t *testing.T) {
	s := testStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Options{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	my := &SQLStore{driver: DriverMySQL}
	assert.Equal(t, "WHERE x = ?", my.rebind("WHERE x = ?"))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"2026-11-01", time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)},
		{"2026-09-30T14:00:00Z", time.Date(2026, 9, 30, 14, 0, 0, 0, time.UTC)},
		{"2026-09-30 14:00:00", time.Date(2026, 9, 30, 14, 0, 0, 0, time.UTC)},
		{"next tuesday", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseTimestamp(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
