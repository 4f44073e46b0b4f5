package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugget/loanagent/internal/bank"
)

func testLoan() *bank.Loan {
	return &bank.Loan{
		UserID:             "U1001",
		LoanNumber:         "LN-5001",
		OutstandingBalance: 182000,
		InterestRate:       7.25,
		MonthlyPayment:     1705.44,
		LoanTermMonths:     360,
		PaymentsMade:       62,
	}
}

func testAccount() *bank.Account {
	return &bank.Account{
		UserID:       "U1001",
		CreditScore:  bank.Int(742),
		AnnualIncome: bank.Float64(98000),
	}
}

func TestAnalyzeRefinance_OverrideWins(t *testing.T) {
	loan := testLoan()
	loan.OfferRate = bank.Float64(6.5)

	a, err := AnalyzeRefinance(loan, testAccount(), Overrides{
		InterestRate: bank.Float64(5.0),
		CreditScore:  bank.Int(780),
		Income:       bank.Float64(120000),
	})
	require.NoError(t, err)

	assert.Equal(t, 5.0, a.ProposedRate)
	assert.Equal(t, SourceOverride, a.ProposedRateSource)
	assert.Equal(t, 780, a.CreditScore)
	assert.Equal(t, 120000.0, a.AnnualIncome)
	assert.InDelta(t, 2.25, a.RateDifference, 1e-9)
	assert.InDelta(t, 182000*0.0225/12, a.MonthlySavings, 1e-9)
	assert.InDelta(t, a.MonthlySavings*12, a.AnnualSavings, 1e-9)
	assert.Equal(t, Favorable, a.Recommendation)
}

func TestAnalyzeRefinance_Precedence(t *testing.T) {
	tests := []struct {
		name       string
		offer      *float64
		override   *float64
		wantRate   float64
		wantSource Source
	}{
		{"override beats offer", bank.Float64(6.5), bank.Float64(5.0), 5.0, SourceOverride},
		{"offer beats estimate", bank.Float64(6.5), nil, 6.5, SourceOffer},
		{"estimate when nothing else", nil, nil, 7.25 * 0.95, SourceEstimate},
		{"zero override ignored", nil, bank.Float64(0), 7.25 * 0.95, SourceEstimate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loan := testLoan()
			loan.OfferRate = tt.offer
			a, err := AnalyzeRefinance(loan, testAccount(), Overrides{InterestRate: tt.override})
			require.NoError(t, err)
			assert.InDelta(t, tt.wantRate, a.ProposedRate, 1e-9)
			assert.Equal(t, tt.wantSource, a.ProposedRateSource)
		})
	}
}

func TestAnalyzeRefinance_Defaults(t *testing.T) {
	a, err := AnalyzeRefinance(testLoan(), &bank.Account{UserID: "U1001"}, Overrides{})
	require.NoError(t, err)

	assert.Equal(t, DefaultCreditScore, a.CreditScore)
	assert.Equal(t, SourceDefault, a.CreditScoreSource)
	assert.Equal(t, DefaultIncome, a.AnnualIncome)
	assert.Equal(t, SourceDefault, a.IncomeSource)
}

func TestAnalyzeRefinance_StoredValues(t *testing.T) {
	a, err := AnalyzeRefinance(testLoan(), testAccount(), Overrides{})
	require.NoError(t, err)

	assert.Equal(t, 742, a.CreditScore)
	assert.Equal(t, SourceStored, a.CreditScoreSource)
	assert.Equal(t, 98000.0, a.AnnualIncome)
}

func TestAnalyzeRefinance_Threshold(t *testing.T) {
	tests := []struct {
		name     string
		proposed float64
		want     Recommendation
	}{
		{"difference 0.49", 6.76, Neutral},
		{"difference exactly 0.5", 6.75, Neutral},
		{"difference 0.51", 6.74, Favorable},
		{"rate increase", 8.0, Neutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := AnalyzeRefinance(testLoan(), testAccount(), Overrides{InterestRate: bank.Float64(tt.proposed)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Recommendation)
		})
	}
}

func TestAnalyzeRefinance_Idempotent(t *testing.T) {
	o := Overrides{InterestRate: bank.Float64(6.1)}
	first, err := AnalyzeRefinance(testLoan(), testAccount(), o)
	require.NoError(t, err)
	second, err := AnalyzeRefinance(testLoan(), testAccount(), o)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.Render(), second.Render())
}

func TestAnalyzeRefinance_MissingRecords(t *testing.T) {
	_, err := AnalyzeRefinance(nil, testAccount(), Overrides{})
	assert.ErrorIs(t, err, bank.ErrNotFound)

	_, err = AnalyzeRefinance(testLoan(), nil, Overrides{})
	assert.ErrorIs(t, err, bank.ErrNotFound)
}

func TestRefinanceAnalysis_Render(t *testing.T) {
	a, err := AnalyzeRefinance(testLoan(), testAccount(), Overrides{InterestRate: bank.Float64(5.0)})
	require.NoError(t, err)

	out := a.Render()
	assert.Contains(t, out, "Refinance Analysis for User U1001")
	assert.Contains(t, out, "- Balance: $182,000.00")
	assert.Contains(t, out, "- New Rate: 5% (user-provided)")
	assert.Contains(t, out, "Rate Improvement: 2.25 percentage points")
	assert.Contains(t, out, "Recommendation: Proceed with refinance")
}
