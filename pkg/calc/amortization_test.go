package calc

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, day int) Date {
	return Date{time.Date(y, m, day, 0, 0, 0, 0, time.UTC)}
}

func TestMonthlyPayment(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		annual    string
		months    int
		want      string
	}{
		{"ten percent monthly", "500000", "120", 12, "73381.66"},
		{"five percent monthly", "100000", "60", 6, "19701.75"},
		{"one percent monthly", "10000", "12", 12, "888.49"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MonthlyPayment(d(tt.principal), d(tt.annual), tt.months)
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestMonthlyPayment_RejectsDegenerateInput(t *testing.T) {
	cases := []struct {
		name      string
		principal decimal.Decimal
		annual    decimal.Decimal
		months    int
	}{
		{"zero rate", d("1000"), decimal.Zero, 12},
		{"negative rate", d("1000"), d("-5"), 12},
		{"zero principal", decimal.Zero, d("12"), 12},
		{"negative principal", d("-1"), d("12"), 12},
		{"zero term", d("1000"), d("12"), 0},
		{"term over fifty years", d("1000"), d("12"), MaxTermMonths + 1},
		{"installment rounds to zero", d("0.01"), d("12"), MaxTermMonths},
		{"huge term with tiny rate", d("1000"), d("0.0000012"), 1_000_000_000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MonthlyPayment(tc.principal, tc.annual, tc.months)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestGenerateSchedule_TenPercentTwelveMonths(t *testing.T) {
	schedule, err := GenerateSchedule(LoanTerms{
		Principal:   d("500000"),
		MonthlyRate: d("10"),
		TermMonths:  12,
		StartDate:   date(2025, 1, 15),
	})
	require.NoError(t, err)
	require.Len(t, schedule, 12)

	first := schedule[0]
	assert.Equal(t, 1, first.Period)
	assert.Equal(t, "2025-02-15", first.DueDate.String())
	assert.True(t, first.Interest.Equal(d("50000.00")), "interest %s", first.Interest)
	assert.True(t, first.Principal.Equal(d("23381.66")), "principal %s", first.Principal)
	assert.True(t, first.TotalPayment.Equal(d("73381.66")), "total %s", first.TotalPayment)
	assert.True(t, first.RemainingBalance.Equal(d("476618.34")), "balance %s", first.RemainingBalance)
	assert.Equal(t, StatusPending, first.Status)

	second := schedule[1]
	assert.True(t, second.Interest.Equal(d("47661.83")), "interest %s", second.Interest)
	assert.True(t, second.RemainingBalance.Equal(d("450898.51")), "balance %s", second.RemainingBalance)

	last := schedule[11]
	assert.Equal(t, 12, last.Period)
	assert.Equal(t, "2026-01-15", last.DueDate.String())
	assert.True(t, last.Principal.Equal(d("66710.53")), "last principal %s", last.Principal)
	assert.True(t, last.Interest.Equal(d("6671.05")), "last interest %s", last.Interest)
	assert.True(t, last.TotalPayment.Equal(d("73381.58")), "last total %s", last.TotalPayment)
	assert.True(t, last.RemainingBalance.IsZero(), "final balance %s", last.RemainingBalance)
}

func TestGenerateSchedule_Invariants(t *testing.T) {
	cases := []LoanTerms{
		{Principal: d("100000"), MonthlyRate: d("5"), TermMonths: 6, StartDate: date(2025, 3, 1)},
		{Principal: d("55000"), MonthlyRate: d("10"), TermMonths: 1, StartDate: date(2025, 8, 26)},
		{Principal: d("1234.56"), MonthlyRate: d("2.5"), TermMonths: 24, StartDate: date(2024, 12, 31)},
		{Principal: d("2500000"), MonthlyRate: d("0.75"), TermMonths: 360, StartDate: date(2025, 1, 1)},
	}

	for _, terms := range cases {
		schedule, err := GenerateSchedule(terms)
		require.NoError(t, err)
		require.Len(t, schedule, terms.TermMonths)

		balance := terms.Principal
		totalPrincipal := decimal.Zero
		for i, entry := range schedule {
			assert.Equal(t, i+1, entry.Period)
			assert.True(t, entry.TotalPayment.Equal(entry.Interest.Add(entry.Principal)),
				"period %d: total %s != interest %s + principal %s", entry.Period, entry.TotalPayment, entry.Interest, entry.Principal)
			balance = balance.Sub(entry.Principal)
			assert.True(t, entry.RemainingBalance.Equal(balance),
				"period %d: balance %s, expected %s", entry.Period, entry.RemainingBalance, balance)
			totalPrincipal = totalPrincipal.Add(entry.Principal)
		}

		assert.True(t, schedule[len(schedule)-1].RemainingBalance.IsZero())
		assert.True(t, totalPrincipal.Equal(terms.Principal), "principal sums to %s, expected %s", totalPrincipal, terms.Principal)
	}
}

func TestGenerateSchedule_CalendarMonths(t *testing.T) {
	schedule, err := GenerateSchedule(LoanTerms{
		Principal:   d("10000"),
		MonthlyRate: d("1"),
		TermMonths:  3,
		StartDate:   date(2025, 1, 31),
	})
	require.NoError(t, err)

	// AddDate normalizes overflowing days into the following month.
	assert.Equal(t, "2025-03-03", schedule[0].DueDate.String())
	assert.Equal(t, "2025-03-31", schedule[1].DueDate.String())
	assert.Equal(t, "2025-05-01", schedule[2].DueDate.String())
}

func TestGenerateSchedule_Idempotent(t *testing.T) {
	terms := LoanTerms{Principal: d("75000"), MonthlyRate: d("3"), TermMonths: 9, StartDate: date(2025, 5, 10)}

	first, err := GenerateSchedule(terms)
	require.NoError(t, err)
	second, err := GenerateSchedule(terms)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGenerateSchedule_RejectsOversizedTerm(t *testing.T) {
	_, err := GenerateSchedule(LoanTerms{
		Principal:   d("1000"),
		MonthlyRate: d("0.0000001"),
		TermMonths:  1_000_000_000,
		StartDate:   date(2025, 1, 1),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	schedule, err := GenerateSchedule(LoanTerms{
		Principal:   d("1000000"),
		MonthlyRate: d("1"),
		TermMonths:  MaxTermMonths,
		StartDate:   date(2025, 1, 1),
	})
	require.NoError(t, err)
	assert.Len(t, schedule, MaxTermMonths)
	assert.True(t, schedule[MaxTermMonths-1].RemainingBalance.IsZero())
}

func TestGenerateSchedule_RequiresStartDate(t *testing.T) {
	_, err := GenerateSchedule(LoanTerms{Principal: d("1000"), MonthlyRate: d("10"), TermMonths: 3})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDate_JSON(t *testing.T) {
	var got Date
	require.NoError(t, got.UnmarshalJSON([]byte(`"2025-09-15T10:00:00Z"`)))
	assert.Equal(t, "2025-09-15", got.String())

	out, err := got.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2025-09-15"`, string(out))

	assert.Error(t, got.UnmarshalJSON([]byte(`"15/09/2025"`)))
}
