package calc

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	payments := []PaymentRecord{
		{Amount: d("19701.75"), PaymentDate: date(2025, 4, 1)},
		{Amount: d("20686.84"), PaymentDate: date(2025, 5, 20), PenaltyAmount: d("985.09")},
	}

	got, err := Summarize(d("100000"), d("5"), 6, payments)
	require.NoError(t, err)

	assert.True(t, got.OriginalLoanAmount.Equal(d("100000")))
	assert.True(t, got.TotalInterestAmount.Equal(d("30000.00")), "total interest %s", got.TotalInterestAmount)
	assert.True(t, got.TotalLoanAmount.Equal(d("130000.00")), "total loan %s", got.TotalLoanAmount)
	assert.True(t, got.MonthlyPayment.Equal(d("19701.75")), "monthly %s", got.MonthlyPayment)
	assert.True(t, got.TotalPaid.Equal(d("40388.59")), "paid %s", got.TotalPaid)
	assert.True(t, got.TotalPenaltiesPaid.Equal(d("985.09")), "penalties %s", got.TotalPenaltiesPaid)
	assert.True(t, got.RemainingBalance.Equal(d("89611.41")), "remaining %s", got.RemainingBalance)
	assert.Equal(t, 2, got.PaymentsMade)
	assert.Equal(t, 4, got.PaymentsRemaining)
	assert.Equal(t, 6, got.TermMonths)
}

func TestSummarize_Overpaid(t *testing.T) {
	payments := []PaymentRecord{{Amount: d("60000")}, {Amount: d("60000")}}

	got, err := Summarize(d("100000"), d("10"), 1, payments)
	require.NoError(t, err)

	assert.True(t, got.RemainingBalance.IsZero())
	assert.Equal(t, 0, got.PaymentsRemaining)
	assert.True(t, got.TotalPenaltiesPaid.IsZero())
}

func TestSummarize_RejectsBadInput(t *testing.T) {
	_, err := Summarize(d("100000"), decimal.Zero, 6, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Summarize(d("100000"), d("5"), 0, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Summarize(d("100000"), d("5"), 6, []PaymentRecord{{Amount: d("-10")}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNextPayment_Upcoming(t *testing.T) {
	now := time.Date(2025, 9, 20, 9, 0, 0, 0, time.UTC)

	got, err := NextPayment(NextPaymentInput{
		MonthlyPayment:  d("55000"),
		LastPaymentDate: date(2025, 9, 15),
		InterestRate:    d("10"),
		PenaltyRate:     d("5"),
	}, now)
	require.NoError(t, err)

	assert.Equal(t, "2025-10-15", got.DueDate.String())
	assert.False(t, got.IsOverdue)
	assert.True(t, got.PenaltyAmount.IsZero())
	assert.True(t, got.TotalAmountDue.Equal(d("55000")))
	assert.Equal(t, 25, got.DaysUntilDue)
}

func TestNextPayment_AlreadyLate(t *testing.T) {
	now := time.Date(2025, 11, 19, 12, 0, 0, 0, time.UTC)

	got, err := NextPayment(NextPaymentInput{
		MonthlyPayment:  d("55000"),
		LastPaymentDate: date(2025, 9, 15),
		InterestRate:    d("10"),
		PenaltyRate:     d("5"),
	}, now)
	require.NoError(t, err)

	// Due 2025-10-15, 35 days late: two compounding steps.
	assert.True(t, got.IsOverdue)
	assert.True(t, got.PenaltyAmount.Equal(d("5637.50")), "penalty %s", got.PenaltyAmount)
	assert.True(t, got.TotalAmountDue.Equal(d("60637.50")), "total %s", got.TotalAmountDue)
	assert.Equal(t, -35, got.DaysUntilDue)
	assert.True(t, got.BaseAmount.Equal(d("55000")))
}
