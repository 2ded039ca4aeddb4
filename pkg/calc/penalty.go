package calc

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// PenaltyInput describes an installment to evaluate for lateness. Rates are
// monthly percentages; InterestRate is echoed back and does not change the
// result.
type PenaltyInput struct {
	OriginalAmount decimal.Decimal `json:"originalAmount"`
	DueDate        Date            `json:"dueDate"`
	InterestRate   decimal.Decimal `json:"interestRate"`
	PenaltyRate    decimal.Decimal `json:"penaltyRate"`
}

// PaymentCalculation is a penalty snapshot of one installment at EvaluatedAt.
type PaymentCalculation struct {
	OriginalAmount decimal.Decimal `json:"originalAmount"`
	DueDate        Date            `json:"dueDate"`
	EvaluatedAt    time.Time       `json:"evaluatedAt"`
	PenaltyAmount  decimal.Decimal `json:"penaltyAmount"`
	TotalAmountDue decimal.Decimal `json:"totalAmountDue"`
	DaysLate       int             `json:"daysLate"`
	IsOverdue      bool            `json:"isOverdue"`
	PenaltyRate    decimal.Decimal `json:"penaltyRate"`
	InterestRate   decimal.Decimal `json:"interestRate"`
}

// MonthlyInterest is the flat interest charged on principal for a single
// period. It never compounds.
func MonthlyInterest(principal, ratePercent decimal.Decimal) decimal.Decimal {
	return percentOf(principal, ratePercent)
}

// LatePenalty is one penalty step on amount.
func LatePenalty(amount, penaltyRatePercent decimal.Decimal) decimal.Decimal {
	return percentOf(amount, penaltyRatePercent)
}

// PenaltyMonths is the number of penalty steps owed after daysLate days:
// every started 30-day block counts as a full step.
func PenaltyMonths(daysLate int) int {
	if daysLate <= 0 {
		return 0
	}
	return (daysLate + penaltyPeriodDays - 1) / penaltyPeriodDays
}

// AccumulatedPenalty compounds the penalty monthly. Each step is charged on
// the original amount plus every earlier step, so 35 days late at 5% on 1000
// is 50.00 + 52.50.
func AccumulatedPenalty(original decimal.Decimal, daysLate int, penaltyRatePercent decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	current := original

	for i := 0; i < PenaltyMonths(daysLate); i++ {
		step := LatePenalty(current, penaltyRatePercent)
		total = total.Add(step)
		current = current.Add(step)
	}

	return round2(total)
}

// DaysLate is the number of whole days now is past due, never negative.
func DaysLate(due, now time.Time) int {
	days := math.Floor(daysBetween(due, now))
	if days <= 0 {
		return 0
	}
	return int(days)
}

// daysUntil rounds up, so a due date later today still reads as one day out.
func daysUntil(due, now time.Time) int {
	return int(math.Ceil(daysBetween(now, due)))
}

// daysBetween is to - from in days. It works from Unix seconds because
// time.Duration saturates after about 292 years.
func daysBetween(from, to time.Time) float64 {
	secs := float64(to.Unix()-from.Unix()) + float64(to.Nanosecond()-from.Nanosecond())/1e9
	return secs / secondsPerDay
}

// TotalAmountDue evaluates in at now: how late it is, the compounded penalty
// and what the borrower owes in total.
func TotalAmountDue(in PenaltyInput, now time.Time) (PaymentCalculation, error) {
	if err := requireNonNegative("original amount", in.OriginalAmount); err != nil {
		return PaymentCalculation{}, err
	}
	if err := requireNonNegative("penalty rate", in.PenaltyRate); err != nil {
		return PaymentCalculation{}, err
	}
	if in.DueDate.IsZero() {
		return PaymentCalculation{}, invalid("due date is required")
	}

	calc := PaymentCalculation{
		OriginalAmount: in.OriginalAmount,
		DueDate:        in.DueDate,
		EvaluatedAt:    now,
		PenaltyAmount:  decimal.Zero,
		TotalAmountDue: in.OriginalAmount,
		DaysLate:       DaysLate(in.DueDate.Time, now),
		PenaltyRate:    in.PenaltyRate,
		InterestRate:   in.InterestRate,
	}
	calc.IsOverdue = calc.DaysLate > 0

	if calc.IsOverdue {
		calc.PenaltyAmount = AccumulatedPenalty(in.OriginalAmount, calc.DaysLate, in.PenaltyRate)
		calc.TotalAmountDue = in.OriginalAmount.Add(calc.PenaltyAmount)
	}

	return calc, nil
}
