package calc

import (
	"math"

	"github.com/shopspring/decimal"
)

// ScheduleStatus is carried on schedule entries; the engine always emits
// StatusPending and leaves transitions to the ledger.
type ScheduleStatus string

const (
	StatusPending ScheduleStatus = "pending"
	StatusPaid    ScheduleStatus = "paid"
	StatusOverdue ScheduleStatus = "overdue"
)

// LoanTerms are the inputs of a schedule. MonthlyRate is a percentage applied
// once per period (10 means 10% a month).
type LoanTerms struct {
	Principal   decimal.Decimal `json:"loanAmount"`
	MonthlyRate decimal.Decimal `json:"interestRate"`
	TermMonths  int             `json:"termMonths"`
	StartDate   Date            `json:"startDate"`
}

// ScheduleEntry is one row of an amortization table.
type ScheduleEntry struct {
	Period           int             `json:"month"`
	DueDate          Date            `json:"dueDate"`
	TotalPayment     decimal.Decimal `json:"totalPayment"`
	Principal        decimal.Decimal `json:"principalAmount"`
	Interest         decimal.Decimal `json:"interestAmount"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
	Status           ScheduleStatus  `json:"status"`
}

// MonthlyPayment returns the fixed installment for an amortizing loan:
//
//	r       = annualRatePercent / 100 / 12
//	payment = P * r * (1+r)^n / ((1+r)^n - 1)
//
// rounded to two decimals. A zero rate is rejected rather than special-cased,
// as is a term over MaxTermMonths or an installment that rounds to zero.
func MonthlyPayment(principal, annualRatePercent decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if err := requirePositive("principal", principal); err != nil {
		return decimal.Zero, err
	}
	if err := requirePositive("interest rate", annualRatePercent); err != nil {
		return decimal.Zero, err
	}
	if err := requireTerm(termMonths); err != nil {
		return decimal.Zero, err
	}

	// The power term is evaluated in float64; the result is brought back to
	// decimal and rounded before anything else touches it.
	r := annualRatePercent.InexactFloat64() / 100 / monthsInYear
	factor := math.Pow(1+r, float64(termMonths))
	payment := principal.InexactFloat64() * r * factor / (factor - 1)
	if math.IsNaN(payment) || math.IsInf(payment, 0) {
		return decimal.Zero, invalid("payment overflows for principal %s over %d months", principal, termMonths)
	}

	installment := round2(decimal.NewFromFloat(payment))
	if !installment.IsPositive() {
		return decimal.Zero, invalid("installment for principal %s over %d months rounds to zero", principal, termMonths)
	}
	return installment, nil
}

// InstallmentFor is the fixed payment on a loan quoted at a monthly rate.
func InstallmentFor(principal, monthlyRatePercent decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	return MonthlyPayment(principal, annualize(monthlyRatePercent), termMonths)
}

// GenerateSchedule builds the amortization table for terms. Interest for each
// period is charged on the running balance at terms.MonthlyRate; the last
// period's principal is whatever balance is left, so the table always closes
// at exactly zero.
func GenerateSchedule(terms LoanTerms) ([]ScheduleEntry, error) {
	if terms.StartDate.IsZero() {
		return nil, invalid("start date is required")
	}
	payment, err := InstallmentFor(terms.Principal, terms.MonthlyRate, terms.TermMonths)
	if err != nil {
		return nil, err
	}

	schedule := make([]ScheduleEntry, 0, terms.TermMonths)
	remaining := terms.Principal

	for period := 1; period <= terms.TermMonths; period++ {
		interest := percentOf(remaining, terms.MonthlyRate)

		var principal decimal.Decimal
		if period == terms.TermMonths {
			principal = remaining
		} else {
			principal = round2(payment.Sub(interest))
		}
		remaining = remaining.Sub(principal)

		schedule = append(schedule, ScheduleEntry{
			Period:           period,
			DueDate:          terms.StartDate.AddMonths(period),
			TotalPayment:     round2(interest.Add(principal)),
			Principal:        round2(principal),
			Interest:         interest,
			RemainingBalance: round2(remaining),
			Status:           StatusPending,
		})
	}

	return schedule, nil
}
