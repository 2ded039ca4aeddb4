package calc

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRecord is a payment already made against a loan.
type PaymentRecord struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   Date            `json:"paymentDate"`
	PenaltyAmount decimal.Decimal `json:"penaltyAmount"`
}

// LoanSummary totals a loan against the payments made so far.
type LoanSummary struct {
	OriginalLoanAmount  decimal.Decimal `json:"originalLoanAmount"`
	TotalInterestAmount decimal.Decimal `json:"totalInterestAmount"`
	TotalLoanAmount     decimal.Decimal `json:"totalLoanAmount"`
	MonthlyPayment      decimal.Decimal `json:"monthlyPayment"`
	TotalPaid           decimal.Decimal `json:"totalPaid"`
	TotalPenaltiesPaid  decimal.Decimal `json:"totalPenaltiesPaid"`
	RemainingBalance    decimal.Decimal `json:"remainingBalance"`
	PaymentsMade        int             `json:"paymentsMade"`
	PaymentsRemaining   int             `json:"paymentsRemaining"`
	InterestRate        decimal.Decimal `json:"interestRate"`
	TermMonths          int             `json:"termMonths"`
}

// NextPaymentInput projects the installment following LastPaymentDate.
type NextPaymentInput struct {
	MonthlyPayment  decimal.Decimal `json:"monthlyPayment"`
	LastPaymentDate Date            `json:"lastPaymentDate"`
	InterestRate    decimal.Decimal `json:"interestRate"`
	PenaltyRate     decimal.Decimal `json:"penaltyRate"`
}

// NextPaymentDetails is the projected next installment. DaysUntilDue goes
// negative once the due date has passed.
type NextPaymentDetails struct {
	DueDate        Date            `json:"dueDate"`
	BaseAmount     decimal.Decimal `json:"baseAmount"`
	PenaltyAmount  decimal.Decimal `json:"penaltyAmount"`
	TotalAmountDue decimal.Decimal `json:"totalAmountDue"`
	DaysUntilDue   int             `json:"daysUntilDue"`
	IsOverdue      bool            `json:"isOverdue"`
}

// FlatInterest is the interest over the whole term: one period's flat
// interest times the number of periods. Unlike AccumulatedPenalty it does not
// compound.
func FlatInterest(loanAmount, monthlyRatePercent decimal.Decimal, termMonths int) decimal.Decimal {
	return MonthlyInterest(loanAmount, monthlyRatePercent).Mul(decimal.NewFromInt(int64(termMonths)))
}

// Summarize totals a loan of loanAmount at monthlyRatePercent over termMonths
// against payments.
func Summarize(loanAmount, monthlyRatePercent decimal.Decimal, termMonths int, payments []PaymentRecord) (LoanSummary, error) {
	monthly, err := InstallmentFor(loanAmount, monthlyRatePercent, termMonths)
	if err != nil {
		return LoanSummary{}, err
	}

	totalPaid := decimal.Zero
	totalPenalties := decimal.Zero
	for i, p := range payments {
		if p.Amount.IsNegative() || p.PenaltyAmount.IsNegative() {
			return LoanSummary{}, invalid("payment %d has a negative amount", i+1)
		}
		totalPaid = totalPaid.Add(p.Amount)
		totalPenalties = totalPenalties.Add(p.PenaltyAmount)
	}

	totalInterest := FlatInterest(loanAmount, monthlyRatePercent, termMonths)
	totalLoan := loanAmount.Add(totalInterest)

	return LoanSummary{
		OriginalLoanAmount:  loanAmount,
		TotalInterestAmount: totalInterest,
		TotalLoanAmount:     totalLoan,
		MonthlyPayment:      monthly,
		TotalPaid:           totalPaid,
		TotalPenaltiesPaid:  totalPenalties,
		RemainingBalance:    decimal.Max(decimal.Zero, totalLoan.Sub(totalPaid)),
		PaymentsMade:        len(payments),
		PaymentsRemaining:   max(0, termMonths-len(payments)),
		InterestRate:        monthlyRatePercent,
		TermMonths:          termMonths,
	}, nil
}

// NextPayment projects the installment one month after in.LastPaymentDate and
// prices it as of now, penalty included if that date has already passed.
func NextPayment(in NextPaymentInput, now time.Time) (NextPaymentDetails, error) {
	if in.LastPaymentDate.IsZero() {
		return NextPaymentDetails{}, invalid("last payment date is required")
	}
	due := in.LastPaymentDate.AddMonths(1)

	snapshot, err := TotalAmountDue(PenaltyInput{
		OriginalAmount: in.MonthlyPayment,
		DueDate:        due,
		InterestRate:   in.InterestRate,
		PenaltyRate:    in.PenaltyRate,
	}, now)
	if err != nil {
		return NextPaymentDetails{}, err
	}

	return NextPaymentDetails{
		DueDate:        due,
		BaseAmount:     in.MonthlyPayment,
		PenaltyAmount:  snapshot.PenaltyAmount,
		TotalAmountDue: snapshot.TotalAmountDue,
		DaysUntilDue:   daysUntil(due.Time, now),
		IsOverdue:      snapshot.IsOverdue,
	}, nil
}
