// Package calc holds the loan arithmetic: amortization schedules, flat monthly
// interest, compounding late-payment penalties and the loan summary built on
// top of them.
//
// Every function is pure. Nothing reads the wall clock; callers pass the
// evaluation time explicitly. Amounts are rounded to centavos at every step,
// not only at the end.
package calc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultInterestRate is the monthly interest percentage applied when a
	// request does not carry one.
	DefaultInterestRate = 10
	// DefaultPenaltyRate is the monthly late-payment percentage.
	DefaultPenaltyRate = 5
	// MaxTermMonths caps the length of a schedule at fifty years.
	MaxTermMonths = 600

	// penaltyPeriodDays is the length of one penalty step.
	penaltyPeriodDays = 30
	secondsPerDay     = 24 * 60 * 60
	monthsInYear      = 12
	dateLayout        = "2006-01-02"
)

// ErrInvalidInput is returned (wrapped) for non-positive principals, rates or
// terms and for negative amounts.
var ErrInvalidInput = errors.New("invalid calculation input")

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(monthsInYear)
)

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func percentOf(amount, ratePercent decimal.Decimal) decimal.Decimal {
	return round2(amount.Mul(ratePercent).Div(hundred))
}

// annualize turns a per-period percentage into the annual figure
// MonthlyPayment expects. Every caller quoting a monthly rate goes through
// InstallmentFor, so schedules and summaries agree on the payment amount.
func annualize(monthlyRatePercent decimal.Decimal) decimal.Decimal {
	return monthlyRatePercent.Mul(twelve)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func requirePositive(name string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return invalid("%s must be positive, got %s", name, v)
	}
	return nil
}

func requireNonNegative(name string, v decimal.Decimal) error {
	if v.IsNegative() {
		return invalid("%s must not be negative, got %s", name, v)
	}
	return nil
}

func requireTerm(termMonths int) error {
	if termMonths <= 0 {
		return invalid("term must be at least one month, got %d", termMonths)
	}
	if termMonths > MaxTermMonths {
		return invalid("term must be at most %d months, got %d", MaxTermMonths, termMonths)
	}
	return nil
}

// Date is a calendar day at UTC midnight. It marshals as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day, in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, invalid("unparseable date %q", s)
	}
	return NewDate(t), nil
}

// AddMonths moves the date forward by whole calendar months. Day overflow
// normalizes the way time.AddDate does (Jan 31 + 1 month = Mar 3 or Mar 2).
func (d Date) AddMonths(n int) Date {
	return Date{d.Time.AddDate(0, n, 0)}
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
