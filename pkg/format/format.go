// Package format renders amounts and dates for borrower-facing text:
// receipts, reminders and the lender dashboard export.
package format

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const pesoSign = "₱"

var printer = message.NewPrinter(language.MustParse("en-PH"))

// Currency formats amount as Philippine pesos with digit grouping,
// e.g. ₱1,234,567.80. Amounts are rounded to centavos without going through
// float64.
func Currency(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	fixed := amount.StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")
	return sign + pesoSign + groupThousands(whole) + "." + cents
}

// groupThousands groups a string of digits. Values that fit in an int64 go
// through the locale printer; larger ones are grouped by hand with the same
// separator.
func groupThousands(digits string) string {
	if n, err := strconv.ParseInt(digits, 10, 64); err == nil {
		return printer.Sprintf("%d", n)
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteString(",")
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Date is the long form used on schedules: September 15, 2025.
func Date(t time.Time) string {
	return t.Format("January 2, 2006")
}

// DateTime is the short form used in payment history: Sep 15, 2025, 06:00 PM.
func DateTime(t time.Time) string {
	return t.Format("Jan 2, 2006, 03:04 PM")
}
