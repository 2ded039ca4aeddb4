package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/ehdiloan/pkg/calc"
	"github.com/mcclellann/ehdiloan/pkg/metrics"
	"github.com/mcclellann/ehdiloan/pkg/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// PaymentInput is a payment submitted against a loan, pending verification.
type PaymentInput struct {
	Amount   decimal.Decimal
	Method   string
	ProofURL string
}

// RecordPayment stores a pending payment. It is applied to the earliest
// unpaid installment no other pending payment is waiting on, and the penalty
// owed on that installment at the time of payment is recorded with it.
func (l *Ledger) RecordPayment(loanID uuid.UUID, in PaymentInput) (*models.Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, invalidf("amount must be positive")
	}
	method := strings.TrimSpace(in.Method)
	if method == "" {
		return nil, invalidf("payment method is required")
	}

	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanActive {
		return nil, fmt.Errorf("%w: loan is %s", ErrInvalidState, loan.Status)
	}

	now := l.clock()
	id := uuid.New()
	payment := &models.Payment{
		ID:            id,
		LoanID:        loan.ID,
		AmountPaid:    in.Amount,
		PenaltyAmount: decimal.Zero,
		Method:        method,
		Reference:     paymentReference(loan.ID, id, now),
		ProofURL:      strings.TrimSpace(in.ProofURL),
		PaymentDate:   now,
		Status:        models.PaymentPending,
	}

	schedule, err := l.storage.GetSchedule(loan.ID)
	if err != nil {
		return nil, err
	}
	payments, err := l.storage.GetPaymentsForLoan(loan.ID)
	if err != nil {
		return nil, err
	}
	if item := nextUnclaimed(schedule, payments); item != nil {
		snapshot, err := l.evaluate(loan, item, now)
		if err != nil {
			return nil, err
		}
		payment.ScheduleID = &item.ID
		payment.PenaltyAmount = snapshot.PenaltyAmount
	}

	if err := l.storage.CreatePayment(payment); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	log.WithFields(log.Fields{
		"loan_id":   loan.ID,
		"reference": payment.Reference,
		"amount":    payment.AmountPaid.StringFixed(2),
		"penalty":   payment.PenaltyAmount.StringFixed(2),
	}).Info("Payment submitted")
	return payment, nil
}

// paymentReference is PAY-<loan>-<unix ms>-<payment>, with the loan and
// payment IDs shortened.
func paymentReference(loanID, paymentID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("PAY-%s-%d-%s",
		strings.ToUpper(loanID.String()[:8]), at.UnixMilli(), strings.ToUpper(paymentID.String()[:6]))
}

// GetPayments returns a loan's payment history, oldest first.
func (l *Ledger) GetPayments(loanID uuid.UUID) ([]*models.Payment, error) {
	if _, err := l.storage.GetLoan(loanID); err != nil {
		return nil, err
	}
	return l.storage.GetPaymentsForLoan(loanID)
}

// Verification is the lender's decision on a submitted payment.
type Verification struct {
	VerifiedBy int64
	Approve    bool
}

// VerifyPayment accepts or rejects a pending payment. Once verified payments
// against an installment cover its amount plus penalty the installment is
// paid, and the loan is completed once nothing remains. The payment, the
// installment and the loan are stored together.
func (l *Ledger) VerifyPayment(paymentID uuid.UUID, v Verification) (*models.Payment, error) {
	if v.VerifiedBy <= 0 {
		return nil, invalidf("verifier is required")
	}

	payment, err := l.storage.GetPayment(paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentPending {
		return nil, fmt.Errorf("%w: payment is already %s", ErrInvalidState, payment.Status)
	}

	now := l.clock()
	verified := *payment
	verified.VerifiedBy = &v.VerifiedBy
	verified.VerifiedAt = &now
	verified.Status = models.PaymentRejected
	if v.Approve {
		verified.Status = models.PaymentVerified
	}

	if verified.Status == models.PaymentRejected {
		if err := l.storage.SavePaymentVerification(&verified, nil, nil); err != nil {
			return nil, fmt.Errorf("failed to reject payment: %w", err)
		}
		log.WithField("reference", verified.Reference).Info("Payment rejected")
		return &verified, nil
	}

	loan, err := l.storage.GetLoan(verified.LoanID)
	if err != nil {
		return nil, err
	}
	schedule, err := l.storage.GetSchedule(loan.ID)
	if err != nil {
		return nil, err
	}
	payments, err := l.storage.GetPaymentsForLoan(loan.ID)
	if err != nil {
		return nil, err
	}
	schedule = slices.Clone(schedule)
	payments = withPayment(payments, &verified)

	settled := settleInstallment(schedule, payments, &verified)
	summary, fullyPaid, err := completion(loan, schedule, payments)
	if err != nil {
		return nil, err
	}

	var completed *models.Loan
	if fullyPaid && loan.Status == models.LoanActive {
		c := *loan
		markCompleted(&c, now)
		completed = &c
	}

	if err := l.storage.SavePaymentVerification(&verified, settled, completed); err != nil {
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	if completed != nil {
		loanCompleted(completed, summary)
	}

	fields := log.Fields{"reference": verified.Reference}
	if settled != nil {
		fields["period"] = settled.Period
	}
	log.WithFields(fields).Info("Payment verified")
	return &verified, nil
}

// withPayment returns payments with p in place of the stored copy of it.
func withPayment(payments []*models.Payment, p *models.Payment) []*models.Payment {
	out := make([]*models.Payment, 0, len(payments)+1)
	found := false
	for _, existing := range payments {
		if existing.ID == p.ID {
			existing, found = p, true
		}
		out = append(out, existing)
	}
	if !found {
		out = append(out, p)
	}
	return out
}

// settleInstallment marks the installment payment was applied to as paid,
// in schedule, once the verified payments against it cover the amount due
// plus the penalty recorded on payment. It returns the settled installment,
// or nil when nothing changed.
func settleInstallment(schedule []*models.ScheduleItem, payments []*models.Payment, payment *models.Payment) *models.ScheduleItem {
	if payment.ScheduleID == nil {
		return nil
	}
	for i, item := range schedule {
		if item.ID != *payment.ScheduleID || item.Status == models.SchedulePaid {
			continue
		}
		paid := decimal.Zero
		for _, p := range payments {
			if p.Status == models.PaymentVerified && p.ScheduleID != nil && *p.ScheduleID == item.ID {
				paid = paid.Add(p.AmountPaid)
			}
		}
		if paid.LessThan(item.AmountDue.Add(payment.PenaltyAmount)) {
			log.WithFields(log.Fields{
				"reference": payment.Reference,
				"period":    item.Period,
				"paid":      paid.StringFixed(2),
			}).Warn("Partial payment, installment left open")
			return nil
		}
		settled := *item
		settled.Status = models.SchedulePaid
		settled.PenaltyAmount = payment.PenaltyAmount
		schedule[i] = &settled
		return &settled
	}
	return nil
}

// Completion reports whether a loan is fully paid.
type Completion struct {
	Loan      *models.Loan     `json:"loan"`
	Summary   calc.LoanSummary `json:"summary"`
	FullyPaid bool             `json:"fullyPaid"`
}

// CompleteLoan re-evaluates a loan and marks it completed once every
// installment is paid or verified payments cover the total loan amount.
func (l *Ledger) CompleteLoan(loanID uuid.UUID) (*Completion, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	schedule, err := l.storage.GetSchedule(loan.ID)
	if err != nil {
		return nil, err
	}
	payments, err := l.storage.GetPaymentsForLoan(loan.ID)
	if err != nil {
		return nil, err
	}

	summary, fullyPaid, err := completion(loan, schedule, payments)
	if err != nil {
		return nil, err
	}
	if fullyPaid && loan.Status == models.LoanActive {
		markCompleted(loan, l.clock())
		if err := l.storage.UpdateLoan(loan); err != nil {
			return nil, fmt.Errorf("failed to complete loan: %w", err)
		}
		loanCompleted(loan, summary)
	}

	return &Completion{Loan: loan, Summary: summary, FullyPaid: fullyPaid}, nil
}

func completion(loan *models.Loan, schedule []*models.ScheduleItem, payments []*models.Payment) (calc.LoanSummary, bool, error) {
	summary, err := summarizePayments(loan, payments)
	if err != nil {
		return calc.LoanSummary{}, false, err
	}
	allPaid := len(schedule) > 0
	for _, item := range schedule {
		if item.Status != models.SchedulePaid {
			allPaid = false
			break
		}
	}
	return summary, allPaid || summary.RemainingBalance.IsZero(), nil
}

func markCompleted(loan *models.Loan, now time.Time) {
	loan.Status = models.LoanCompleted
	loan.CompletedAt = &now
	loan.UpdatedAt = now
}

func loanCompleted(loan *models.Loan, summary calc.LoanSummary) {
	metrics.LoansCompleted.Inc()
	log.WithFields(log.Fields{
		"loan_id":    loan.ID,
		"total_paid": summary.TotalPaid.StringFixed(2),
	}).Info("Loan marked as fully paid")
}

// LoanSummary totals a loan against its verified payments.
func (l *Ledger) LoanSummary(loanID uuid.UUID) (*calc.LoanSummary, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	summary, err := l.summarize(loan)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (l *Ledger) summarize(loan *models.Loan) (calc.LoanSummary, error) {
	payments, err := l.storage.GetPaymentsForLoan(loan.ID)
	if err != nil {
		return calc.LoanSummary{}, err
	}
	return summarizePayments(loan, payments)
}

func summarizePayments(loan *models.Loan, payments []*models.Payment) (calc.LoanSummary, error) {
	records, _ := verifiedRecords(payments)
	summary, err := calc.Summarize(loan.LoanAmount, loan.InterestRate, loan.TermMonths, records)
	if err != nil {
		return calc.LoanSummary{}, fmt.Errorf("failed to summarize loan %s: %w", loan.ID, err)
	}
	return summary, nil
}

// verifiedRecords converts verified payments to calc records and returns the
// latest payment date, zero when nothing was paid yet.
func verifiedRecords(payments []*models.Payment) ([]calc.PaymentRecord, time.Time) {
	var records []calc.PaymentRecord
	var last time.Time
	for _, p := range payments {
		if p.Status != models.PaymentVerified {
			continue
		}
		records = append(records, calc.PaymentRecord{
			Amount:        p.AmountPaid,
			PaymentDate:   calc.NewDate(p.PaymentDate),
			PenaltyAmount: p.PenaltyAmount,
		})
		if p.PaymentDate.After(last) {
			last = p.PaymentDate
		}
	}
	return records, last
}

// NextPayment projects the loan's next installment one month after the last
// verified payment, or after the start date when nothing was paid yet.
func (l *Ledger) NextPayment(loanID uuid.UUID, now time.Time) (*calc.NextPaymentDetails, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	payments, err := l.storage.GetPaymentsForLoan(loan.ID)
	if err != nil {
		return nil, err
	}
	_, last := verifiedRecords(payments)
	if last.IsZero() {
		last = loan.StartDate
	}

	details, err := calc.NextPayment(calc.NextPaymentInput{
		MonthlyPayment:  loan.MonthlyPayment,
		LastPaymentDate: calc.NewDate(last),
		InterestRate:    loan.InterestRate,
		PenaltyRate:     loan.PenaltyRate,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("failed to project next payment for loan %s: %w", loan.ID, err)
	}
	return &details, nil
}

// RefreshOverdue marks every unpaid installment past its due date as overdue
// and recomputes its compounded penalty as of now. It returns the number of
// installments updated.
func (l *Ledger) RefreshOverdue(now time.Time) (int, error) {
	items, err := l.storage.ListScheduleItemsDueBefore(now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due installments: %w", err)
	}

	loans := make(map[uuid.UUID]*models.Loan)
	updated := 0
	for _, item := range items {
		loan, ok := loans[item.LoanID]
		if !ok {
			loan, err = l.storage.GetLoan(item.LoanID)
			if err != nil {
				log.WithError(err).WithField("loan_id", item.LoanID).Error("Error loading loan for overdue sweep")
				continue
			}
			loans[item.LoanID] = loan
		}

		snapshot, err := l.evaluate(loan, item, now)
		if err != nil {
			log.WithError(err).WithField("schedule_id", item.ID).Error("Error evaluating installment")
			continue
		}
		if !snapshot.IsOverdue {
			continue
		}
		if item.Status == models.ScheduleOverdue && item.PenaltyAmount.Equal(snapshot.PenaltyAmount) {
			continue
		}

		wasPending := item.Status == models.SchedulePending
		item.Status = models.ScheduleOverdue
		item.PenaltyAmount = snapshot.PenaltyAmount
		if err := l.storage.UpdateScheduleItem(item); err != nil {
			log.WithError(err).WithField("schedule_id", item.ID).Error("Error updating overdue installment")
			continue
		}
		if wasPending {
			metrics.OverdueMarked.Inc()
		}
		updated++

		log.WithFields(log.Fields{
			"loan_id":   loan.ID,
			"period":    item.Period,
			"days_late": snapshot.DaysLate,
			"penalty":   snapshot.PenaltyAmount.StringFixed(2),
		}).Info("Installment overdue")
	}
	return updated, nil
}

// nextUnclaimed is the earliest unpaid installment that no pending payment
// is already applied to, or nil when there is none.
func nextUnclaimed(schedule []*models.ScheduleItem, payments []*models.Payment) *models.ScheduleItem {
	claimed := make(map[uuid.UUID]bool)
	for _, p := range payments {
		if p.Status == models.PaymentPending && p.ScheduleID != nil {
			claimed[*p.ScheduleID] = true
		}
	}
	for _, item := range schedule {
		if item.Status != models.SchedulePaid && !claimed[item.ID] {
			return item
		}
	}
	return nil
}

func (l *Ledger) evaluate(loan *models.Loan, item *models.ScheduleItem, now time.Time) (calc.PaymentCalculation, error) {
	return calc.TotalAmountDue(calc.PenaltyInput{
		OriginalAmount: item.AmountDue,
		DueDate:        calc.NewDate(item.DueDate),
		InterestRate:   loan.InterestRate,
		PenaltyRate:    loan.PenaltyRate,
	}, now)
}
