package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/ehdiloan/pkg/calc"
	"github.com/mcclellann/ehdiloan/pkg/models"
	"github.com/mcclellann/ehdiloan/pkg/store"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrInvalidRequest is wrapped by input validation failures.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidState is wrapped when an entity is not in a state that
	// allows the operation, e.g. reviewing an already approved request.
	ErrInvalidState = errors.New("invalid state")
)

// Defaults are the loan terms used on approval when the lender leaves them blank.
type Defaults struct {
	InterestRate decimal.Decimal
	PenaltyRate  decimal.Decimal
	TermMonths   int
}

// Ledger handles the business logic for loan requests, loans and payments.
type Ledger struct {
	storage  store.Storage
	defaults Defaults
	clock    func() time.Time
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, defaults Defaults) *Ledger {
	return &Ledger{
		storage:  s,
		defaults: defaults,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// RequestInput is a broker's loan request submission.
type RequestInput struct {
	BrokerID        int64
	BorrowerName    string
	BorrowerContact string
	LoanAmount      decimal.Decimal
	Purpose         string
}

// SubmitRequest validates and stores a new pending loan request.
func (l *Ledger) SubmitRequest(in RequestInput) (*models.LoanRequest, error) {
	var missing []string
	if strings.TrimSpace(in.BorrowerName) == "" {
		missing = append(missing, "borrower name")
	}
	if strings.TrimSpace(in.BorrowerContact) == "" {
		missing = append(missing, "borrower contact")
	}
	if strings.TrimSpace(in.Purpose) == "" {
		missing = append(missing, "purpose")
	}
	if in.BrokerID <= 0 {
		missing = append(missing, "broker id")
	}
	if len(missing) > 0 {
		return nil, invalidf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if !in.LoanAmount.IsPositive() {
		return nil, invalidf("loan amount must be positive")
	}

	req := &models.LoanRequest{
		ID:              uuid.New(),
		BrokerID:        in.BrokerID,
		BorrowerName:    strings.TrimSpace(in.BorrowerName),
		BorrowerContact: strings.TrimSpace(in.BorrowerContact),
		LoanAmount:      in.LoanAmount,
		Purpose:         strings.TrimSpace(in.Purpose),
		Status:          models.RequestPending,
		RequestedAt:     l.clock(),
	}
	if err := l.storage.CreateLoanRequest(req); err != nil {
		return nil, fmt.Errorf("failed to store loan request: %w", err)
	}

	log.WithFields(log.Fields{
		"request_id": req.ID,
		"broker_id":  req.BrokerID,
		"amount":     req.LoanAmount.StringFixed(2),
	}).Info("Loan request submitted")
	return req, nil
}

// GetRequest retrieves a loan request by its ID.
func (l *Ledger) GetRequest(id uuid.UUID) (*models.LoanRequest, error) {
	return l.storage.GetLoanRequest(id)
}

// ListRequests returns requests matching filter, newest first.
func (l *Ledger) ListRequests(filter store.RequestFilter) ([]*models.LoanRequest, error) {
	return l.storage.ListLoanRequests(filter)
}

type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Review is the lender's decision on a pending request. Zero-valued terms
// fall back to the ledger defaults; a zero StartDate means today.
type Review struct {
	Decision     Decision
	ReviewedBy   int64
	Notes        string
	InterestRate decimal.Decimal
	PenaltyRate  decimal.Decimal
	TermMonths   int
	StartDate    time.Time
}

// ReviewResult carries the updated request and, on approval, the new loan.
type ReviewResult struct {
	Request *models.LoanRequest `json:"request"`
	Loan    *models.Loan        `json:"loan,omitempty"`
}

// ReviewRequest approves or rejects a pending request. Approval prices the
// loan, generates its schedule and stores both atomically with the request.
func (l *Ledger) ReviewRequest(id uuid.UUID, review Review) (*ReviewResult, error) {
	if review.Decision != Approve && review.Decision != Reject {
		return nil, invalidf("decision must be %q or %q, got %q", Approve, Reject, review.Decision)
	}
	if review.ReviewedBy <= 0 {
		return nil, invalidf("reviewer is required")
	}

	req, err := l.storage.GetLoanRequest(id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestPending {
		return nil, fmt.Errorf("%w: loan request is already %s", ErrInvalidState, req.Status)
	}

	now := l.clock()
	req.ReviewedAt = &now
	req.ReviewedBy = &review.ReviewedBy
	req.Notes = strings.TrimSpace(review.Notes)

	if review.Decision == Reject {
		req.Status = models.RequestRejected
		if err := l.storage.UpdateLoanRequest(req); err != nil {
			return nil, fmt.Errorf("failed to reject loan request: %w", err)
		}
		log.WithField("request_id", req.ID).Info("Loan request rejected")
		return &ReviewResult{Request: req}, nil
	}

	loan, schedule, err := l.priceLoan(req, review, now)
	if err != nil {
		return nil, err
	}
	req.Status = models.RequestApproved
	if err := l.storage.ApproveLoanRequest(req, loan, schedule); err != nil {
		return nil, fmt.Errorf("failed to approve loan request: %w", err)
	}

	log.WithFields(log.Fields{
		"request_id":      req.ID,
		"loan_id":         loan.ID,
		"monthly_payment": loan.MonthlyPayment.StringFixed(2),
		"term_months":     loan.TermMonths,
	}).Info("Loan request approved")
	return &ReviewResult{Request: req, Loan: loan}, nil
}

func (l *Ledger) priceLoan(req *models.LoanRequest, review Review, now time.Time) (*models.Loan, []*models.ScheduleItem, error) {
	rate := review.InterestRate
	if rate.IsZero() {
		rate = l.defaults.InterestRate
	}
	penaltyRate := review.PenaltyRate
	if penaltyRate.IsZero() {
		penaltyRate = l.defaults.PenaltyRate
	}
	term := review.TermMonths
	if term == 0 {
		term = l.defaults.TermMonths
	}
	start := review.StartDate
	if start.IsZero() {
		start = now
	}
	startDate := calc.NewDate(start)
	if penaltyRate.IsNegative() {
		return nil, nil, invalidf("penalty rate must not be negative")
	}

	entries, err := calc.GenerateSchedule(calc.LoanTerms{
		Principal:   req.LoanAmount,
		MonthlyRate: rate,
		TermMonths:  term,
		StartDate:   startDate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	payment, err := calc.InstallmentFor(req.LoanAmount, rate, term)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	loan := &models.Loan{
		ID:             uuid.New(),
		RequestID:      req.ID,
		BrokerID:       req.BrokerID,
		BorrowerName:   req.BorrowerName,
		LoanAmount:     req.LoanAmount,
		InterestRate:   rate,
		PenaltyRate:    penaltyRate,
		TermMonths:     term,
		MonthlyPayment: payment,
		StartDate:      startDate.Time,
		Status:         models.LoanActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	schedule := make([]*models.ScheduleItem, 0, len(entries))
	for _, e := range entries {
		schedule = append(schedule, &models.ScheduleItem{
			ID:              uuid.New(),
			LoanID:          loan.ID,
			Period:          e.Period,
			DueDate:         e.DueDate.Time,
			AmountDue:       e.TotalPayment,
			PrincipalAmount: e.Principal,
			InterestAmount:  e.Interest,
			PenaltyAmount:   decimal.Zero,
			Status:          models.ScheduleStatus(e.Status),
		})
	}
	return loan, schedule, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// ListLoans returns loans matching filter, newest first.
func (l *Ledger) ListLoans(filter store.LoanFilter) ([]*models.Loan, error) {
	return l.storage.ListLoans(filter)
}

// GetSchedule returns the stored installments of a loan.
func (l *Ledger) GetSchedule(loanID uuid.UUID) ([]*models.ScheduleItem, error) {
	if _, err := l.storage.GetLoan(loanID); err != nil {
		return nil, err
	}
	return l.storage.GetSchedule(loanID)
}

// Stats returns the lender dashboard counters.
func (l *Ledger) Stats() (*models.LenderStats, error) {
	return l.storage.Stats()
}
