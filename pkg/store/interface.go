package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/ehdiloan/pkg/models"
)

// ErrNotFound is wrapped by every lookup that matches no row.
var ErrNotFound = errors.New("not found")

// RequestFilter narrows ListLoanRequests. Zero values match everything.
type RequestFilter struct {
	BrokerID int64
	Status   models.RequestStatus
}

// LoanFilter narrows ListLoans. Zero values match everything.
type LoanFilter struct {
	BrokerID int64
	Status   models.LoanStatus
}

// Storage defines the interface for database operations on loan requests,
// loans, their schedules and payments.
type Storage interface {
	CreateLoanRequest(req *models.LoanRequest) error
	GetLoanRequest(id uuid.UUID) (*models.LoanRequest, error)
	ListLoanRequests(filter RequestFilter) ([]*models.LoanRequest, error)
	UpdateLoanRequest(req *models.LoanRequest) error

	// ApproveLoanRequest stores the reviewed request, the new loan and its
	// schedule in one transaction.
	ApproveLoanRequest(req *models.LoanRequest, loan *models.Loan, schedule []*models.ScheduleItem) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	ListLoans(filter LoanFilter) ([]*models.Loan, error)
	UpdateLoan(loan *models.Loan) error

	GetSchedule(loanID uuid.UUID) ([]*models.ScheduleItem, error)
	ListScheduleItemsDueBefore(t time.Time) ([]*models.ScheduleItem, error)
	UpdateScheduleItem(item *models.ScheduleItem) error

	CreatePayment(payment *models.Payment) error
	GetPayment(id uuid.UUID) (*models.Payment, error)
	// SavePaymentVerification stores the payment, the installment it settled
	// and the loan it completed in one transaction. settled and completed may
	// be nil.
	SavePaymentVerification(payment *models.Payment, settled *models.ScheduleItem, completed *models.Loan) error
	GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error)

	Stats() (*models.LenderStats, error)

	Close() error
}
