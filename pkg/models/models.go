package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// LoanRequest is what a broker submits on behalf of a borrower.
type LoanRequest struct {
	ID              uuid.UUID       `json:"id"`
	BrokerID        int64           `json:"broker_id"`
	BorrowerName    string          `json:"borrower_name"`
	BorrowerContact string          `json:"borrower_contact"`
	LoanAmount      decimal.Decimal `json:"loan_amount"`
	Purpose         string          `json:"purpose"`
	Status          RequestStatus   `json:"status"`
	RequestedAt     time.Time       `json:"requested_at"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
	ReviewedBy      *int64          `json:"reviewed_by,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

type LoanStatus string

const (
	LoanActive    LoanStatus = "active"
	LoanCompleted LoanStatus = "completed"
	LoanDefaulted LoanStatus = "defaulted"
)

// Loan is created when the lender approves a request.
type Loan struct {
	ID             uuid.UUID       `json:"id"`
	RequestID      uuid.UUID       `json:"request_id"`
	BrokerID       int64           `json:"broker_id"`
	BorrowerName   string          `json:"borrower_name"`
	LoanAmount     decimal.Decimal `json:"loan_amount"`
	InterestRate   decimal.Decimal `json:"interest_rate"` // Percent per month
	PenaltyRate    decimal.Decimal `json:"penalty_rate"`  // Percent per 30 days late, compounding
	TermMonths     int             `json:"loan_term_months"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	StartDate      time.Time       `json:"start_date"`
	Status         LoanStatus      `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

type ScheduleStatus string

const (
	SchedulePending ScheduleStatus = "pending"
	SchedulePaid    ScheduleStatus = "paid"
	ScheduleOverdue ScheduleStatus = "overdue"
)

// ScheduleItem is a persisted installment. PenaltyAmount is refreshed by the
// overdue sweep.
type ScheduleItem struct {
	ID              uuid.UUID       `json:"id"`
	LoanID          uuid.UUID       `json:"loan_id"`
	Period          int             `json:"period"`
	DueDate         time.Time       `json:"due_date"`
	AmountDue       decimal.Decimal `json:"amount_due"`
	PrincipalAmount decimal.Decimal `json:"principal_amount"`
	InterestAmount  decimal.Decimal `json:"interest_amount"`
	PenaltyAmount   decimal.Decimal `json:"penalty_amount"`
	Status          ScheduleStatus  `json:"status"`
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentRejected PaymentStatus = "rejected"
)

// Payment is submitted by the broker and verified by the lender.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	LoanID        uuid.UUID       `json:"loan_id"`
	ScheduleID    *uuid.UUID      `json:"schedule_id,omitempty"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	PenaltyAmount decimal.Decimal `json:"penalty_amount"`
	Method        string          `json:"payment_method"` // e.g., "gcash", "maya", "bank_transfer"
	Reference     string          `json:"reference"`
	ProofURL      string          `json:"payment_proof_url,omitempty"`
	PaymentDate   time.Time       `json:"payment_date"`
	Status        PaymentStatus   `json:"status"`
	VerifiedBy    *int64          `json:"verified_by,omitempty"`
	VerifiedAt    *time.Time      `json:"verified_at,omitempty"`
}

// LenderStats backs the lender dashboard.
type LenderStats struct {
	TotalRequests   int             `json:"totalRequests"`
	PendingRequests int             `json:"pendingRequests"`
	ApprovedLoans   int             `json:"approvedLoans"`
	TotalLoanAmount decimal.Decimal `json:"totalLoanAmount"`
}
