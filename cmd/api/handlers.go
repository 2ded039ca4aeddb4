package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/ehdiloan/pkg/calc"
	"github.com/mcclellann/ehdiloan/pkg/format"
	"github.com/mcclellann/ehdiloan/pkg/ledger"
	"github.com/mcclellann/ehdiloan/pkg/models"
	"github.com/mcclellann/ehdiloan/pkg/store"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Error encoding response")
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps ledger and store errors to a status code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidRequest), errors.Is(err, calc.ErrInvalidInput):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInvalidState):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	default:
		log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		writeErrorMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid ID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

func brokerIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("brokerId")
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid brokerId")
		return 0, false
	}
	return id, true
}

// evaluationTime reads the optional asOf query parameter, defaulting to now.
func evaluationTime(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("asOf")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	d, err := calc.ParseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	return d.Time, nil
}

func (s *Server) submitRequestHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BrokerID        int64           `json:"broker_id"`
		BorrowerName    string          `json:"borrower_name"`
		BorrowerContact string          `json:"borrower_contact"`
		LoanAmount      decimal.Decimal `json:"loan_amount"`
		Purpose         string          `json:"purpose"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := s.ledger.SubmitRequest(ledger.RequestInput{
		BrokerID:        req.BrokerID,
		BorrowerName:    req.BorrowerName,
		BorrowerContact: req.BorrowerContact,
		LoanAmount:      req.LoanAmount,
		Purpose:         req.Purpose,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listRequestsHandler(w http.ResponseWriter, r *http.Request) {
	brokerID, ok := brokerIDParam(w, r)
	if !ok {
		return
	}
	requests, err := s.ledger.ListRequests(store.RequestFilter{
		BrokerID: brokerID,
		Status:   models.RequestStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if requests == nil {
		requests = []*models.LoanRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Server) getRequestHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := s.ledger.GetRequest(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) reviewRequestHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Decision     ledger.Decision `json:"decision"`
		ReviewedBy   int64           `json:"reviewed_by"`
		Notes        string          `json:"notes"`
		InterestRate decimal.Decimal `json:"interest_rate"`
		PenaltyRate  decimal.Decimal `json:"penalty_rate"`
		TermMonths   int             `json:"loan_term_months"`
		StartDate    calc.Date       `json:"start_date"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.ledger.ReviewRequest(id, ledger.Review{
		Decision:     req.Decision,
		ReviewedBy:   req.ReviewedBy,
		Notes:        req.Notes,
		InterestRate: req.InterestRate,
		PenaltyRate:  req.PenaltyRate,
		TermMonths:   req.TermMonths,
		StartDate:    req.StartDate.Time,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	brokerID, ok := brokerIDParam(w, r)
	if !ok {
		return
	}
	loans, err := s.ledger.ListLoans(store.LoanFilter{
		BrokerID: brokerID,
		Status:   models.LoanStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if loans == nil {
		loans = []*models.Loan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	loan, err := s.ledger.GetLoan(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	schedule, err := s.ledger.GetSchedule(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	summary, err := s.ledger.LoanSummary(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) nextPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	now, err := evaluationTime(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	next, err := s.ledger.NextPayment(id, now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

// statementHandler renders a plain-text statement for the borrower: the
// schedule with any penalties, then the payment history and the totals.
func (s *Server) statementHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	loan, err := s.ledger.GetLoan(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	schedule, err := s.ledger.GetSchedule(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payments, err := s.ledger.GetPayments(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.ledger.LoanSummary(id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Loan statement for %s\n", loan.BorrowerName)
	fmt.Fprintf(&b, "Principal: %s at %s%% a month over %d months, starting %s\n\n",
		format.Currency(loan.LoanAmount), loan.InterestRate, loan.TermMonths, format.Date(loan.StartDate))

	for _, item := range schedule {
		fmt.Fprintf(&b, "%2d  %-20s %14s  %s", item.Period, format.Date(item.DueDate), format.Currency(item.AmountDue), item.Status)
		if item.PenaltyAmount.IsPositive() {
			fmt.Fprintf(&b, "  penalty %s", format.Currency(item.PenaltyAmount))
		}
		b.WriteString("\n")
	}

	if len(payments) > 0 {
		b.WriteString("\nPayments\n")
		for _, p := range payments {
			fmt.Fprintf(&b, "%-24s %14s  %-14s %s\n", format.DateTime(p.PaymentDate), format.Currency(p.AmountPaid), p.Method, p.Status)
		}
	}

	fmt.Fprintf(&b, "\nTotal loan: %s\nTotal paid: %s\nRemaining: %s\n",
		format.Currency(summary.TotalLoanAmount), format.Currency(summary.TotalPaid), format.Currency(summary.RemainingBalance))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, b.String())
}

func (s *Server) completeLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	completion, err := s.ledger.CompleteLoan(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount   decimal.Decimal `json:"amount"`
		Method   string          `json:"payment_method"`
		ProofURL string          `json:"payment_proof_url"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	payment, err := s.ledger.RecordPayment(id, ledger.PaymentInput{
		Amount:   req.Amount,
		Method:   req.Method,
		ProofURL: req.ProofURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payments, err := s.ledger.GetPayments(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) verifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		VerifiedBy int64                `json:"verified_by"`
		Status     models.PaymentStatus `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Status != models.PaymentVerified && req.Status != models.PaymentRejected {
		writeErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("status must be %q or %q", models.PaymentVerified, models.PaymentRejected))
		return
	}

	payment, err := s.ledger.VerifyPayment(id, ledger.Verification{
		VerifiedBy: req.VerifiedBy,
		Approve:    req.Status == models.PaymentVerified,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Stats()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
