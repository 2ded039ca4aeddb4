package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/mcclellann/ehdiloan/pkg/calc"
	"github.com/mcclellann/ehdiloan/pkg/metrics"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	calcPenalty         = "penalty"
	calcLoanSummary     = "loan_summary"
	calcPaymentSchedule = "payment_schedule"
	calcNextPayment     = "next_payment"
)

// calculationRequest is the flat body of POST /api/calculations. Which
// fields are read depends on Type.
type calculationRequest struct {
	Type string `json:"type"`

	OriginalAmount decimal.Decimal `json:"originalAmount"`
	DueDate        calc.Date       `json:"dueDate"`

	LoanAmount decimal.Decimal      `json:"loanAmount"`
	TermMonths int                  `json:"termMonths"`
	StartDate  calc.Date            `json:"startDate"`
	Payments   []calc.PaymentRecord `json:"payments"`

	MonthlyPayment  decimal.Decimal `json:"monthlyPayment"`
	LastPaymentDate calc.Date       `json:"lastPaymentDate"`

	InterestRate *decimal.Decimal `json:"interestRate"`
	PenaltyRate  *decimal.Decimal `json:"penaltyRate"`
}

func (c calculationRequest) interestRate() decimal.Decimal {
	if c.InterestRate == nil {
		return decimal.NewFromInt(calc.DefaultInterestRate)
	}
	return *c.InterestRate
}

func (c calculationRequest) penaltyRate() decimal.Decimal {
	if c.PenaltyRate == nil {
		return decimal.NewFromInt(calc.DefaultPenaltyRate)
	}
	return *c.PenaltyRate
}

var errUnknownCalculation = errors.New("Invalid calculation type")

func (c calculationRequest) run(now time.Time) (any, error) {
	switch c.Type {
	case calcPenalty:
		return calc.TotalAmountDue(calc.PenaltyInput{
			OriginalAmount: c.OriginalAmount,
			DueDate:        c.DueDate,
			InterestRate:   c.interestRate(),
			PenaltyRate:    c.penaltyRate(),
		}, now)
	case calcLoanSummary:
		return calc.Summarize(c.LoanAmount, c.interestRate(), c.TermMonths, c.Payments)
	case calcPaymentSchedule:
		return calc.GenerateSchedule(calc.LoanTerms{
			Principal:   c.LoanAmount,
			MonthlyRate: c.interestRate(),
			TermMonths:  c.TermMonths,
			StartDate:   c.StartDate,
		})
	case calcNextPayment:
		return calc.NextPayment(calc.NextPaymentInput{
			MonthlyPayment:  c.MonthlyPayment,
			LastPaymentDate: c.LastPaymentDate,
			InterestRate:    c.interestRate(),
			PenaltyRate:     c.penaltyRate(),
		}, now)
	default:
		return nil, errUnknownCalculation
	}
}

func (s *Server) calculationsHandler(w http.ResponseWriter, r *http.Request) {
	var req calculationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := req.run(time.Now().UTC())
	switch {
	case err == nil:
		metrics.Calculations.WithLabelValues(req.Type, "ok").Inc()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": result})
	case errors.Is(err, errUnknownCalculation):
		metrics.Calculations.WithLabelValues("unknown", "invalid").Inc()
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, calc.ErrInvalidInput):
		metrics.Calculations.WithLabelValues(req.Type, "invalid").Inc()
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	default:
		metrics.Calculations.WithLabelValues(req.Type, "error").Inc()
		log.WithError(err).WithField("type", req.Type).Error("Error in calculations")
		writeErrorMessage(w, http.StatusInternalServerError, "Calculation failed")
	}
}
