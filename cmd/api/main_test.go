package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/mcclellann/ehdiloan/pkg/ledger"
	"github.com/mcclellann/ehdiloan/pkg/models"
	"github.com/mcclellann/ehdiloan/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test_api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	server := NewServer(s, ledger.Defaults{
		InterestRate: decimal.NewFromInt(10),
		PenaltyRate:  decimal.NewFromInt(5),
		TermMonths:   1,
	})
	return server, server.routes()
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type calcResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func TestAPI_CalculationPenalty(t *testing.T) {
	_, router := setupTestServer(t)

	rr := do(t, router, "POST", "/api/calculations", map[string]any{
		"type":           "penalty",
		"originalAmount": 55000,
		"dueDate":        "2000-01-01",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[calcResponse](t, rr)
	assert.True(t, resp.Success)

	var data struct {
		IsOverdue    bool            `json:"isOverdue"`
		PenaltyRate  decimal.Decimal `json:"penaltyRate"`
		InterestRate decimal.Decimal `json:"interestRate"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.True(t, data.IsOverdue)
	assert.True(t, data.PenaltyRate.Equal(decimal.NewFromInt(5)), "default penalty rate")
	assert.True(t, data.InterestRate.Equal(decimal.NewFromInt(10)), "default interest rate")
}

func TestAPI_CalculationSchedule(t *testing.T) {
	_, router := setupTestServer(t)

	rr := do(t, router, "POST", "/api/calculations", map[string]any{
		"type":         "payment_schedule",
		"loanAmount":   "500000",
		"interestRate": 10,
		"termMonths":   12,
		"startDate":    "2025-01-15",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var entries []struct {
		Month            int             `json:"month"`
		DueDate          string          `json:"dueDate"`
		TotalPayment     decimal.Decimal `json:"totalPayment"`
		RemainingBalance decimal.Decimal `json:"remainingBalance"`
	}
	require.NoError(t, json.Unmarshal(decode[calcResponse](t, rr).Data, &entries))
	require.Len(t, entries, 12)
	assert.Equal(t, "2025-02-15", entries[0].DueDate)
	assert.True(t, entries[0].TotalPayment.Equal(decimal.RequireFromString("73381.66")))
	assert.True(t, entries[11].RemainingBalance.IsZero())
}

func TestAPI_CalculationSummary(t *testing.T) {
	_, router := setupTestServer(t)

	rr := do(t, router, "POST", "/api/calculations", map[string]any{
		"type":         "loan_summary",
		"loanAmount":   100000,
		"interestRate": 5,
		"termMonths":   6,
		"payments": []map[string]any{
			{"amount": "20194.29", "paymentDate": "2025-02-01", "penaltyAmount": 0},
			{"amount": "20194.30", "paymentDate": "2025-03-01"},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var summary struct {
		TotalInterestAmount decimal.Decimal `json:"totalInterestAmount"`
		TotalPaid           decimal.Decimal `json:"totalPaid"`
		RemainingBalance    decimal.Decimal `json:"remainingBalance"`
		PaymentsRemaining   int             `json:"paymentsRemaining"`
	}
	require.NoError(t, json.Unmarshal(decode[calcResponse](t, rr).Data, &summary))
	assert.True(t, summary.TotalInterestAmount.Equal(decimal.NewFromInt(30000)))
	assert.True(t, summary.TotalPaid.Equal(decimal.RequireFromString("40388.59")))
	assert.True(t, summary.RemainingBalance.Equal(decimal.RequireFromString("89611.41")))
	assert.Equal(t, 4, summary.PaymentsRemaining)
}

func TestAPI_CalculationErrors(t *testing.T) {
	_, router := setupTestServer(t)

	tests := []struct {
		name string
		body map[string]any
		code int
		err  string
	}{
		{
			name: "unknown type",
			body: map[string]any{"type": "amortize"},
			code: http.StatusBadRequest,
			err:  "Invalid calculation type",
		},
		{
			name: "zero rate",
			body: map[string]any{"type": "payment_schedule", "loanAmount": 1000, "interestRate": 0, "termMonths": 3, "startDate": "2025-01-01"},
			code: http.StatusBadRequest,
		},
		{
			name: "missing start date",
			body: map[string]any{"type": "payment_schedule", "loanAmount": 1000, "termMonths": 3},
			code: http.StatusBadRequest,
		},
		{
			name: "term over the cap",
			body: map[string]any{"type": "payment_schedule", "loanAmount": 1000, "interestRate": 0.0000001, "termMonths": 1000000000, "startDate": "2025-01-01"},
			code: http.StatusBadRequest,
		},
		{
			name: "negative penalty rate",
			body: map[string]any{"type": "penalty", "originalAmount": 100, "dueDate": "2025-01-01", "penaltyRate": -1},
			code: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, router, "POST", "/api/calculations", tt.body)
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
			resp := decode[calcResponse](t, rr)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
			if tt.err != "" {
				assert.Equal(t, tt.err, resp.Error)
			}
		})
	}
}

func TestAPI_LoanLifecycle(t *testing.T) {
	_, router := setupTestServer(t)

	// Broker submits a request.
	rr := do(t, router, "POST", "/api/loan-requests", map[string]any{
		"broker_id":        2,
		"borrower_name":    "Boyong",
		"borrower_contact": "09182156660",
		"loan_amount":      50000,
		"purpose":          "Tricycle repair",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	request := decode[models.LoanRequest](t, rr)
	assert.Equal(t, models.RequestPending, request.Status)

	rr = do(t, router, "GET", "/api/loan-requests?brokerId=2&status=pending", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.LoanRequest](t, rr), 1)

	// Lender approves with the default terms.
	rr = do(t, router, "POST", "/api/loan-requests/"+request.ID.String()+"/review", map[string]any{
		"decision":    "approve",
		"reviewed_by": 1,
		"start_date":  "2025-08-15",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	review := decode[ledger.ReviewResult](t, rr)
	require.NotNil(t, review.Loan)
	loanID := review.Loan.ID.String()
	assert.True(t, review.Loan.MonthlyPayment.Equal(decimal.NewFromInt(55000)))

	// Reviewing twice conflicts.
	rr = do(t, router, "POST", "/api/loan-requests/"+request.ID.String()+"/review", map[string]any{
		"decision":    "reject",
		"reviewed_by": 1,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, "GET", "/api/loans/"+loanID+"/schedule", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	schedule := decode[[]models.ScheduleItem](t, rr)
	require.Len(t, schedule, 1)

	rr = do(t, router, "GET", "/api/loans/"+loanID+"/next-payment?asOf=2025-09-01", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var next struct {
		DueDate      string `json:"dueDate"`
		DaysUntilDue int    `json:"daysUntilDue"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &next))
	assert.Equal(t, "2025-09-15", next.DueDate)
	assert.Equal(t, 14, next.DaysUntilDue)

	// Broker records the full amount, lender verifies it.
	rr = do(t, router, "POST", "/api/loans/"+loanID+"/payments", map[string]any{
		"amount":         "55000",
		"payment_method": "gcash",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	payment := decode[models.Payment](t, rr)
	assert.Equal(t, models.PaymentPending, payment.Status)

	rr = do(t, router, "POST", "/api/payments/"+payment.ID.String()+"/verify", map[string]any{
		"verified_by": 1,
		"status":      "verified",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, "GET", "/api/loans/"+loanID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.LoanCompleted, decode[models.Loan](t, rr).Status)

	rr = do(t, router, "GET", "/api/loans/"+loanID+"/payments", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.Payment](t, rr), 1)

	rr = do(t, router, "GET", "/api/loans/"+loanID+"/statement", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "₱50,000.00")
	assert.Contains(t, rr.Body.String(), "September 15, 2025")
	assert.Contains(t, rr.Body.String(), "Remaining: ₱0.00")

	rr = do(t, router, "GET", "/api/lender/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[models.LenderStats](t, rr)
	assert.Equal(t, 1, stats.TotalRequests)
	assert.Equal(t, 1, stats.ApprovedLoans)
}

func TestAPI_Errors(t *testing.T) {
	_, router := setupTestServer(t)

	rr := do(t, router, "GET", "/api/loans/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "GET", "/api/loans/00000000-0000-0000-0000-000000000001", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, "POST", "/api/loan-requests", map[string]any{"broker_id": 2, "loan_amount": 100})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "GET", "/api/loans?brokerId=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, "POST", "/api/payments/00000000-0000-0000-0000-000000000001/verify", map[string]any{
		"verified_by": 1,
		"status":      "maybe",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_Metrics(t *testing.T) {
	_, router := setupTestServer(t)

	do(t, router, "GET", "/api/lender/stats", nil)
	rr := do(t, router, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `ehdiloan_http_requests_total{code="200",method="GET",route="/api/lender/stats"}`)
}
