package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Calculations counts calculation requests by type and outcome.
	Calculations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ehdiloan_calculations_total",
			Help: "Calculation requests by type and status",
		},
		[]string{"type", "status"},
	)

	// HTTPRequests counts handled requests by route template, method and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ehdiloan_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)

	// OverdueMarked counts schedule items the sweep moved to overdue.
	OverdueMarked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ehdiloan_overdue_items_marked_total",
			Help: "Schedule items marked overdue by the sweep",
		},
	)

	// LoansCompleted counts loans closed as fully paid.
	LoansCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ehdiloan_loans_completed_total",
			Help: "Loans marked completed",
		},
	)
)
