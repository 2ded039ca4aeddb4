package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/ehdiloan/pkg/config"
	"github.com/mcclellann/ehdiloan/pkg/ledger"
	"github.com/mcclellann/ehdiloan/pkg/metrics"
	"github.com/mcclellann/ehdiloan/pkg/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
}

func NewServer(s store.Storage, defaults ledger.Defaults) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s, defaults),
		storage: s,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(metricsMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/calculations", s.calculationsHandler).Methods("POST")

	api.HandleFunc("/loan-requests", s.submitRequestHandler).Methods("POST")
	api.HandleFunc("/loan-requests", s.listRequestsHandler).Methods("GET")
	api.HandleFunc("/loan-requests/{id}", s.getRequestHandler).Methods("GET")
	api.HandleFunc("/loan-requests/{id}/review", s.reviewRequestHandler).Methods("POST")

	api.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	api.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	api.HandleFunc("/loans/{id}/schedule", s.scheduleHandler).Methods("GET")
	api.HandleFunc("/loans/{id}/summary", s.summaryHandler).Methods("GET")
	api.HandleFunc("/loans/{id}/next-payment", s.nextPaymentHandler).Methods("GET")
	api.HandleFunc("/loans/{id}/statement", s.statementHandler).Methods("GET")
	api.HandleFunc("/loans/{id}/complete", s.completeLoanHandler).Methods("POST")
	api.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")
	api.HandleFunc("/loans/{id}/payments", s.listPaymentsHandler).Methods("GET")

	api.HandleFunc("/payments/{id}/verify", s.verifyPaymentHandler).Methods("POST")
	api.HandleFunc("/lender/stats", s.statsHandler).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware counts requests per route template, so IDs in the path
// do not create new series.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

// runOverdueSweep marks late installments and refreshes their penalties
// every interval until ctx is cancelled.
func (s *Server) runOverdueSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			log.Debug("Running overdue sweep...")
			n, err := s.ledger.RefreshOverdue(now.UTC())
			if err != nil {
				log.WithError(err).Error("Overdue sweep failed")
				continue
			}
			log.WithField("updated", n).Info("Overdue sweep complete")
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	// Initialize SQLite Store
	sqliteStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, ledger.Defaults{
		InterestRate: cfg.DefaultInterestRate,
		PenaltyRate:  cfg.DefaultPenaltyRate,
		TermMonths:   cfg.DefaultTermMonths,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go server.runOverdueSweep(ctx, cfg.OverdueSweepInterval)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("Received shutdown signal, shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("HTTP server shutdown failed")
		}
	}()

	log.WithFields(log.Fields{
		"addr":     cfg.Addr(),
		"database": cfg.DatabasePath,
	}).Info("Server starting")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}
