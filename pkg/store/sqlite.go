package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/mcclellann/ehdiloan/pkg/models"
	log "github.com/sirupsen/logrus"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	loanRequestColumns = `id, broker_id, borrower_name, borrower_contact, loan_amount, purpose, status, requested_at, reviewed_at, reviewed_by, notes`
	loanColumns        = `id, request_id, broker_id, borrower_name, loan_amount, interest_rate, penalty_rate, loan_term_months, monthly_payment, start_date, status, created_at, updated_at, completed_at`
	scheduleColumns    = `id, loan_id, period, due_date, amount_due, principal_amount, interest_amount, penalty_amount, status`
	paymentColumns     = `id, loan_id, schedule_id, amount_paid, penalty_amount, payment_method, reference, payment_proof_url, payment_date, status, verified_by, verified_at`
)

// SQLiteStore manages the database connection and operations for SQLite.
// Decimal columns are TEXT so no precision is lost.
type SQLiteStore struct {
	db *sql.DB
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// NewSQLiteStore opens the database at path and migrates it to the latest
// schema version.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate schema: %w", err)
	}
	log.WithField("path", path).Info("Database connection established and schema migrated")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite3migrate.WithInstance(s.db, &sqlite3migrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m.Close would close s.db through the driver, so only the source is released.
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}
	log.WithField("version", version).Debug("Schema up to date")
	return nil
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func checkAffected(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return nil
}

// CreateLoanRequest inserts a new loan request.
func (s *SQLiteStore) CreateLoanRequest(req *models.LoanRequest) error {
	_, err := s.db.Exec(
		`INSERT INTO loan_requests (`+loanRequestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID.String(), req.BrokerID, req.BorrowerName, req.BorrowerContact, req.LoanAmount, req.Purpose, req.Status, req.RequestedAt, req.ReviewedAt, req.ReviewedBy, req.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan request: %w", err)
	}
	return nil
}

// GetLoanRequest retrieves a loan request by its ID.
func (s *SQLiteStore) GetLoanRequest(id uuid.UUID) (*models.LoanRequest, error) {
	row := s.db.QueryRow(`SELECT `+loanRequestColumns+` FROM loan_requests WHERE id = ?`, id.String())
	req, err := scanLoanRequest(row)
	if err != nil {
		return nil, notFound("loan request", err)
	}
	return req, nil
}

// ListLoanRequests returns matching requests, most recent first.
func (s *SQLiteStore) ListLoanRequests(filter RequestFilter) ([]*models.LoanRequest, error) {
	var where []string
	var args []any
	if filter.BrokerID != 0 {
		where = append(where, "broker_id = ?")
		args = append(args, filter.BrokerID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	rows, err := s.db.Query(`SELECT `+loanRequestColumns+` FROM loan_requests`+whereClause(where)+` ORDER BY requested_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loan requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.LoanRequest
	for rows.Next() {
		req, err := scanLoanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan request row: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return requests, nil
}

// UpdateLoanRequest stores the review fields of an existing request.
func (s *SQLiteStore) UpdateLoanRequest(req *models.LoanRequest) error {
	return updateLoanRequest(s.db, req)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func updateLoanRequest(db execer, req *models.LoanRequest) error {
	result, err := db.Exec(
		`UPDATE loan_requests SET status = ?, reviewed_at = ?, reviewed_by = ?, notes = ? WHERE id = ?`,
		req.Status, req.ReviewedAt, req.ReviewedBy, req.Notes, req.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan request: %w", err)
	}
	return checkAffected(result, "loan request")
}

// ApproveLoanRequest marks the request reviewed and creates the loan with
// its schedule within a transaction.
func (s *SQLiteStore) ApproveLoanRequest(req *models.LoanRequest, loan *models.Loan, schedule []*models.ScheduleItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateLoanRequest(tx, req); err != nil {
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.RequestID.String(), loan.BrokerID, loan.BorrowerName, loan.LoanAmount, loan.InterestRate, loan.PenaltyRate, loan.TermMonths, loan.MonthlyPayment, loan.StartDate, loan.Status, loan.CreatedAt, loan.UpdatedAt, loan.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO payment_schedules (` + scheduleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare schedule insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range schedule {
		_, err := stmt.Exec(item.ID.String(), item.LoanID.String(), item.Period, item.DueDate, item.AmountDue, item.PrincipalAmount, item.InterestAmount, item.PenaltyAmount, item.Status)
		if err != nil {
			return fmt.Errorf("failed to create schedule item %d: %w", item.Period, err)
		}
	}

	return tx.Commit()
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		return nil, notFound("loan", err)
	}
	return loan, nil
}

// ListLoans returns matching loans, most recent first.
func (s *SQLiteStore) ListLoans(filter LoanFilter) ([]*models.Loan, error) {
	var where []string
	var args []any
	if filter.BrokerID != 0 {
		where = append(where, "broker_id = ?")
		args = append(args, filter.BrokerID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	rows, err := s.db.Query(`SELECT `+loanColumns+` FROM loans`+whereClause(where)+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// UpdateLoan updates an existing loan's status fields.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	return updateLoan(s.db, loan)
}

func updateLoan(db execer, loan *models.Loan) error {
	result, err := db.Exec(
		`UPDATE loans SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		loan.Status, loan.UpdatedAt, loan.CompletedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return checkAffected(result, "loan")
}

// GetSchedule returns the loan's installments ordered by period.
func (s *SQLiteStore) GetSchedule(loanID uuid.UUID) ([]*models.ScheduleItem, error) {
	rows, err := s.db.Query(`SELECT `+scheduleColumns+` FROM payment_schedules WHERE loan_id = ? ORDER BY period ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule for loan %s: %w", loanID, err)
	}
	defer rows.Close()
	return scanScheduleItems(rows)
}

// ListScheduleItemsDueBefore returns unpaid installments of active loans
// falling due before t.
func (s *SQLiteStore) ListScheduleItemsDueBefore(t time.Time) ([]*models.ScheduleItem, error) {
	rows, err := s.db.Query(
		`SELECT ps.id, ps.loan_id, ps.period, ps.due_date, ps.amount_due, ps.principal_amount, ps.interest_amount, ps.penalty_amount, ps.status
		FROM payment_schedules ps JOIN loans l ON l.id = ps.loan_id
		WHERE ps.status != ? AND l.status = ? AND ps.due_date < ?
		ORDER BY ps.due_date ASC`,
		models.SchedulePaid, models.LoanActive, t,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due schedule items: %w", err)
	}
	defer rows.Close()
	return scanScheduleItems(rows)
}

// UpdateScheduleItem stores an installment's penalty and status.
func (s *SQLiteStore) UpdateScheduleItem(item *models.ScheduleItem) error {
	return updateScheduleItem(s.db, item)
}

func updateScheduleItem(db execer, item *models.ScheduleItem) error {
	result, err := db.Exec(
		`UPDATE payment_schedules SET penalty_amount = ?, status = ? WHERE id = ?`,
		item.PenaltyAmount, item.Status, item.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule item: %w", err)
	}
	return checkAffected(result, "schedule item")
}

// CreatePayment inserts a new payment.
func (s *SQLiteStore) CreatePayment(p *models.Payment) error {
	_, err := s.db.Exec(
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.LoanID.String(), nullableID(p.ScheduleID), p.AmountPaid, p.PenaltyAmount, p.Method, p.Reference, p.ProofURL, p.PaymentDate, p.Status, p.VerifiedBy, p.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by its ID.
func (s *SQLiteStore) GetPayment(id uuid.UUID) (*models.Payment, error) {
	row := s.db.QueryRow(`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id.String())
	p, err := scanPayment(row)
	if err != nil {
		return nil, notFound("payment", err)
	}
	return p, nil
}

func updatePayment(db execer, p *models.Payment) error {
	result, err := db.Exec(
		`UPDATE payments SET schedule_id = ?, penalty_amount = ?, status = ?, verified_by = ?, verified_at = ? WHERE id = ?`,
		nullableID(p.ScheduleID), p.PenaltyAmount, p.Status, p.VerifiedBy, p.VerifiedAt, p.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return checkAffected(result, "payment")
}

// SavePaymentVerification stores a verified or rejected payment together with
// the installment it settled and the loan it completed, within a transaction.
// settled and completed may be nil.
func (s *SQLiteStore) SavePaymentVerification(p *models.Payment, settled *models.ScheduleItem, completed *models.Loan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updatePayment(tx, p); err != nil {
		return err
	}
	if settled != nil {
		if err := updateScheduleItem(tx, settled); err != nil {
			return err
		}
	}
	if completed != nil {
		if err := updateLoan(tx, completed); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetPaymentsForLoan retrieves all payments for a loan, oldest first.
func (s *SQLiteStore) GetPaymentsForLoan(loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.Query(`SELECT `+paymentColumns+` FROM payments WHERE loan_id = ? ORDER BY payment_date ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan payments: %w", err)
	}
	return payments, nil
}

// Stats counts requests and sums approved principal for the lender dashboard.
func (s *SQLiteStore) Stats() (*models.LenderStats, error) {
	stats := &models.LenderStats{}

	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) FROM loan_requests`,
		models.RequestPending,
	).Scan(&stats.TotalRequests, &stats.PendingRequests)
	if err != nil {
		return nil, fmt.Errorf("failed to count loan requests: %w", err)
	}

	loans, err := s.ListLoans(LoanFilter{})
	if err != nil {
		return nil, err
	}
	stats.ApprovedLoans = len(loans)
	for _, loan := range loans {
		stats.TotalLoanAmount = stats.TotalLoanAmount.Add(loan.LoanAmount)
	}
	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func nullableID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func scanLoanRequest(row rowScanner) (*models.LoanRequest, error) {
	var req models.LoanRequest
	var reviewedAt sql.NullTime
	var reviewedBy sql.NullInt64
	err := row.Scan(&req.ID, &req.BrokerID, &req.BorrowerName, &req.BorrowerContact, &req.LoanAmount, &req.Purpose, &req.Status, &req.RequestedAt, &reviewedAt, &reviewedBy, &req.Notes)
	if err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		req.ReviewedAt = &reviewedAt.Time
	}
	if reviewedBy.Valid {
		req.ReviewedBy = &reviewedBy.Int64
	}
	return &req, nil
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var completedAt sql.NullTime
	err := row.Scan(&loan.ID, &loan.RequestID, &loan.BrokerID, &loan.BorrowerName, &loan.LoanAmount, &loan.InterestRate, &loan.PenaltyRate, &loan.TermMonths, &loan.MonthlyPayment, &loan.StartDate, &loan.Status, &loan.CreatedAt, &loan.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		loan.CompletedAt = &completedAt.Time
	}
	return &loan, nil
}

func scanScheduleItems(rows *sql.Rows) ([]*models.ScheduleItem, error) {
	var items []*models.ScheduleItem
	for rows.Next() {
		var item models.ScheduleItem
		if err := rows.Scan(&item.ID, &item.LoanID, &item.Period, &item.DueDate, &item.AmountDue, &item.PrincipalAmount, &item.InterestAmount, &item.PenaltyAmount, &item.Status); err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for schedule: %w", err)
	}
	return items, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var scheduleID uuid.NullUUID
	var verifiedBy sql.NullInt64
	var verifiedAt sql.NullTime
	err := row.Scan(&p.ID, &p.LoanID, &scheduleID, &p.AmountPaid, &p.PenaltyAmount, &p.Method, &p.Reference, &p.ProofURL, &p.PaymentDate, &p.Status, &verifiedBy, &verifiedAt)
	if err != nil {
		return nil, err
	}
	if scheduleID.Valid {
		p.ScheduleID = &scheduleID.UUID
	}
	if verifiedBy.Valid {
		p.VerifiedBy = &verifiedBy.Int64
	}
	if verifiedAt.Valid {
		p.VerifiedAt = &verifiedAt.Time
	}
	return &p, nil
}
