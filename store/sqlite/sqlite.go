/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements billing.TxStore and auth.AccountStore using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  sessions:       Service-delivery records with invoiced/paid flags
  rate_records:   Time-bounded payroll rates
  invoices:       Invoice headers (unique invoice_number constraint)
  invoice_lines:  Immutable per-session pricing snapshots
  paystubs:       Payroll documents
  paystub_items:  Per-session payroll snapshots, cascade on stub delete
  users:          Accounts with lockout state

TRANSACTIONS:
  WithTx gives the generators their all-or-nothing boundary. All reads and
  writes inside the callback run on one *sql.Tx, so a sequence counted in
  the transaction is the sequence the insert sees. A store-level mutex
  serializes writers, which SQLite requires anyway.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and foreign keys enabled:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery
  The primary key on invoices.invoice_number is the backstop for sequence
  collisions between concurrent generators.

USAGE:
  store, err := sqlite.New("./data/clinic.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/invoice.go, billing/paystub.go: The generators using WithTx
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/clearbrook/clinic-engine/auth"
	"github.com/clearbrook/clinic-engine/billing"
)

const dateFmt = "2006-01-02"

// dbtx is the database/sql surface shared by *sql.DB and *sql.Tx, so every
// query method works both standalone and inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements billing.TxStore and auth.AccountStore.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database (useful for tests).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, queries: queries{db: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user',
		activation_key TEXT NOT NULL DEFAULT '',
		failed_attempts INTEGER NOT NULL DEFAULT 3,
		locked_until TEXT
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		position TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		guardian_name TEXT NOT NULL DEFAULT '',
		guardian_email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		zip_code TEXT NOT NULL DEFAULT '',
		therapy_rate TEXT NOT NULL DEFAULT '0',
		supervision_rate TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS activities (
		name TEXT PRIMARY KEY,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rate_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		client_id TEXT NOT NULL DEFAULT '',
		rate TEXT NOT NULL,
		effective_date TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_rate_records_employee
		ON rate_records(employee_id, client_id, effective_date DESC);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		client_id TEXT NOT NULL DEFAULT '',
		activity TEXT NOT NULL,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		duration TEXT NOT NULL,
		invoiced BOOLEAN NOT NULL DEFAULT FALSE,
		invoice_number TEXT,
		paid BOOLEAN NOT NULL DEFAULT FALSE
	);

	-- Overlap checks (hot path at session create/update)
	CREATE INDEX IF NOT EXISTS idx_sessions_employee_date
		ON sessions(employee_id, date);

	-- Invoice selection
	CREATE INDEX IF NOT EXISTS idx_sessions_client_invoiced
		ON sessions(client_id, invoiced, date);

	-- Reversal reconciliation
	CREATE INDEX IF NOT EXISTS idx_sessions_invoice_number
		ON sessions(invoice_number) WHERE invoice_number IS NOT NULL;

	CREATE TABLE IF NOT EXISTS invoices (
		invoice_number TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		issued_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		date_from TEXT NOT NULL,
		date_to TEXT NOT NULL,
		total TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'Draft',
		paid_date TEXT,
		payment_notes TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_status_due
		ON invoices(status, due_date);

	CREATE TABLE IF NOT EXISTS invoice_lines (
		invoice_number TEXT NOT NULL REFERENCES invoices(invoice_number) ON DELETE CASCADE,
		session_id TEXT NOT NULL,
		date TEXT NOT NULL,
		activity TEXT NOT NULL,
		duration TEXT NOT NULL,
		rate TEXT NOT NULL,
		cost TEXT NOT NULL,
		PRIMARY KEY (invoice_number, session_id)
	);

	CREATE TABLE IF NOT EXISTS paystubs (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		generated_date TEXT NOT NULL,
		total_hours TEXT NOT NULL DEFAULT '0',
		total_amount TEXT NOT NULL DEFAULT '0',
		email_sent BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_paystubs_employee
		ON paystubs(employee_id, period_start);

	CREATE TABLE IF NOT EXISTS paystub_items (
		paystub_id TEXT NOT NULL REFERENCES paystubs(id) ON DELETE CASCADE,
		session_id TEXT NOT NULL,
		client_id TEXT NOT NULL DEFAULT '',
		rate TEXT NOT NULL,
		hours TEXT NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (paystub_id, session_id)
	);

	-- Double-payment guard lookups
	CREATE INDEX IF NOT EXISTS idx_paystub_items_session
		ON paystub_items(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION BOUNDARY (billing.TxStore)
// =============================================================================

// WithTx executes fn within a single database transaction. The billing.Store
// handed to fn routes every query through the transaction, so counts taken
// inside it are the counts the inserts see.
func (s *Store) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// queries implements billing.Store over either *sql.DB or *sql.Tx.
type queries struct {
	db dbtx
}

// =============================================================================
// SESSION STORE
// =============================================================================

const sessionCols = `id, employee_id, client_id, activity, date, start_time, end_time, duration, invoiced, invoice_number, paid`

func (q *queries) GetSession(ctx context.Context, id billing.SessionID) (*billing.Session, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSessionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (q *queries) SaveSession(ctx context.Context, s billing.Session) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_id = excluded.employee_id,
			client_id = excluded.client_id,
			activity = excluded.activity,
			date = excluded.date,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			duration = excluded.duration,
			invoiced = excluded.invoiced,
			invoice_number = excluded.invoice_number,
			paid = excluded.paid`,
		s.ID, s.EmployeeID, s.ClientID, s.Activity,
		s.Date.Format(dateFmt), s.Start.String(), s.End.String(),
		s.Duration.String(), s.Invoiced, nullString(string(s.InvoiceNumber)), s.Paid,
	)
	return err
}

func (q *queries) DeleteSession(ctx context.Context, id billing.SessionID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (q *queries) ListSessionsByEmployeeDay(ctx context.Context, employeeID billing.EmployeeID, day time.Time) ([]billing.Session, error) {
	return q.querySessions(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE employee_id = ? AND date = ?
		ORDER BY start_time ASC`,
		employeeID, day.Format(dateFmt))
}

func (q *queries) ListUninvoicedSessions(ctx context.Context, clientID billing.ClientID, from, to time.Time) ([]billing.Session, error) {
	return q.querySessions(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE client_id = ? AND invoiced = FALSE
		  AND date >= ? AND date <= ?
		ORDER BY date ASC, start_time ASC`,
		clientID, from.Format(dateFmt), to.Format(dateFmt))
}

func (q *queries) ListUnpaidSessions(ctx context.Context, employeeID billing.EmployeeID, from, to time.Time) ([]billing.Session, error) {
	// Both the paid flag and the paystub_items link are checked: the two
	// can drift, and a session present in either is off the table.
	return q.querySessions(ctx, `
		SELECT `+sessionCols+` FROM sessions s
		WHERE s.employee_id = ? AND s.paid = FALSE
		  AND s.date >= ? AND s.date <= ?
		  AND NOT EXISTS (SELECT 1 FROM paystub_items pi WHERE pi.session_id = s.id)
		ORDER BY s.date ASC, s.start_time ASC`,
		employeeID, from.Format(dateFmt), to.Format(dateFmt))
}

func (q *queries) ListSessionsByInvoice(ctx context.Context, number billing.InvoiceNumber) ([]billing.Session, error) {
	return q.querySessions(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE invoice_number = ?
		ORDER BY date ASC, start_time ASC`,
		number)
}

func (q *queries) MarkSessionsInvoiced(ctx context.Context, ids []billing.SessionID, number billing.InvoiceNumber) error {
	for _, id := range ids {
		if _, err := q.db.ExecContext(ctx,
			`UPDATE sessions SET invoiced = TRUE, invoice_number = ? WHERE id = ?`,
			number, id); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) ClearSessionsInvoiced(ctx context.Context, ids []billing.SessionID) error {
	for _, id := range ids {
		if _, err := q.db.ExecContext(ctx,
			`UPDATE sessions SET invoiced = FALSE, invoice_number = NULL WHERE id = ?`,
			id); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) MarkSessionsPaid(ctx context.Context, ids []billing.SessionID, paid bool) error {
	for _, id := range ids {
		if _, err := q.db.ExecContext(ctx,
			`UPDATE sessions SET paid = ? WHERE id = ?`, paid, id); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) querySessions(ctx context.Context, query string, args ...any) ([]billing.Session, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []billing.Session
	for rows.Next() {
		sess, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSessionRow(row rowScanner) (*billing.Session, error) {
	var (
		s             billing.Session
		date          string
		startTime     string
		endTime       string
		duration      string
		invoiceNumber sql.NullString
	)
	err := row.Scan(&s.ID, &s.EmployeeID, &s.ClientID, &s.Activity,
		&date, &startTime, &endTime, &duration, &s.Invoiced, &invoiceNumber, &s.Paid)
	if err != nil {
		return nil, err
	}

	s.Date = parseDate(date)
	s.Start, _ = billing.ParseTimeOfDay(startTime)
	s.End, _ = billing.ParseTimeOfDay(endTime)
	s.Duration = parseDecimal(duration)
	s.InvoiceNumber = billing.InvoiceNumber(invoiceNumber.String)
	return &s, nil
}

// =============================================================================
// RATE STORE
// =============================================================================

func (q *queries) GetRate(ctx context.Context, id billing.RateID) (*billing.RateRecord, error) {
	var (
		r         billing.RateRecord
		rate      string
		effective sql.NullString
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT id, employee_id, client_id, rate, effective_date FROM rate_records WHERE id = ?`,
		id).Scan(&r.ID, &r.EmployeeID, &r.ClientID, &rate, &effective)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Rate = parseDecimal(rate)
	if effective.Valid {
		r.EffectiveDate = parseDate(effective.String)
	}
	return &r, nil
}

func (q *queries) SaveRate(ctx context.Context, r billing.RateRecord) error {
	var effective *string
	if !r.EffectiveDate.IsZero() {
		d := r.EffectiveDate.Format(dateFmt)
		effective = &d
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO rate_records (id, employee_id, client_id, rate, effective_date)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_id = excluded.employee_id,
			client_id = excluded.client_id,
			rate = excluded.rate,
			effective_date = excluded.effective_date`,
		r.ID, r.EmployeeID, r.ClientID, r.Rate.String(), effective)
	return err
}

func (q *queries) DeleteRate(ctx context.Context, id billing.RateID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM rate_records WHERE id = ?`, id)
	return err
}

func (q *queries) ListRates(ctx context.Context) ([]billing.RateRecord, error) {
	return q.queryRates(ctx, `
		SELECT id, employee_id, client_id, rate, effective_date FROM rate_records
		ORDER BY employee_id, client_id, effective_date IS NULL, effective_date DESC`)
}

func (q *queries) ListRatesForEmployee(ctx context.Context, employeeID billing.EmployeeID) ([]billing.RateRecord, error) {
	return q.queryRates(ctx, `
		SELECT id, employee_id, client_id, rate, effective_date FROM rate_records
		WHERE employee_id = ?
		ORDER BY effective_date IS NULL, effective_date DESC`,
		employeeID)
}

func (q *queries) queryRates(ctx context.Context, query string, args ...any) ([]billing.RateRecord, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []billing.RateRecord
	for rows.Next() {
		var (
			r         billing.RateRecord
			rate      string
			effective sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.EmployeeID, &r.ClientID, &rate, &effective); err != nil {
			return nil, err
		}
		r.Rate = parseDecimal(rate)
		if effective.Valid {
			r.EffectiveDate = parseDate(effective.String)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// INVOICE STORE
// =============================================================================

func (q *queries) SaveInvoice(ctx context.Context, inv billing.Invoice) error {
	var paidDate *string
	if inv.PaidDate != nil {
		d := inv.PaidDate.Format(dateFmt)
		paidDate = &d
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO invoices (invoice_number, client_id, issued_date, due_date,
			date_from, date_to, total, status, paid_date, payment_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.Number, inv.ClientID,
		inv.IssuedDate.Format(dateFmt), inv.DueDate.Format(dateFmt),
		inv.DateFrom.Format(dateFmt), inv.DateTo.Format(dateFmt),
		inv.Total.String(), inv.Status, paidDate, inv.PaymentNotes)
	if err != nil {
		if isUniqueConstraintError(err) {
			return billing.ErrDuplicateInvoiceNumber
		}
		return fmt.Errorf("failed to save invoice: %w", err)
	}

	for _, line := range inv.Lines {
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO invoice_lines (invoice_number, session_id, date, activity, duration, rate, cost)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			inv.Number, line.SessionID, line.Date.Format(dateFmt), line.Activity,
			line.Duration.String(), line.Rate.String(), line.Cost.String()); err != nil {
			return fmt.Errorf("failed to save invoice line: %w", err)
		}
	}
	return nil
}

const invoiceCols = `invoice_number, client_id, issued_date, due_date, date_from, date_to, total, status, paid_date, payment_notes`

func (q *queries) GetInvoice(ctx context.Context, number billing.InvoiceNumber) (*billing.Invoice, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+invoiceCols+` FROM invoices WHERE invoice_number = ?`, number)
	inv, err := scanInvoiceRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT session_id, date, activity, duration, rate, cost
		FROM invoice_lines WHERE invoice_number = ?
		ORDER BY date ASC, session_id ASC`, number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line                 billing.InvoiceLine
			date                 string
			duration, rate, cost string
		)
		if err := rows.Scan(&line.SessionID, &date, &line.Activity, &duration, &rate, &cost); err != nil {
			return nil, err
		}
		line.Date = parseDate(date)
		line.Duration = parseDecimal(duration)
		line.Rate = parseDecimal(rate)
		line.Cost = parseDecimal(cost)
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

// ListInvoices returns invoice headers without lines, newest first.
func (q *queries) ListInvoices(ctx context.Context) ([]billing.Invoice, error) {
	return q.queryInvoices(ctx,
		`SELECT `+invoiceCols+` FROM invoices ORDER BY issued_date DESC, invoice_number DESC`)
}

func (q *queries) ListInvoicesDue(ctx context.Context, status billing.InvoiceStatus, cutoff time.Time) ([]billing.Invoice, error) {
	return q.queryInvoices(ctx, `
		SELECT `+invoiceCols+` FROM invoices
		WHERE status = ? AND due_date <= ?
		ORDER BY due_date ASC`,
		status, cutoff.Format(dateFmt))
}

func (q *queries) DeleteInvoice(ctx context.Context, number billing.InvoiceNumber) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM invoice_lines WHERE invoice_number = ?`, number); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx, `DELETE FROM invoices WHERE invoice_number = ?`, number)
	return err
}

func (q *queries) CountInvoicesWithPrefix(ctx context.Context, prefix string) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices WHERE invoice_number LIKE ?`,
		prefix+"%").Scan(&count)
	return count, err
}

func (q *queries) UpdateInvoiceStatus(ctx context.Context, number billing.InvoiceNumber, status billing.InvoiceStatus, paidDate *time.Time, notes string) error {
	var paid *string
	if paidDate != nil {
		d := paidDate.Format(dateFmt)
		paid = &d
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE invoices SET status = ?, paid_date = ?, payment_notes = ? WHERE invoice_number = ?`,
		status, paid, notes, number)
	return err
}

func (q *queries) queryInvoices(ctx context.Context, query string, args ...any) ([]billing.Invoice, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoiceRow(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func scanInvoiceRow(row rowScanner) (*billing.Invoice, error) {
	var (
		inv                                   billing.Invoice
		issuedDate, dueDate, dateFrom, dateTo string
		total                                 string
		paidDate                              sql.NullString
	)
	err := row.Scan(&inv.Number, &inv.ClientID, &issuedDate, &dueDate,
		&dateFrom, &dateTo, &total, &inv.Status, &paidDate, &inv.PaymentNotes)
	if err != nil {
		return nil, err
	}
	inv.IssuedDate = parseDate(issuedDate)
	inv.DueDate = parseDate(dueDate)
	inv.DateFrom = parseDate(dateFrom)
	inv.DateTo = parseDate(dateTo)
	inv.Total = parseDecimal(total)
	if paidDate.Valid {
		d := parseDate(paidDate.String)
		inv.PaidDate = &d
	}
	return &inv, nil
}

// =============================================================================
// PAYSTUB STORE
// =============================================================================

func (q *queries) SavePayStub(ctx context.Context, stub billing.PayStub) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO paystubs (id, employee_id, period_start, period_end, generated_date,
			total_hours, total_amount, email_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stub.ID, stub.EmployeeID,
		stub.PeriodStart.Format(dateFmt), stub.PeriodEnd.Format(dateFmt),
		stub.GeneratedDate.Format(dateFmt),
		stub.TotalHours.String(), stub.TotalAmount.String(), stub.EmailSent)
	if err != nil {
		return fmt.Errorf("failed to save paystub: %w", err)
	}

	for _, item := range stub.Items {
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO paystub_items (paystub_id, session_id, client_id, rate, hours, amount)
			VALUES (?, ?, ?, ?, ?, ?)`,
			stub.ID, item.SessionID, item.ClientID,
			item.Rate.String(), item.Hours.String(), item.Amount.String()); err != nil {
			return fmt.Errorf("failed to save paystub item: %w", err)
		}
	}
	return nil
}

const paystubCols = `id, employee_id, period_start, period_end, generated_date, total_hours, total_amount, email_sent`

func (q *queries) GetPayStub(ctx context.Context, id billing.PayStubID) (*billing.PayStub, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+paystubCols+` FROM paystubs WHERE id = ?`, id)
	stub, err := scanPayStubRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT session_id, client_id, rate, hours, amount
		FROM paystub_items WHERE paystub_id = ?
		ORDER BY session_id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item                billing.PayStubItem
			rate, hours, amount string
		)
		if err := rows.Scan(&item.SessionID, &item.ClientID, &rate, &hours, &amount); err != nil {
			return nil, err
		}
		item.Rate = parseDecimal(rate)
		item.Hours = parseDecimal(hours)
		item.Amount = parseDecimal(amount)
		stub.Items = append(stub.Items, item)
	}
	return stub, rows.Err()
}

// ListPayStubs returns stub headers without items. An empty employeeID
// means all employees.
func (q *queries) ListPayStubs(ctx context.Context, employeeID billing.EmployeeID) ([]billing.PayStub, error) {
	query := `SELECT ` + paystubCols + ` FROM paystubs ORDER BY generated_date DESC, period_start DESC`
	args := []any{}
	if employeeID != "" {
		query = `SELECT ` + paystubCols + ` FROM paystubs WHERE employee_id = ? ORDER BY generated_date DESC, period_start DESC`
		args = append(args, employeeID)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stubs []billing.PayStub
	for rows.Next() {
		stub, err := scanPayStubRow(rows)
		if err != nil {
			return nil, err
		}
		stubs = append(stubs, *stub)
	}
	return stubs, rows.Err()
}

func (q *queries) DeletePayStub(ctx context.Context, id billing.PayStubID) error {
	// Items cascade via the foreign key; the explicit delete keeps the
	// behavior identical when foreign keys are off.
	if _, err := q.db.ExecContext(ctx, `DELETE FROM paystub_items WHERE paystub_id = ?`, id); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx, `DELETE FROM paystubs WHERE id = ?`, id)
	return err
}

func (q *queries) MarkPayStubEmailed(ctx context.Context, id billing.PayStubID) error {
	_, err := q.db.ExecContext(ctx, `UPDATE paystubs SET email_sent = TRUE WHERE id = ?`, id)
	return err
}

func scanPayStubRow(row rowScanner) (*billing.PayStub, error) {
	var (
		stub                              billing.PayStub
		periodStart, periodEnd, generated string
		totalHours, totalAmount           string
	)
	err := row.Scan(&stub.ID, &stub.EmployeeID, &periodStart, &periodEnd,
		&generated, &totalHours, &totalAmount, &stub.EmailSent)
	if err != nil {
		return nil, err
	}
	stub.PeriodStart = parseDate(periodStart)
	stub.PeriodEnd = parseDate(periodEnd)
	stub.GeneratedDate = parseDate(generated)
	stub.TotalHours = parseDecimal(totalHours)
	stub.TotalAmount = parseDecimal(totalAmount)
	return &stub, nil
}

// =============================================================================
// ACTIVITY STORE
// =============================================================================

func (q *queries) GetActivity(ctx context.Context, name billing.ActivityName) (*billing.Activity, error) {
	var category string
	a := billing.Activity{Name: name}
	err := q.db.QueryRowContext(ctx,
		`SELECT category FROM activities WHERE name = ?`, name).Scan(&category)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Category = billing.ParseBillingCategory(category)
	return &a, nil
}

func (q *queries) SaveActivity(ctx context.Context, a billing.Activity) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO activities (name, category) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET category = excluded.category`,
		a.Name, a.Category.String())
	return err
}

func (q *queries) DeleteActivity(ctx context.Context, name billing.ActivityName) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM activities WHERE name = ?`, name)
	return err
}

func (q *queries) ListActivities(ctx context.Context) ([]billing.Activity, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT name, category FROM activities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []billing.Activity
	for rows.Next() {
		var (
			a        billing.Activity
			category string
		)
		if err := rows.Scan(&a.Name, &category); err != nil {
			return nil, err
		}
		a.Category = billing.ParseBillingCategory(category)
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// =============================================================================
// CLIENT STORE
// =============================================================================

const clientCols = `id, first_name, last_name, guardian_name, guardian_email, address, city, state, zip_code, therapy_rate, supervision_rate`

func (q *queries) GetClient(ctx context.Context, id billing.ClientID) (*billing.Client, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+clientCols+` FROM clients WHERE id = ?`, id)
	c, err := scanClientRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (q *queries) SaveClient(ctx context.Context, c billing.Client) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			guardian_name = excluded.guardian_name,
			guardian_email = excluded.guardian_email,
			address = excluded.address,
			city = excluded.city,
			state = excluded.state,
			zip_code = excluded.zip_code,
			therapy_rate = excluded.therapy_rate,
			supervision_rate = excluded.supervision_rate`,
		c.ID, c.FirstName, c.LastName, c.GuardianName, c.GuardianEmail,
		c.Address, c.City, c.State, c.ZipCode,
		c.TherapyRate.String(), c.SupervisionRate.String())
	return err
}

func (q *queries) DeleteClient(ctx context.Context, id billing.ClientID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	return err
}

func (q *queries) ListClients(ctx context.Context) ([]billing.Client, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+clientCols+` FROM clients ORDER BY first_name, last_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []billing.Client
	for rows.Next() {
		c, err := scanClientRow(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func scanClientRow(row rowScanner) (*billing.Client, error) {
	var (
		c                            billing.Client
		therapyRate, supervisionRate string
	)
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.GuardianName, &c.GuardianEmail,
		&c.Address, &c.City, &c.State, &c.ZipCode, &therapyRate, &supervisionRate)
	if err != nil {
		return nil, err
	}
	c.TherapyRate = parseDecimal(therapyRate)
	c.SupervisionRate = parseDecimal(supervisionRate)
	return &c, nil
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

func (q *queries) GetEmployee(ctx context.Context, id billing.EmployeeID) (*billing.Employee, error) {
	var e billing.Employee
	err := q.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, position, email, phone FROM employees WHERE id = ?`,
		id).Scan(&e.ID, &e.FirstName, &e.LastName, &e.Position, &e.Email, &e.Phone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (q *queries) SaveEmployee(ctx context.Context, e billing.Employee) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO employees (id, first_name, last_name, position, email, phone)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			position = excluded.position,
			email = excluded.email,
			phone = excluded.phone`,
		e.ID, e.FirstName, e.LastName, e.Position, e.Email, e.Phone)
	return err
}

func (q *queries) DeleteEmployee(ctx context.Context, id billing.EmployeeID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM employees WHERE id = ?`, id)
	return err
}

func (q *queries) ListEmployees(ctx context.Context) ([]billing.Employee, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, first_name, last_name, position, email, phone FROM employees ORDER BY first_name, last_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []billing.Employee
	for rows.Next() {
		var e billing.Employee
		if err := rows.Scan(&e.ID, &e.FirstName, &e.LastName, &e.Position, &e.Email, &e.Phone); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// =============================================================================
// ACCOUNT STORE (auth.AccountStore)
// =============================================================================

func (s *Store) GetAccount(ctx context.Context, email string) (*auth.Account, error) {
	var (
		a           auth.Account
		lockedUntil sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT email, password_hash, role, activation_key, failed_attempts, locked_until
		FROM users WHERE email = ?`,
		email).Scan(&a.Email, &a.PasswordHash, &a.Role, &a.ActivationKey,
		&a.FailedAttempts, &lockedUntil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		t, err := time.Parse(time.RFC3339, lockedUntil.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt locked_until for %s: %w", email, err)
		}
		a.LockedUntil = &t
	}
	return &a, nil
}

func (s *Store) SaveAccount(ctx context.Context, a auth.Account) error {
	var lockedUntil *string
	if a.LockedUntil != nil {
		t := a.LockedUntil.UTC().Format(time.RFC3339)
		lockedUntil = &t
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, role, activation_key, failed_attempts, locked_until)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			password_hash = excluded.password_hash,
			role = excluded.role,
			activation_key = excluded.activation_key,
			failed_attempts = excluded.failed_attempts,
			locked_until = excluded.locked_until`,
		a.Email, a.PasswordHash, a.Role, a.ActivationKey, a.FailedAttempts, lockedUntil)
	return err
}

// ListAccounts returns all user accounts, for the admin user list.
func (s *Store) ListAccounts(ctx context.Context) ([]auth.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, password_hash, role, activation_key, failed_attempts, locked_until
		FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []auth.Account
	for rows.Next() {
		var (
			a           auth.Account
			lockedUntil sql.NullString
		)
		if err := rows.Scan(&a.Email, &a.PasswordHash, &a.Role, &a.ActivationKey,
			&a.FailedAttempts, &lockedUntil); err != nil {
			return nil, err
		}
		if lockedUntil.Valid {
			t, err := time.Parse(time.RFC3339, lockedUntil.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt locked_until for %s: %w", a.Email, err)
			}
			a.LockedUntil = &t
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateFmt, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
