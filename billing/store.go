/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  The engine is pure domain logic over these interfaces. The sqlite package
  implements them; tests may use an in-memory database.

TRANSACTION BOUNDARY:
  Invoice and paystub generation must execute price -> snapshot -> flag
  updates as one atomic commit. TxStore.WithTx provides that boundary: the
  callback receives a Store scoped to a single database transaction, and a
  returned error rolls everything back.
*/
package billing

import (
	"context"
	"time"
)

// SessionStore persists sessions and their invoiced/paid flags.
type SessionStore interface {
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	SaveSession(ctx context.Context, s Session) error
	DeleteSession(ctx context.Context, id SessionID) error

	// ListSessionsByEmployeeDay returns every session for an employee on
	// one calendar day, for overlap checks.
	ListSessionsByEmployeeDay(ctx context.Context, employeeID EmployeeID, day time.Time) ([]Session, error)

	// ListUninvoicedSessions returns sessions for a client in [from, to]
	// with invoiced = false, ordered by date and start time.
	ListUninvoicedSessions(ctx context.Context, clientID ClientID, from, to time.Time) ([]Session, error)

	// ListUnpaidSessions returns sessions for an employee in [from, to]
	// that are not flagged paid and are not referenced by any paystub
	// item. Both sources of truth are checked; a session that appears in
	// either is excluded (double-payment guard).
	ListUnpaidSessions(ctx context.Context, employeeID EmployeeID, from, to time.Time) ([]Session, error)

	// ListSessionsByInvoice returns sessions carrying the invoice number,
	// regardless of what the invoice snapshot references.
	ListSessionsByInvoice(ctx context.Context, number InvoiceNumber) ([]Session, error)

	// MarkSessionsInvoiced sets invoiced = true and the invoice reference
	// on every listed session.
	MarkSessionsInvoiced(ctx context.Context, ids []SessionID, number InvoiceNumber) error

	// ClearSessionsInvoiced resets invoiced = false and clears the
	// invoice reference on every listed session.
	ClearSessionsInvoiced(ctx context.Context, ids []SessionID) error

	// MarkSessionsPaid sets or clears the paid flag on every listed session.
	MarkSessionsPaid(ctx context.Context, ids []SessionID, paid bool) error
}

// RateStore persists payroll rate records.
type RateStore interface {
	GetRate(ctx context.Context, id RateID) (*RateRecord, error)
	SaveRate(ctx context.Context, r RateRecord) error
	DeleteRate(ctx context.Context, id RateID) error
	ListRates(ctx context.Context) ([]RateRecord, error)

	// ListRatesForEmployee returns all rate records for an employee,
	// client-specific and base, newest effective date first.
	ListRatesForEmployee(ctx context.Context, employeeID EmployeeID) ([]RateRecord, error)
}

// InvoiceStore persists invoices and their line-item snapshots.
type InvoiceStore interface {
	// SaveInvoice inserts an invoice with its lines. A number collision
	// surfaces as ErrDuplicateInvoiceNumber.
	SaveInvoice(ctx context.Context, inv Invoice) error

	// GetInvoice returns the invoice with its snapshot lines.
	GetInvoice(ctx context.Context, number InvoiceNumber) (*Invoice, error)
	ListInvoices(ctx context.Context) ([]Invoice, error)
	DeleteInvoice(ctx context.Context, number InvoiceNumber) error

	// CountInvoicesWithPrefix counts invoices whose number starts with the
	// prefix (used for monthly sequence allocation).
	CountInvoicesWithPrefix(ctx context.Context, prefix string) (int, error)

	// UpdateInvoiceStatus records a status transition with payment detail.
	UpdateInvoiceStatus(ctx context.Context, number InvoiceNumber, status InvoiceStatus, paidDate *time.Time, notes string) error

	// ListInvoicesDue returns invoices in the given status with a due
	// date on or before the cutoff (reminder scan).
	ListInvoicesDue(ctx context.Context, status InvoiceStatus, cutoff time.Time) ([]Invoice, error)
}

// PayStubStore persists paystubs and their items.
type PayStubStore interface {
	// SavePayStub inserts a paystub with its items.
	SavePayStub(ctx context.Context, stub PayStub) error

	// GetPayStub returns the paystub with its items.
	GetPayStub(ctx context.Context, id PayStubID) (*PayStub, error)
	ListPayStubs(ctx context.Context, employeeID EmployeeID) ([]PayStub, error)

	// DeletePayStub removes the paystub; items cascade.
	DeletePayStub(ctx context.Context, id PayStubID) error

	// MarkPayStubEmailed records that the paystub notification went out.
	MarkPayStubEmailed(ctx context.Context, id PayStubID) error
}

// ActivityStore persists activity definitions.
type ActivityStore interface {
	GetActivity(ctx context.Context, name ActivityName) (*Activity, error)
	SaveActivity(ctx context.Context, a Activity) error
	DeleteActivity(ctx context.Context, name ActivityName) error
	ListActivities(ctx context.Context) ([]Activity, error)
}

// ClientStore persists client records.
type ClientStore interface {
	GetClient(ctx context.Context, id ClientID) (*Client, error)
	SaveClient(ctx context.Context, c Client) error
	DeleteClient(ctx context.Context, id ClientID) error
	ListClients(ctx context.Context) ([]Client, error)
}

// EmployeeStore persists employee records.
type EmployeeStore interface {
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
	SaveEmployee(ctx context.Context, e Employee) error
	DeleteEmployee(ctx context.Context, id EmployeeID) error
	ListEmployees(ctx context.Context) ([]Employee, error)
}

// Store bundles everything the engine reads and writes.
type Store interface {
	SessionStore
	RateStore
	InvoiceStore
	PayStubStore
	ActivityStore
	ClientStore
	EmployeeStore
}

// TxStore adds the atomic commit boundary.
type TxStore interface {
	Store

	// WithTx runs fn inside one database transaction. The Store passed to
	// fn sees and writes only that transaction; an error rolls back every
	// write.
	WithTx(ctx context.Context, fn func(Store) error) error
}
