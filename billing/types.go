/*
Package billing contains the billing and compensation engine.

PURPOSE:
  This package turns raw service-delivery records ("sessions") into client
  invoices and employee paystubs while preventing double-booking,
  double-invoicing, and double-payment. Historical financial documents stay
  immutable against later rate changes because every generated document
  carries its own pricing snapshot.

KEY CONCEPTS IN THIS FILE (types.go):
  - Session: A unit of billable/payable clinical work
  - RateRecord: A time-bounded payroll rate for an employee (or pair)
  - Invoice / InvoiceLine: A client bill with a frozen line-item snapshot
  - PayStub / PayStubItem: A payroll document reconciling paid sessions
  - BillingCategory: Closed enumeration of client billing categories

DESIGN PRINCIPLES:
  1. Immutability: Invoice lines and paystub items are snapshots, never joins
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing employee/client IDs
  4. Atomicity: Generators commit pricing, snapshot, and flags together

SEE ALSO:
  - rates.go: Time-bounded rate resolution
  - schedule.go: Session overlap detection
  - invoice.go: Invoice generation and reversal
  - paystub.go: Paystub generation and reversal
*/
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type ClientID string
type SessionID string
type RateID string
type PayStubID string
type ActivityName string
type InvoiceNumber string

// =============================================================================
// BILLING CATEGORY - Closed enumeration, resolved at activity definition time
// =============================================================================

type BillingCategory int

const (
	CategoryUnknown BillingCategory = iota
	CategoryTherapy
	CategorySupervision
)

func (c BillingCategory) String() string {
	switch c {
	case CategoryTherapy:
		return "Therapy"
	case CategorySupervision:
		return "Supervision"
	default:
		return "Unknown"
	}
}

// ParseBillingCategory maps a stored category label to the closed enum.
// Matching is case-insensitive; anything unrecognized is CategoryUnknown.
func ParseBillingCategory(s string) BillingCategory {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "therapy":
		return CategoryTherapy
	case "supervision":
		return CategorySupervision
	default:
		return CategoryUnknown
	}
}

// =============================================================================
// TIME OF DAY - Minutes since midnight, for interval arithmetic
// =============================================================================

// TimeOfDay is a wall-clock time within a single day, stored as minutes
// since midnight. Session intervals are half-open: [Start, End).
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM" (24-hour clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) Before(other TimeOfDay) bool { return t < other }

// Sub returns the span between two times of day as decimal hours.
func (t TimeOfDay) Sub(other TimeOfDay) decimal.Decimal {
	return decimal.NewFromInt(int64(t - other)).Div(decimal.NewFromInt(60))
}

// Date constructs a day-granularity point in time (UTC midnight).
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DayOf truncates a timestamp to its calendar day (UTC midnight).
func DayOf(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// =============================================================================
// SESSION - A unit of billable/payable work
// =============================================================================

// durationTolerance is how far the stored duration may drift from the
// wall-clock span of [Start, End) before the session is rejected, in hours.
var durationTolerance = decimal.RequireFromString("0.02")

type Session struct {
	ID         SessionID
	EmployeeID EmployeeID
	ClientID   ClientID // empty = non-billable internal work
	Activity   ActivityName
	Date       time.Time // day granularity
	Start      TimeOfDay
	End        TimeOfDay
	Duration   decimal.Decimal // hours, stored independently of Start/End

	Invoiced      bool
	InvoiceNumber InvoiceNumber
	Paid          bool
}

// WallClockHours returns the span of the session interval in hours.
func (s Session) WallClockHours() decimal.Decimal {
	return s.End.Sub(s.Start)
}

// DurationMatchesInterval reports whether the stored duration agrees with
// the wall-clock span within tolerance.
func (s Session) DurationMatchesInterval() bool {
	diff := s.Duration.Sub(s.WallClockHours()).Abs()
	return diff.LessThanOrEqual(durationTolerance)
}

// =============================================================================
// RATE RECORD - Time-bounded payroll rate
// =============================================================================

// RateRecord is a payroll rate for an employee, optionally scoped to a
// single client. A zero EffectiveDate means the record is always eligible
// but sorts as the oldest during resolution.
type RateRecord struct {
	ID            RateID
	EmployeeID    EmployeeID
	ClientID      ClientID // empty = base rate for all clients
	Rate          decimal.Decimal
	EffectiveDate time.Time
}

// =============================================================================
// CLIENT / EMPLOYEE / ACTIVITY
// =============================================================================

// Client carries the two fixed billing-category rates used by invoicing.
// Payroll never reads these; it uses RateRecords instead.
type Client struct {
	ID              ClientID
	FirstName       string
	LastName        string
	GuardianName    string
	GuardianEmail   string
	Address         string
	City            string
	State           string
	ZipCode         string
	TherapyRate     decimal.Decimal
	SupervisionRate decimal.Decimal
}

func (c Client) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// RateForCategory returns the client billing rate for a category.
// Unknown categories price at zero; callers surface that as a warning.
func (c Client) RateForCategory(cat BillingCategory) decimal.Decimal {
	switch cat {
	case CategoryTherapy:
		return c.TherapyRate
	case CategorySupervision:
		return c.SupervisionRate
	default:
		return decimal.Zero
	}
}

type Employee struct {
	ID        EmployeeID
	FirstName string
	LastName  string
	Position  string
	Email     string
	Phone     string
}

func (e Employee) Name() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// Activity is a service type with its billing category resolved once at
// definition time, so the pricing path never matches free-text labels.
type Activity struct {
	Name     ActivityName
	Category BillingCategory
}

// =============================================================================
// INVOICE - Client bill with immutable line-item snapshot
// =============================================================================

type InvoiceStatus string

const (
	StatusDraft InvoiceStatus = "Draft"
	StatusSent  InvoiceStatus = "Sent"
	StatusPaid  InvoiceStatus = "Paid"
)

// CanTransition reports whether a status change is an allowed step of the
// invoice lifecycle. Paid back to Draft is the correction path.
func (s InvoiceStatus) CanTransition(to InvoiceStatus) bool {
	switch s {
	case StatusDraft:
		return to == StatusSent
	case StatusSent:
		return to == StatusPaid
	case StatusPaid:
		return to == StatusDraft
	default:
		return false
	}
}

type Invoice struct {
	Number       InvoiceNumber
	ClientID     ClientID
	IssuedDate   time.Time
	DueDate      time.Time
	DateFrom     time.Time
	DateTo       time.Time
	Total        decimal.Decimal
	Status       InvoiceStatus
	PaidDate     *time.Time
	PaymentNotes string
	Lines        []InvoiceLine
}

// InvoiceLine is the frozen per-session pricing captured at generation
// time. Later edits to rates or activities never alter these values.
type InvoiceLine struct {
	SessionID SessionID
	Date      time.Time
	Activity  ActivityName
	Duration  decimal.Decimal
	Rate      decimal.Decimal
	Cost      decimal.Decimal
}

// =============================================================================
// PAYSTUB - Payroll document with per-session items
// =============================================================================

type PayStub struct {
	ID            PayStubID
	EmployeeID    EmployeeID
	PeriodStart   time.Time
	PeriodEnd     time.Time
	GeneratedDate time.Time
	TotalHours    decimal.Decimal
	TotalAmount   decimal.Decimal
	EmailSent     bool
	Items         []PayStubItem
}

type PayStubItem struct {
	SessionID SessionID
	ClientID  ClientID
	Rate      decimal.Decimal
	Hours     decimal.Decimal
	Amount    decimal.Decimal
}
