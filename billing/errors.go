/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All engine errors in one place. Callers classify with errors.Is/errors.As;
  the HTTP layer maps classes to status codes and never sees raw SQL errors.

ERROR CATEGORIES:
  1. Validation errors - malformed input, rejected before any persistence
  2. Conflict errors   - scheduling overlap, retrying the same interval fails
  3. Not-found errors  - missing rates/documents; payroll treats missing
                         rates as a hard stop, never a zero default
  4. Integrity errors  - storage constraint violations, retryable once
*/
package billing

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRateNotFound is returned when no rate record applies to an
	// (employee, client, date) triple. Financial correctness over
	// convenience: callers must not substitute a zero rate.
	ErrRateNotFound = errors.New("no applicable rate record")

	// ErrScheduleConflict is returned when a session interval overlaps an
	// existing committed session for the same employee and day.
	ErrScheduleConflict = errors.New("session overlaps an existing session")

	// ErrInvalidInterval is returned when end <= start.
	ErrInvalidInterval = errors.New("invalid interval: end must be after start")

	// ErrDurationMismatch is returned when the stored duration disagrees
	// with the wall-clock span of the interval beyond tolerance.
	ErrDurationMismatch = errors.New("duration does not match interval span")

	// ErrInvalidPeriod is returned when a date range is malformed.
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrNothingToInvoice is returned when no uninvoiced sessions match
	// the requested client and date range.
	ErrNothingToInvoice = errors.New("no uninvoiced sessions in range")

	// ErrMissingRates is returned when a paystub run cannot price every
	// session. Nothing is persisted; the run result lists the gaps.
	ErrMissingRates = errors.New("missing pay rates for some sessions")

	// ErrDuplicateInvoiceNumber is returned when the allocated invoice
	// number collides with an existing one. Re-derive the sequence and
	// retry once.
	ErrDuplicateInvoiceNumber = errors.New("duplicate invoice number")

	// ErrInvalidStatusChange is returned for a disallowed invoice status
	// transition.
	ErrInvalidStatusChange = errors.New("invalid invoice status transition")

	ErrSessionNotFound  = errors.New("session not found")
	ErrClientNotFound   = errors.New("client not found")
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrInvoiceNotFound  = errors.New("invoice not found")
	ErrPayStubNotFound  = errors.New("paystub not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConflictError reports which existing session a proposed interval collides
// with.
type ConflictError struct {
	EmployeeID EmployeeID
	Date       time.Time
	Start      TimeOfDay
	End        TimeOfDay
	ExistingID SessionID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %s-%s on %s overlaps session %s",
		e.Start, e.End, e.Date.Format("2006-01-02"), e.ExistingID)
}

func (e *ConflictError) Unwrap() error { return ErrScheduleConflict }

// FieldError reports a validation failure on a specific field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MissingRate identifies one session that could not be priced during a
// paystub run.
type MissingRate struct {
	SessionID SessionID
	ClientID  ClientID
	Date      time.Time
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry after
// re-deriving derived state (e.g. the invoice sequence).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDuplicateInvoiceNumber)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	var fe *FieldError
	return errors.Is(err, ErrScheduleConflict) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrDurationMismatch) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrNothingToInvoice) ||
		errors.Is(err, ErrMissingRates) ||
		errors.Is(err, ErrInvalidStatusChange) ||
		errors.As(err, &fe)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRateNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrPayStubNotFound)
}
