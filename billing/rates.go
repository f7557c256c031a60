/*
rates.go - Time-bounded rate resolution for employee/client pairs

PURPOSE:
  Answers "what hourly payroll rate was in effect for this employee, with
  this client, on this date?". Multiple rate records can exist per employee;
  resolution is deterministic:

    1. Among client-specific records for the requested client, pick the one
       with the latest effective date that is on or before the target date.
       A zero effective date is always eligible but sorts as the oldest.
    2. If no client-specific record matches, repeat over base records
       (empty client).
    3. If nothing matches, return ErrRateNotFound. Callers must treat this
       as a hard stop, not a zero-rate default.

  Resolution is a pure read; generated documents snapshot the resolved value
  so later rate edits never alter them.
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RateResolver resolves the payroll rate in effect for an employee (and
// optionally a specific client) on a given date.
type RateResolver struct {
	Rates RateStore
}

func NewRateResolver(rates RateStore) *RateResolver {
	return &RateResolver{Rates: rates}
}

// Resolve returns the hourly rate in effect on asOf. An empty clientID
// resolves directly against base records.
func (rr *RateResolver) Resolve(ctx context.Context, employeeID EmployeeID, clientID ClientID, asOf time.Time) (decimal.Decimal, error) {
	records, err := rr.Rates.ListRatesForEmployee(ctx, employeeID)
	if err != nil {
		return decimal.Zero, err
	}

	if clientID != "" {
		if rate, ok := pickRate(records, clientID, asOf); ok {
			return rate, nil
		}
	}
	if rate, ok := pickRate(records, "", asOf); ok {
		return rate, nil
	}
	return decimal.Zero, ErrRateNotFound
}

// pickRate selects the eligible record with the latest effective date for
// one client scope.
func pickRate(records []RateRecord, clientID ClientID, asOf time.Time) (decimal.Decimal, bool) {
	var best *RateRecord
	for i := range records {
		r := &records[i]
		if r.ClientID != clientID {
			continue
		}
		if !r.EffectiveDate.IsZero() && r.EffectiveDate.After(asOf) {
			continue
		}
		if best == nil || effectiveAfter(r, best) {
			best = r
		}
	}
	if best == nil {
		return decimal.Zero, false
	}
	return best.Rate, true
}

// effectiveAfter reports whether a's effective date is strictly newer than
// b's, with zero dates treated as the oldest possible.
func effectiveAfter(a, b *RateRecord) bool {
	if a.EffectiveDate.IsZero() {
		return false
	}
	if b.EffectiveDate.IsZero() {
		return true
	}
	return a.EffectiveDate.After(b.EffectiveDate)
}
