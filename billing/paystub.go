/*
paystub.go - Paystub generation reconciling sessions against prior runs

PURPOSE:
  Selects an employee's sessions within a pay period that have not already
  been paid, prices them through the rate resolver (payroll rates, not
  client billing rates), and atomically records the stub, its items, and
  the paid flags.

DOUBLE-PAYMENT GUARD:
  A session already referenced by any paystub item, or already flagged
  paid, is excluded even across overlapping periods. Deleting a stub
  reverses the flags so the sessions become payable again.

MISSING RATES:
  Payroll is strict where invoicing is permissive: if any session has no
  resolvable rate the whole run stays preview-only and nothing is
  persisted. The result lists every gap so an operator can add the missing
  rates and retry.
*/
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYSTUB GENERATOR
// =============================================================================

// PayStubNotifier receives a post-commit notification for a generated
// stub. Implementations must not block; delivery failure never affects the
// persisted financial record.
type PayStubNotifier interface {
	PayStubIssued(stub PayStub)
}

type PayStubGenerator struct {
	Store    TxStore
	Notifier PayStubNotifier  // optional
	Now      func() time.Time // nil = time.Now
}

func NewPayStubGenerator(store TxStore) *PayStubGenerator {
	return &PayStubGenerator{Store: store}
}

func (g *PayStubGenerator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// PayStubRun is the outcome of a generation call. Committed is false for
// previews and for runs blocked by missing rates.
type PayStubRun struct {
	Committed    bool
	Stub         PayStub
	MissingRates []MissingRate
}

// Generate prices the employee's unpaid sessions in [start, end]. With
// commit false the run is a preview. With commit true the stub, its items,
// and the paid flags persist in one transaction - unless any session fails
// to price, in which case ErrMissingRates is returned alongside a run
// listing the gaps and nothing is written.
func (g *PayStubGenerator) Generate(ctx context.Context, employeeID EmployeeID, start, end time.Time, commit bool) (*PayStubRun, error) {
	if end.Before(start) {
		return nil, ErrInvalidPeriod
	}

	var run *PayStubRun
	price := func(s Store) error {
		emp, err := s.GetEmployee(ctx, employeeID)
		if err != nil {
			return err
		}
		if emp == nil {
			return ErrEmployeeNotFound
		}

		sessions, err := s.ListUnpaidSessions(ctx, employeeID, DayOf(start), DayOf(end))
		if err != nil {
			return err
		}

		resolver := NewRateResolver(s)
		stub := PayStub{
			EmployeeID:    employeeID,
			PeriodStart:   DayOf(start),
			PeriodEnd:     DayOf(end),
			GeneratedDate: DayOf(g.now()),
			TotalHours:    decimal.Zero,
			TotalAmount:   decimal.Zero,
		}

		var missing []MissingRate
		var ids []SessionID
		for _, sess := range sessions {
			rate, err := resolver.Resolve(ctx, employeeID, sess.ClientID, sess.Date)
			if errors.Is(err, ErrRateNotFound) {
				missing = append(missing, MissingRate{
					SessionID: sess.ID,
					ClientID:  sess.ClientID,
					Date:      sess.Date,
				})
				continue
			}
			if err != nil {
				return err
			}

			amount := rate.Mul(sess.Duration).Round(2)
			stub.Items = append(stub.Items, PayStubItem{
				SessionID: sess.ID,
				ClientID:  sess.ClientID,
				Rate:      rate,
				Hours:     sess.Duration,
				Amount:    amount,
			})
			stub.TotalHours = stub.TotalHours.Add(sess.Duration)
			stub.TotalAmount = stub.TotalAmount.Add(amount)
			ids = append(ids, sess.ID)
		}
		stub.TotalHours = stub.TotalHours.Round(2)
		stub.TotalAmount = stub.TotalAmount.Round(2)

		run = &PayStubRun{Stub: stub, MissingRates: missing}
		if len(missing) > 0 {
			return ErrMissingRates
		}
		if !commit {
			return nil
		}

		stub.ID = PayStubID(uuid.NewString())
		run.Stub.ID = stub.ID
		if err := s.SavePayStub(ctx, stub); err != nil {
			return err
		}
		if err := s.MarkSessionsPaid(ctx, ids, true); err != nil {
			return err
		}
		run.Committed = true
		return nil
	}

	var err error
	if commit {
		err = g.Store.WithTx(ctx, price)
	} else {
		err = price(g.Store)
	}
	if errors.Is(err, ErrMissingRates) {
		// Preview-only outcome: report the gaps, persist nothing.
		return run, err
	}
	if err != nil {
		return nil, err
	}

	if run.Committed && g.Notifier != nil {
		g.Notifier.PayStubIssued(run.Stub)
		// The stub is already committed; a failed flag write is not an error.
		if err := g.Store.MarkPayStubEmailed(ctx, run.Stub.ID); err == nil {
			run.Stub.EmailSent = true
		}
	}
	return run, nil
}

// Delete reverses a paystub: every session referenced by the stub's items
// becomes unpaid again, then the stub and items are removed.
func (g *PayStubGenerator) Delete(ctx context.Context, id PayStubID) error {
	return g.Store.WithTx(ctx, func(s Store) error {
		stub, err := s.GetPayStub(ctx, id)
		if err != nil {
			return err
		}
		if stub == nil {
			return ErrPayStubNotFound
		}

		ids := make([]SessionID, 0, len(stub.Items))
		for _, item := range stub.Items {
			ids = append(ids, item.SessionID)
		}
		if err := s.MarkSessionsPaid(ctx, ids, false); err != nil {
			return err
		}
		return s.DeletePayStub(ctx, id)
	})
}
