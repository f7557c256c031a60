/*
invoice.go - Invoice generation with point-in-time cost snapshotting

PURPOSE:
  Selects un-invoiced sessions for a client within a date range, prices
  them from the client's billing-category rates, snapshots every line, and
  atomically marks the sessions invoiced. Once generated, an invoice's
  financial detail is immune to later rate edits: the snapshot, not a live
  join, is authoritative.

NUMBERING:
  Invoice numbers are PREFIX + YYYYMM + 4-digit monthly sequence, e.g.
  INV2025110007. External parties reference these, so the format is fixed.
  The sequence is derived from a count query, which can race under
  concurrent generation; a unique constraint on the number plus a single
  re-derive-and-retry closes that window.

PRICING POLICY:
  Sessions whose activity maps to an unknown billing category price at
  zero rather than failing the run, but every such line is reported as a
  warning so an operator can spot data-entry errors. Payroll is stricter;
  see paystub.go.
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INVOICE GENERATOR
// =============================================================================

type InvoiceGenerator struct {
	Store   TxStore
	Prefix  string           // invoice number prefix, e.g. "INV"
	DueDays int              // due date offset from issue date
	Now     func() time.Time // nil = time.Now
}

func NewInvoiceGenerator(store TxStore, prefix string, dueDays int) *InvoiceGenerator {
	return &InvoiceGenerator{Store: store, Prefix: prefix, DueDays: dueDays}
}

func (g *InvoiceGenerator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// ZeroRateWarning flags a line that priced at zero because its activity
// has no known billing category.
type ZeroRateWarning struct {
	SessionID SessionID
	Activity  ActivityName
}

// InvoiceRun is the result of a successful generation.
type InvoiceRun struct {
	Invoice  Invoice
	Warnings []ZeroRateWarning
}

// Generate creates an invoice for the client's uninvoiced sessions dated
// within [from, to]. Pricing, snapshot, numbering, and session flagging
// commit as one transaction; on any failure nothing is persisted. A number
// collision is retried once with a re-derived sequence.
func (g *InvoiceGenerator) Generate(ctx context.Context, clientID ClientID, from, to time.Time) (*InvoiceRun, error) {
	if to.Before(from) {
		return nil, ErrInvalidPeriod
	}

	run, err := g.generateOnce(ctx, clientID, from, to)
	if errors.Is(err, ErrDuplicateInvoiceNumber) {
		run, err = g.generateOnce(ctx, clientID, from, to)
	}
	return run, err
}

func (g *InvoiceGenerator) generateOnce(ctx context.Context, clientID ClientID, from, to time.Time) (*InvoiceRun, error) {
	var run *InvoiceRun
	err := g.Store.WithTx(ctx, func(s Store) error {
		client, err := s.GetClient(ctx, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return ErrClientNotFound
		}

		sessions, err := s.ListUninvoicedSessions(ctx, clientID, DayOf(from), DayOf(to))
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return ErrNothingToInvoice
		}

		categories, err := activityCategories(ctx, s)
		if err != nil {
			return err
		}

		inv := Invoice{
			ClientID:   clientID,
			IssuedDate: DayOf(g.now()),
			DateFrom:   DayOf(from),
			DateTo:     DayOf(to),
			Status:     StatusDraft,
		}
		inv.DueDate = inv.IssuedDate.AddDate(0, 0, g.DueDays)

		var warnings []ZeroRateWarning
		total := decimal.Zero
		ids := make([]SessionID, 0, len(sessions))
		for _, sess := range sessions {
			cat := categories[sess.Activity]
			rate := client.RateForCategory(cat)
			if cat == CategoryUnknown {
				warnings = append(warnings, ZeroRateWarning{SessionID: sess.ID, Activity: sess.Activity})
			}
			cost := sess.Duration.Mul(rate).Round(2)
			inv.Lines = append(inv.Lines, InvoiceLine{
				SessionID: sess.ID,
				Date:      sess.Date,
				Activity:  sess.Activity,
				Duration:  sess.Duration,
				Rate:      rate,
				Cost:      cost,
			})
			total = total.Add(cost)
			ids = append(ids, sess.ID)
		}
		inv.Total = total.Round(2)

		number, err := g.allocateNumber(ctx, s)
		if err != nil {
			return err
		}
		inv.Number = number

		if err := s.SaveInvoice(ctx, inv); err != nil {
			return err
		}
		if err := s.MarkSessionsInvoiced(ctx, ids, inv.Number); err != nil {
			return err
		}

		run = &InvoiceRun{Invoice: inv, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// allocateNumber derives the next monthly sequence number. Scoped by the
// issue month, not the billed range.
func (g *InvoiceGenerator) allocateNumber(ctx context.Context, s InvoiceStore) (InvoiceNumber, error) {
	monthPrefix := g.Prefix + g.now().Format("200601")
	count, err := s.CountInvoicesWithPrefix(ctx, monthPrefix)
	if err != nil {
		return "", err
	}
	return InvoiceNumber(fmt.Sprintf("%s%04d", monthPrefix, count+1)), nil
}

// Delete removes an invoice and reverses its session flags. The snapshot's
// session IDs and the sessions still carrying the invoice number can drift
// apart; both sources of truth are reconciled before the delete.
func (g *InvoiceGenerator) Delete(ctx context.Context, number InvoiceNumber) error {
	return g.Store.WithTx(ctx, func(s Store) error {
		inv, err := s.GetInvoice(ctx, number)
		if err != nil {
			return err
		}
		if inv == nil {
			return ErrInvoiceNotFound
		}

		seen := make(map[SessionID]bool)
		var ids []SessionID
		for _, line := range inv.Lines {
			if !seen[line.SessionID] {
				seen[line.SessionID] = true
				ids = append(ids, line.SessionID)
			}
		}
		byNumber, err := s.ListSessionsByInvoice(ctx, number)
		if err != nil {
			return err
		}
		for _, sess := range byNumber {
			if !seen[sess.ID] {
				seen[sess.ID] = true
				ids = append(ids, sess.ID)
			}
		}

		if err := s.ClearSessionsInvoiced(ctx, ids); err != nil {
			return err
		}
		return s.DeleteInvoice(ctx, number)
	})
}

// SetStatus applies an administrative status transition. Marking Paid
// stamps the paid date (today when omitted); correcting back to Draft
// clears it.
func (g *InvoiceGenerator) SetStatus(ctx context.Context, number InvoiceNumber, to InvoiceStatus, paidDate *time.Time, notes string) error {
	return g.Store.WithTx(ctx, func(s Store) error {
		inv, err := s.GetInvoice(ctx, number)
		if err != nil {
			return err
		}
		if inv == nil {
			return ErrInvoiceNotFound
		}
		if !inv.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatusChange, inv.Status, to)
		}

		switch to {
		case StatusPaid:
			if paidDate == nil {
				d := DayOf(g.now())
				paidDate = &d
			}
		default:
			paidDate = nil
		}
		return s.UpdateInvoiceStatus(ctx, number, to, paidDate, notes)
	})
}

// activityCategories loads the activity table once per run for category
// lookups.
func activityCategories(ctx context.Context, s ActivityStore) (map[ActivityName]BillingCategory, error) {
	activities, err := s.ListActivities(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[ActivityName]BillingCategory, len(activities))
	for _, a := range activities {
		m[a.Name] = a.Category
	}
	return m, nil
}
