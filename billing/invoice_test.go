package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbrook/clinic-engine/billing"
	"github.com/clearbrook/clinic-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newInvoiceGenerator(store *sqlite.Store, issued time.Time) *billing.InvoiceGenerator {
	gen := billing.NewInvoiceGenerator(store, "INV", 7)
	gen.Now = func() time.Time { return issued }
	return gen
}

// =============================================================================
// GENERATION TESTS
// =============================================================================

func TestInvoiceGenerator_PricesByCategoryAndTotals(t *testing.T) {
	// GIVEN: Two therapy hours at $50 and one supervision hour at $80
	// WHEN: Generating an invoice for the period
	// THEN: Lines carry duration x category rate; total is their sum

	store := newTestStore(t)
	ctx := context.Background()

	seedClient(t, store, "client-1", "50.00", "80.00")
	seedActivity(t, store, "ABA Therapy", billing.CategoryTherapy)
	seedActivity(t, store, "Supervision", billing.CategorySupervision)

	day := billing.Date(2025, time.November, 3)
	seedSession(t, store, "s-1", "emp-1", "client-1", "ABA Therapy", day,
		billing.NewTimeOfDay(9, 0), billing.NewTimeOfDay(11, 0))
	seedSession(t, store, "s-2", "emp-1", "client-1", "Supervision", day,
		billing.NewTimeOfDay(13, 0), billing.NewTimeOfDay(14, 0))

	gen := newInvoiceGenerator(store, billing.Date(2025, time.November, 5))
	run, err := gen.Generate(ctx, "client-1", billing.Date(2025, time.November, 1), billing.Date(2025, time.November, 30))

	require.NoError(t, err)
	require.Len(t, run.Invoice.Lines, 2)
	assert.Empty(t, run.Warnings)
	assert.Equal(t, "100.00", run.Invoice.Lines[0].Cost.StringFixed(2))
	assert.Equal(t, "80.00", run.Invoice.Lines[1].Cost.StringFixed(2))
	assert.Equal(t, "180.00", run.Invoice.Total.StringFixed(2))
	assert.Equal(t, billing.StatusDraft, run.Invoice.Status)
	assert.Equal(t, billing.Date(2025, time.November, 12), run.Invoice.DueDate)
}

func TestInvoiceGenerator_NumberFormatAndSequence(t *testing.T) {
	// GIVEN: Two generations in the same issue month
	// WHEN: Numbers are allocated
	// THEN: PREFIX + YYYYMM + zero-padded sequence, incrementing

	store := newTestStore(t)
	ctx := context.Background()

	seedClient(t, store, "client-1", "50.00", "80.00")
	seedClient(t, store, "client-2", "60.00", "90.00")
	seedActivity(t, store, "ABA Therapy", billing.CategoryTherapy)

	day := billing.Date(2025, time.November, 3)
	seedSession(t, store, "s-1", "emp-1", "client-1", "ABA Therapy", day,
		billing.NewTimeOfDay(9, 0), billing.NewTimeOfDay(10, 0))
	seedSession(t, store, "s-2", "emp-1", "client-2", "ABA Therapy", day,
		billing.NewTimeOfDay(11, 0), billing.NewTimeOfDay(12, 0))

	gen := newInvoiceGenerator(store, billing.Date(2025, time.November, 5))

	first, err := gen.Generate(ctx, "client-1", day, day)
	require.NoError(t, err)
	second, err := gen.Generate(ctx, "client-2", day, day)
	require.NoError(t, err)

	assert.Equal(t, billing.InvoiceNumber("INV2025110001"), first.Invoice.Number)
	assert.Equal(t, billing.InvoiceNumber("INV2025110002"), second.Invoice.Number)
}

func TestInvoiceGenerator_InvoicedSessionsExcludedFromNextRun(t *testing.T) {
	// GIVEN: A session already swept into an invoice
	// WHEN: Generating again over the same period
	// THEN: Nothing is left to invoice; no double-billing

	store := newTestStore(t)
	ctx := context.Background()

	seedClient(t, store, "client-1", "50.00", "80.00")
	seedActivity(t, store, "ABA Therapy", billing.CategoryTherapy)
	day := billing.Date(2025, time.November, 3)
	seedSession(t, store, "s-1", "emp-1", "client-1", "ABA Therapy", day,
		billing.NewTimeOfDay(9, 0), billing.NewTimeOfDay(10, 0))

	gen := newInvoiceGenerator(store, billing.Date(2025, time.November, 5))

	_, err := gen.Generate(ctx, "client-1", day, day)
	require.NoError(t, err)

	_, err = gen.Generate(ctx, "client-1", day, day)
	assert.ErrorIs(t, err, billing.ErrNothingToInvoice)

	sess, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, sess.Invoiced)
	assert.Equal(t, billing.InvoiceNumber("INV2025110001"), sess.InvoiceNumber)
}

func TestInvoiceGenerator_UnknownCategoryPricesZeroWithWarning(t *testing.T) {
	// GIVEN: A session whose activity has no billing category
	// WHEN: Generating
	// THEN: The line costs zero and the run reports a warning

	store := newTestStore(t)
	ctx := context.Background()

	seedClient(t, store, "client-1", "50.00", "80.00")
	seedActivity(t, store, "Travel", billing.CategoryUnknown)
	day := billing.Date(2025, time.November, 3)
	seedSession(t, store, "s-1", "emp-1", "client-1", "Travel", day,
		billing.NewTimeOfDay(9, 0), billing.NewTimeOfDay(10, 0))

	gen := newInvoiceGenerator(store, billing.Date(2025, time.November, 5))
	run, err := gen.Generate(ctx, "client-1", day, day)

	require.NoError(t, err)
	require.Len(t, run.Warnings, 1)
	assert.Equal(t, billing.SessionID("s-1"), run.Warnings[0].SessionID)
	assert.Equal(t, "0.00", run.Invoice.Total.StringFixed(2))
}

func TestInvoiceGenerator_EmptyRange(t *testing.T) {
	store := newTestStore(t)
	seedClient(t, store, "client-1", "50.00", "80.00")

	gen := newInvoiceGenerator(store, billing.Date(2025, time.November, 5))

	_, err := gen.Generate(context.Background(), "client-1",
		billing.Date(2025, time.November, 1), billing.Date(2025, time.November, 30))
	assert.ErrorIs(t, err, billing.ErrNothingToInvoice)

	_, err = gen.Generate(context.Background(), "client-1",
		billing.Date(2025, time.November, 30), billing.Date(2025, time.November, 1))
	assert.ErrorIs(t, err, billing.ErrInvalidPeriod)
}

func TestInvoiceGenerator_UnknownClient(t *testing.T) {
	store := newTestStore(t)
	gen := newInvoiceGenerator(store, billing.Date(2025, time.November, 5))

	_, err := gen.Generate(context.Background(), "nobody",
		billing.Date(2025, time.November, 1), billing.Date(2025, time.November, 30))
	assert.ErrorIs(t, err, billing.ErrClientNotFound)
}

// =============================================================================
// SNAPSHOT IMMUTABILITY TESTS
// =============================================================================

func TestInvoice_SnapshotImmuneToLaterRateEdits(t *testing.T) {
	// GIVEN: An invoice generated at $50/h
	// WHEN: The client's therapy rate later changes to $75/h
	// THEN: The stored invoice still reads $50/h lines and the old total

	store := newTestStore(t)
	ctx := context.Background()

	seedClient(t, store, "client-1", "50.00", "80.00")
	seedActivity(t, store, "ABA Therapy", billing.CategoryTherapy)
	day := billing.Date(2025, time.November, 3)
	seedSession(t, store, "s-1", "emp-1", "client-1", "ABA Therapy", day,
		billing.NewTimeOfDay(9, 0), billing.NewTimeOfDay(11, 0))

	gen := newInvoiceGenerator(store, billing.Date(2025, time.November, 5))
	run, err := gen.Generate(ctx, "client-1", day, day)
	require.NoError(t, err)

	// Rate edit after the fact
	seedClient(t, store, "client-1", "75.00", "80.00")

	stored, err := store.GetInvoice(ctx, run.Invoice.Number)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, "50.00", stored.Lines[0].Rate.StringFixed(2))
	assert.Equal(t, "100.00", stored.Total.StringFixed(2))
}

// =============================================================================
// DELETION / REVERSAL TESTS
// =============================================================================

func TestInvoiceGenerator_DeleteReversesFlags(t *testing.T) {
	// GIVEN: An invoice covering one session
	// WHEN: The invoice is deleted
	// THEN: The session is uninvoiced again and a new run can sweep it

	store := newTestStore(t)
	ctx := context.Background()

	seedClient(t, store, "client-1", "50.00", "80.00")
	seedActivity(t, store, "ABA Therapy", billing.CategoryTherapy)
	day := billing.Date(2025, time.November, 3)
	seedSession(t, store, "s-1", "emp-1", "client-1", "ABA Therapy", day,
		billing.NewTimeOfDay(9, 0), billing.NewTimeOfDay(10, 0))

	gen := newInvoiceGenerator(store, billing.Date(2025, time.November, 5))
	run, err := gen.Generate(ctx, "client-1", day, day)
	require.NoError(t, err)

	require.NoError(t, gen.Delete(ctx, run.Invoice.Number))

	sess, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, sess.Invoiced)
	assert.Empty(t, sess.InvoiceNumber)

	gone, err := store.GetInvoice(ctx, run.Invoice.Number)
	require.NoError(t, err)
	assert.Nil(t, gone)

	again, err := gen.Generate(ctx, "client-1", day, day)
	require.NoError(t, err)
	assert.Equal(t, "50.00", again.Invoice.Total.StringFixed(2))
}

func TestInvoiceGenerator_DeleteReconcilesDriftedSessions(t *testing.T) {
	// GIVEN: A session carrying the invoice number but absent from the
	//        snapshot (drifted state)
	// WHEN: Deleting the invoice
	// THEN: Both the snapshotted and the drifted session are released

	store := newTestStore(t)
	ctx := context.Background()

	seedClient(t, store, "client-1", "50.00", "80.00")
	seedActivity(t, store, "ABA Therapy", billing.CategoryTherapy)
	day := billing.Date(2025, time.November, 3)
	seedSession(t, store, "s-1", "emp-1", "client-1", "ABA Therapy", day,
		billing.NewTimeOfDay(9, 0), billing.NewTimeOfDay(10, 0))

	gen := newInvoiceGenerator(store, billing.Date(2025, time.November, 5))
	run, err := gen.Generate(ctx, "client-1", day, day)
	require.NoError(t, err)

	// Drift: a later session stamped with the number outside the snapshot
	drifted := seedSession(t, store, "s-2", "emp-1", "client-1", "ABA Therapy", day,
		billing.NewTimeOfDay(14, 0), billing.NewTimeOfDay(15, 0))
	drifted.Invoiced = true
	drifted.InvoiceNumber = run.Invoice.Number
	require.NoError(t, store.SaveSession(ctx, drifted))

	require.NoError(t, gen.Delete(ctx, run.Invoice.Number))

	for _, id := range []billing.SessionID{"s-1", "s-2"} {
		sess, err := store.GetSession(ctx, id)
		require.NoError(t, err)
		assert.False(t, sess.Invoiced, "session %s should be released", id)
		assert.Empty(t, sess.InvoiceNumber)
	}
}

func TestInvoiceGenerator_DeleteUnknownInvoice(t *testing.T) {
	store := newTestStore(t)
	gen := newInvoiceGenerator(store, billing.Date(2025, time.November, 5))

	err := gen.Delete(context.Background(), "INV2025110099")
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
}

// =============================================================================
// STATUS LIFECYCLE TESTS
// =============================================================================

func TestInvoiceGenerator_StatusLifecycle(t *testing.T) {
	// GIVEN: A freshly generated Draft invoice
	// WHEN: Walking Draft -> Sent -> Paid -> Draft
	// THEN: Each step is allowed; Paid stamps a date, Draft clears it

	store := newTestStore(t)
	ctx := context.Background()

	seedClient(t, store, "client-1", "50.00", "80.00")
	seedActivity(t, store, "ABA Therapy", billing.CategoryTherapy)
	day := billing.Date(2025, time.November, 3)
	seedSession(t, store, "s-1", "emp-1", "client-1", "ABA Therapy", day,
		billing.NewTimeOfDay(9, 0), billing.NewTimeOfDay(10, 0))

	gen := newInvoiceGenerator(store, billing.Date(2025, time.November, 5))
	run, err := gen.Generate(ctx, "client-1", day, day)
	require.NoError(t, err)
	number := run.Invoice.Number

	require.NoError(t, gen.SetStatus(ctx, number, billing.StatusSent, nil, ""))

	paidOn := billing.Date(2025, time.November, 20)
	require.NoError(t, gen.SetStatus(ctx, number, billing.StatusPaid, &paidOn, "check #442"))

	inv, err := store.GetInvoice(ctx, number)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, inv.Status)
	require.NotNil(t, inv.PaidDate)
	assert.Equal(t, paidOn, *inv.PaidDate)
	assert.Equal(t, "check #442", inv.PaymentNotes)

	// Correction path clears payment detail
	require.NoError(t, gen.SetStatus(ctx, number, billing.StatusDraft, nil, ""))
	inv, err = store.GetInvoice(ctx, number)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusDraft, inv.Status)
	assert.Nil(t, inv.PaidDate)
}

func TestInvoiceGenerator_IllegalStatusJumps_Rejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedClient(t, store, "client-1", "50.00", "80.00")
	seedActivity(t, store, "ABA Therapy", billing.CategoryTherapy)
	day := billing.Date(2025, time.November, 3)
	seedSession(t, store, "s-1", "emp-1", "client-1", "ABA Therapy", day,
		billing.NewTimeOfDay(9, 0), billing.NewTimeOfDay(10, 0))

	gen := newInvoiceGenerator(store, billing.Date(2025, time.November, 5))
	run, err := gen.Generate(ctx, "client-1", day, day)
	require.NoError(t, err)
	number := run.Invoice.Number

	// Draft -> Paid skips Sent
	err = gen.SetStatus(ctx, number, billing.StatusPaid, nil, "")
	assert.ErrorIs(t, err, billing.ErrInvalidStatusChange)

	// Sent -> Draft is not a step of the lifecycle
	require.NoError(t, gen.SetStatus(ctx, number, billing.StatusSent, nil, ""))
	err = gen.SetStatus(ctx, number, billing.StatusDraft, nil, "")
	assert.ErrorIs(t, err, billing.ErrInvalidStatusChange)
}
