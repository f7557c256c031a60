package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbrook/clinic-engine/auth"
	"github.com/clearbrook/clinic-engine/billing"
	"github.com/clearbrook/clinic-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func fixtureInvoice(number string) billing.Invoice {
	return billing.Invoice{
		Number:     billing.InvoiceNumber(number),
		ClientID:   "client-1",
		IssuedDate: billing.Date(2025, time.November, 5),
		DueDate:    billing.Date(2025, time.November, 12),
		DateFrom:   billing.Date(2025, time.November, 1),
		DateTo:     billing.Date(2025, time.November, 30),
		Total:      decimal.RequireFromString("100.00"),
		Status:     billing.StatusDraft,
		Lines: []billing.InvoiceLine{{
			SessionID: "s-1",
			Date:      billing.Date(2025, time.November, 3),
			Activity:  "ABA Therapy",
			Duration:  decimal.NewFromInt(2),
			Rate:      decimal.RequireFromString("50.00"),
			Cost:      decimal.RequireFromString("100.00"),
		}},
	}
}

// =============================================================================
// INVOICE CONSTRAINTS
// =============================================================================

func TestStore_DuplicateInvoiceNumberRejected(t *testing.T) {
	// GIVEN: A saved invoice
	// WHEN: Saving another invoice with the same number
	// THEN: ErrDuplicateInvoiceNumber so the generator can retry

	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveInvoice(ctx, fixtureInvoice("INV2025110001")))

	err := store.SaveInvoice(ctx, fixtureInvoice("INV2025110001"))
	assert.ErrorIs(t, err, billing.ErrDuplicateInvoiceNumber)
	assert.True(t, billing.IsRetryable(err))
}

func TestStore_InvoiceRoundTripWithLines(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveInvoice(ctx, fixtureInvoice("INV2025110001")))

	loaded, err := store.GetInvoice(ctx, "INV2025110001")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "100.00", loaded.Total.StringFixed(2))
	require.Len(t, loaded.Lines, 1)
	assert.Equal(t, billing.SessionID("s-1"), loaded.Lines[0].SessionID)
	assert.Equal(t, "50.00", loaded.Lines[0].Rate.StringFixed(2))

	count, err := store.CountInvoicesWithPrefix(ctx, "INV202511")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.CountInvoicesWithPrefix(ctx, "INV202512")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// =============================================================================
// TRANSACTION BOUNDARY
// =============================================================================

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that saves an invoice and then fails
	// WHEN: The callback returns an error
	// THEN: Nothing is visible afterwards

	store := newStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s billing.Store) error {
		if err := s.SaveInvoice(ctx, fixtureInvoice("INV2025110001")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	loaded, err := store.GetInvoice(ctx, "INV2025110001")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStore_WithTxReadsItsOwnWrites(t *testing.T) {
	// The sequence counted inside the transaction must include rows
	// inserted earlier in the same transaction.

	store := newStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s billing.Store) error {
		if err := s.SaveInvoice(ctx, fixtureInvoice("INV2025110001")); err != nil {
			return err
		}
		count, err := s.CountInvoicesWithPrefix(ctx, "INV202511")
		if err != nil {
			return err
		}
		assert.Equal(t, 1, count)
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestStore_AccountRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	missing, err := store.GetAccount(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	lockedUntil := time.Date(2025, time.June, 1, 12, 30, 0, 0, time.UTC)
	acct := auth.Account{
		Email:          "user@example.com",
		PasswordHash:   "hash",
		Role:           "admin",
		FailedAttempts: -1,
		LockedUntil:    &lockedUntil,
	}
	require.NoError(t, store.SaveAccount(ctx, acct))

	loaded, err := store.GetAccount(ctx, "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "admin", loaded.Role)
	assert.Equal(t, -1, loaded.FailedAttempts)
	require.NotNil(t, loaded.LockedUntil)
	assert.True(t, loaded.LockedUntil.Equal(lockedUntil))

	// Upsert clears the lock
	acct.LockedUntil = nil
	acct.FailedAttempts = auth.AttemptCeiling
	require.NoError(t, store.SaveAccount(ctx, acct))

	loaded, err = store.GetAccount(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Nil(t, loaded.LockedUntil)
}

// =============================================================================
// SESSION QUERIES
// =============================================================================

func TestStore_ListUnpaidSessionsChecksBothSources(t *testing.T) {
	// GIVEN: One session flagged paid, one referenced by a paystub item
	//        with a stale flag, and one genuinely unpaid
	// WHEN: Listing unpaid sessions
	// THEN: Only the genuinely unpaid session comes back

	store := newStore(t)
	ctx := context.Background()
	day := billing.Date(2025, time.November, 3)

	mk := func(id string, start int, paid bool) {
		sess := billing.Session{
			ID:         billing.SessionID(id),
			EmployeeID: "emp-1",
			ClientID:   "client-1",
			Activity:   "ABA Therapy",
			Date:       day,
			Start:      billing.NewTimeOfDay(start, 0),
			End:        billing.NewTimeOfDay(start+1, 0),
			Duration:   decimal.NewFromInt(1),
			Paid:       paid,
		}
		require.NoError(t, store.SaveSession(ctx, sess))
	}
	mk("s-flagged", 9, true)
	mk("s-itemized", 11, false) // stale flag, but referenced by a stub item
	mk("s-open", 13, false)

	stub := billing.PayStub{
		ID:            "ps-1",
		EmployeeID:    "emp-1",
		PeriodStart:   day,
		PeriodEnd:     day,
		GeneratedDate: day,
		TotalHours:    decimal.NewFromInt(1),
		TotalAmount:   decimal.RequireFromString("20.00"),
		Items: []billing.PayStubItem{{
			SessionID: "s-itemized",
			ClientID:  "client-1",
			Rate:      decimal.RequireFromString("20.00"),
			Hours:     decimal.NewFromInt(1),
			Amount:    decimal.RequireFromString("20.00"),
		}},
	}
	require.NoError(t, store.SavePayStub(ctx, stub))

	unpaid, err := store.ListUnpaidSessions(ctx, "emp-1", day, day)
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, billing.SessionID("s-open"), unpaid[0].ID)
}
