package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbrook/clinic-engine/auth"
)

func activeAccount() *auth.Account {
	return &auth.Account{
		Email:          "user@example.com",
		Role:           "user",
		FailedAttempts: auth.AttemptCeiling,
	}
}

// =============================================================================
// COUNTDOWN AND ESCALATION
// =============================================================================

func TestAccount_ThreeFailuresLockFifteenMinutes(t *testing.T) {
	// GIVEN: A fresh account with the full attempt ceiling
	// WHEN: Three consecutive failures land
	// THEN: The third locks the account for the base 15 minutes

	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	a := activeAccount()

	assert.False(t, a.RecordFailure(now))
	assert.False(t, a.RecordFailure(now))
	assert.Equal(t, auth.StateActive, a.State(now))

	assert.True(t, a.RecordFailure(now))
	assert.Equal(t, auth.StateLocked, a.State(now))
	assert.Equal(t, 15*time.Minute, a.LockRemaining(now))
}

func TestAccount_EscalationExtendsLock(t *testing.T) {
	// GIVEN: An account already at the lock threshold
	// WHEN: Failures keep landing past it
	// THEN: Each failure extends the lock by another 15 minutes

	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	a := activeAccount()

	for i := 0; i < 3; i++ {
		a.RecordFailure(now)
	}
	require.Equal(t, 15*time.Minute, a.LockRemaining(now))

	a.RecordFailure(now) // counter at -1
	assert.Equal(t, 30*time.Minute, a.LockRemaining(now))

	a.RecordFailure(now) // counter at -2
	assert.Equal(t, 45*time.Minute, a.LockRemaining(now))
}

func TestAccount_LockExpiresOnItsOwn(t *testing.T) {
	// GIVEN: An account locked for 15 minutes
	// WHEN: The clock passes the expiry
	// THEN: The account is active again without any unlock call

	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	a := activeAccount()
	for i := 0; i < 3; i++ {
		a.RecordFailure(now)
	}

	assert.Equal(t, auth.StateLocked, a.State(now.Add(14*time.Minute)))
	assert.Equal(t, auth.StateActive, a.State(now.Add(16*time.Minute)))
}

func TestAccount_SuccessResetsCountdown(t *testing.T) {
	// GIVEN: An account two failures down
	// WHEN: A successful authentication lands
	// THEN: The countdown is back at the ceiling and no lock is pending

	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	a := activeAccount()
	a.RecordFailure(now)
	a.RecordFailure(now)

	a.RecordSuccess()

	assert.Equal(t, auth.AttemptCeiling, a.FailedAttempts)
	assert.Equal(t, auth.StateActive, a.State(now))

	// The full ceiling applies again
	assert.False(t, a.RecordFailure(now))
	assert.False(t, a.RecordFailure(now))
	assert.True(t, a.RecordFailure(now))
}

// =============================================================================
// ADMINISTRATIVE LOCK
// =============================================================================

func TestAccount_AdminLockNeverExpires(t *testing.T) {
	// GIVEN: An administratively locked account
	// WHEN: Arbitrary time passes
	// THEN: Still disabled; only AdminUnlock releases it

	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	a := activeAccount()
	a.AdminLock()

	assert.Equal(t, auth.StateDisabled, a.State(now))
	assert.Equal(t, auth.StateDisabled, a.State(now.AddDate(10, 0, 0)))
	assert.Equal(t, auth.DisabledSentinel, a.FailedAttempts)

	a.AdminUnlock()
	assert.Equal(t, auth.StateActive, a.State(now))
	assert.Equal(t, auth.AttemptCeiling, a.FailedAttempts)
}

func TestAccount_OrganicEscalationIsNotDisabled(t *testing.T) {
	// GIVEN: Enough organic failures to drive the counter to the disabled
	//        sentinel value
	// WHEN: Reading state
	// THEN: The account is merely locked, and the lock still expires;
	//       disabled is reserved for administrative locks

	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	a := activeAccount()
	for i := 0; i < 5; i++ {
		a.RecordFailure(now)
	}
	require.Equal(t, auth.DisabledSentinel, a.FailedAttempts)

	assert.Equal(t, auth.StateLocked, a.State(now))
	assert.Equal(t, auth.StateActive, a.State(now.Add(46*time.Minute)))
}
