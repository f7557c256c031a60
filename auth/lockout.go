/*
Package auth guards the authentication boundary.

PURPOSE:
  Tracks authentication failures per account and escalates lockout
  duration, caps brute-force attempts, and handles account activation and
  administrative lock/unlock. Authentication is single-node and low-volume;
  this is deliberately not a distributed rate limiter.

KEY CONCEPTS IN THIS FILE (lockout.go):
  - The failed-attempt counter counts DOWN from a ceiling (default 3).
    Reaching zero or below locks the account.
  - Lockout duration escalates: 15 minutes times (1 + |counter|), so each
    failure past the threshold extends the lock.
  - Administrative lock pushes LockedUntil to a far-future horizon and sets
    the counter to a disabled sentinel. That state requires an explicit
    administrative unlock; expiry never releases it.

SEE ALSO:
  - service.go: Login/activation flow driving these transitions
*/
package auth

import (
	"time"
)

const (
	// AttemptCeiling is where the failure countdown starts and what a
	// successful login or administrative unlock resets it to.
	AttemptCeiling = 3

	// DisabledSentinel marks an administratively locked or never-activated
	// account. Distinct from ordinary countdown values by the far-future
	// LockedUntil written alongside it.
	DisabledSentinel = -2

	// lockoutStep is the base lockout duration at the threshold.
	lockoutStep = 15 * time.Minute
)

// adminLockHorizon is the LockedUntil value for administrative locks. An
// organically escalated lock can never reach it.
var adminLockHorizon = time.Date(9999, time.January, 1, 0, 0, 0, 0, time.UTC)

// =============================================================================
// ACCOUNT STATE
// =============================================================================

type AccountState int

const (
	StateActive AccountState = iota
	StateLocked
	StateDisabled
)

func (s AccountState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateLocked:
		return "locked"
	default:
		return "disabled"
	}
}

// Account is the authentication-relevant slice of a user record.
type Account struct {
	Email          string
	PasswordHash   string
	Role           string
	ActivationKey  string // non-empty = registration not completed
	FailedAttempts int
	LockedUntil    *time.Time
}

// State reports the account's lockout state as of now.
func (a *Account) State(now time.Time) AccountState {
	if a.LockedUntil == nil {
		return StateActive
	}
	if !a.LockedUntil.Before(adminLockHorizon) {
		return StateDisabled
	}
	if a.LockedUntil.After(now) {
		return StateLocked
	}
	return StateActive
}

// LockRemaining returns how long until an ordinary lock expires. Zero when
// not locked.
func (a *Account) LockRemaining(now time.Time) time.Duration {
	if a.State(now) != StateLocked {
		return 0
	}
	return a.LockedUntil.Sub(now)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// RecordFailure applies one failed authentication attempt. Returns true if
// the account is now locked.
func (a *Account) RecordFailure(now time.Time) bool {
	a.FailedAttempts--
	if a.FailedAttempts > 0 {
		return false
	}
	// Escalate: 15m at the threshold, +15m per additional failure.
	over := a.FailedAttempts
	if over < 0 {
		over = -over
	}
	until := now.Add(lockoutStep * time.Duration(1+over))
	a.LockedUntil = &until
	return true
}

// RecordSuccess resets the countdown after a successful authentication.
func (a *Account) RecordSuccess() {
	a.FailedAttempts = AttemptCeiling
	a.LockedUntil = nil
}

// AdminLock disables the account until an administrator unlocks it.
func (a *Account) AdminLock() {
	horizon := adminLockHorizon
	a.LockedUntil = &horizon
	a.FailedAttempts = DisabledSentinel
}

// AdminUnlock clears any lock and restores the countdown ceiling.
func (a *Account) AdminUnlock() {
	a.LockedUntil = nil
	a.FailedAttempts = AttemptCeiling
}
