/*
service.go - Login and activation flow

PURPOSE:
  Drives the lockout state machine around credential checks. The order of
  checks matters: lock state is evaluated BEFORE the password, so a locked
  account rejects attempts regardless of password correctness and reports
  the remaining time.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrAccountNotFound  = errors.New("account not registered")
	ErrNotActivated     = errors.New("account not activated")
	ErrAccountDisabled  = errors.New("account disabled, contact administrator")
	ErrBadCredentials   = errors.New("incorrect email or password")
	ErrBadActivationKey = errors.New("incorrect activation key")
)

// LockedError reports an attempt against a locked account.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %s", e.Remaining.Round(time.Second))
}

// =============================================================================
// STORE
// =============================================================================

// AccountStore persists authentication state.
type AccountStore interface {
	GetAccount(ctx context.Context, email string) (*Account, error)
	SaveAccount(ctx context.Context, a Account) error
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Accounts AccountStore
	Secret   []byte
	TokenTTL time.Duration
	Now      func() time.Time // nil = time.Now
}

func NewService(accounts AccountStore, secret []byte, ttl time.Duration) *Service {
	return &Service{Accounts: accounts, Secret: secret, TokenTTL: ttl}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Login authenticates an account and returns a session token. Failures
// decrement the attempt countdown and may lock the account; successes
// reset it.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	acct, err := s.Accounts.GetAccount(ctx, email)
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", ErrAccountNotFound
	}
	if acct.ActivationKey != "" {
		return "", ErrNotActivated
	}

	now := s.now()
	switch acct.State(now) {
	case StateDisabled:
		return "", ErrAccountDisabled
	case StateLocked:
		return "", &LockedError{Remaining: acct.LockRemaining(now)}
	}

	if !CheckPassword(acct.PasswordHash, password) {
		acct.RecordFailure(now)
		if err := s.Accounts.SaveAccount(ctx, *acct); err != nil {
			return "", err
		}
		if acct.State(now) == StateLocked {
			return "", &LockedError{Remaining: acct.LockRemaining(now)}
		}
		return "", ErrBadCredentials
	}

	acct.RecordSuccess()
	if err := s.Accounts.SaveAccount(ctx, *acct); err != nil {
		return "", err
	}
	return GenerateToken(acct.Email, acct.Role, s.Secret, s.TokenTTL)
}

// Activate completes registration: the activation key handed out by an
// administrator is exchanged for a password, and the countdown starts at
// the ceiling.
func (s *Service) Activate(ctx context.Context, email, key, password string) error {
	acct, err := s.Accounts.GetAccount(ctx, email)
	if err != nil {
		return err
	}
	if acct == nil {
		return ErrAccountNotFound
	}
	if acct.ActivationKey == "" || acct.ActivationKey != key {
		return ErrBadActivationKey
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	acct.PasswordHash = hash
	acct.ActivationKey = ""
	acct.AdminUnlock()
	return s.Accounts.SaveAccount(ctx, *acct)
}

// Lock administratively disables an account.
func (s *Service) Lock(ctx context.Context, email string) error {
	acct, err := s.Accounts.GetAccount(ctx, email)
	if err != nil {
		return err
	}
	if acct == nil {
		return ErrAccountNotFound
	}
	acct.AdminLock()
	return s.Accounts.SaveAccount(ctx, *acct)
}

// Unlock clears any lock and restores the attempt ceiling.
func (s *Service) Unlock(ctx context.Context, email string) error {
	acct, err := s.Accounts.GetAccount(ctx, email)
	if err != nil {
		return err
	}
	if acct == nil {
		return ErrAccountNotFound
	}
	acct.AdminUnlock()
	return s.Accounts.SaveAccount(ctx, *acct)
}

// ResetPassword force-sets a password and unlocks the account.
// Administrative recovery path.
func (s *Service) ResetPassword(ctx context.Context, email, password string) error {
	acct, err := s.Accounts.GetAccount(ctx, email)
	if err != nil {
		return err
	}
	if acct == nil {
		return ErrAccountNotFound
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	acct.PasswordHash = hash
	acct.AdminUnlock()
	return s.Accounts.SaveAccount(ctx, *acct)
}
