package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
)

var (
	// ErrInvalidCredentials indicates a failed password, OTP, or backup-code
	// check. Callers never learn which factor failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the account is time-locked or permanently locked.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountNotVerified indicates the account has not completed email verification.
	ErrAccountNotVerified = errors.New("account not verified")
	// ErrTokenExpired indicates the token's exp claim has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked indicates a cryptographically valid token whose JTI is
	// absent from the ledger.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenMalformed indicates a structural or signature failure.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrCapacityExceeded indicates too many live tokens of a kind.
	ErrCapacityExceeded = errors.New("token capacity exceeded")
	// ErrAlreadyInProgress indicates 2FA activation was re-entered while a
	// prior activation is still awaiting its first verification.
	ErrAlreadyInProgress = errors.New("activation already in progress")
	// ErrConflictState indicates 2FA was already in the state the caller
	// tried to move it into.
	ErrConflictState = errors.New("conflicting two-factor state")
	// ErrUserExists indicates the username or email is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound indicates no account matches the supplied identifier.
	ErrUserNotFound = errors.New("user not found")
)

// WarningError reports a security strike: the failing check was recorded
// against the account and the caller sees how many strikes remain.
type WarningError struct {
	Count int
	Max   int
}

func (e *WarningError) Error() string {
	return fmt.Sprintf("invalid credentials: warning %d of %d", e.Count, e.Max)
}

// Unwrap lets callers match errors.Is(err, ErrInvalidCredentials).
func (e *WarningError) Unwrap() error {
	return ErrInvalidCredentials
}

// LockedError reports an active account lock. Until is nil for permanent locks.
type LockedError struct {
	Until     *time.Time
	Permanent bool
}

func (e *LockedError) Error() string {
	if e.Permanent {
		return "account permanently locked"
	}
	if e.Until != nil {
		return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
	}
	return "account locked"
}

// Unwrap lets callers match errors.Is(err, ErrAccountLocked).
func (e *LockedError) Unwrap() error {
	return ErrAccountLocked
}

// CapacityExceededError reports which token kind hit its concurrency cap.
type CapacityExceededError struct {
	Kind domain.TokenKind
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("too many live %s tokens", e.Kind)
}

// Unwrap lets callers match errors.Is(err, ErrCapacityExceeded).
func (e *CapacityExceededError) Unwrap() error {
	return ErrCapacityExceeded
}
