package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/port"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/config"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/logger"
)

// Lockout is the gate in front of every sensitive check. Failed checks
// accumulate strikes through RaiseWarning until the account locks; Check
// runs before the check itself and fails closed while a lock is active.
type Lockout struct {
	cfg       *config.AuthSettings
	security  port.SecurityRepository
	users     port.UserRepository
	publisher port.EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

// NewLockout constructs the lockout machine. The publisher may be nil.
func NewLockout(cfg *config.AuthSettings, security port.SecurityRepository, users port.UserRepository, publisher port.EventPublisher, log *zap.Logger) *Lockout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lockout{
		cfg:       cfg,
		security:  security,
		users:     users,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock for deterministic tests.
func (l *Lockout) WithClock(clock func() time.Time) {
	if clock != nil {
		l.now = clock
	}
}

// Check gates a sensitive operation against the account's lock state. An
// expired time lock is cleared in place (warnings reset to zero) so the
// caller proceeds with a clean record; an active lock rejects the operation.
func (l *Lockout) Check(ctx context.Context, sec *domain.AccountSecurity) error {
	if sec == nil {
		return fmt.Errorf("lockout check: security record required")
	}

	now := l.now()

	if sec.IsPermanentlyLocked() {
		return &LockedError{Permanent: true}
	}

	if sec.IsTimeLocked(now) {
		until := *sec.LockedUntil
		return &LockedError{Until: &until}
	}

	if sec.LockExpired(now) {
		if err := l.security.ClearLock(ctx, sec.UserID); err != nil {
			return fmt.Errorf("clear expired lock: %w", err)
		}
		sec.Locked = false
		sec.LockedUntil = nil
		sec.SecurityWarns = 0
	}

	return nil
}

// RaiseWarning records one strike against the account and aborts the
// triggering operation: below the threshold it returns a WarningError, at
// the threshold it locks the account and returns a LockedError. Raising a
// strike while a time lock is still active escalates to a permanent lock.
func (l *Lockout) RaiseWarning(ctx context.Context, sec *domain.AccountSecurity, reason string) error {
	if sec == nil {
		return fmt.Errorf("raise warning: security record required")
	}

	now := l.now()

	if sec.IsTimeLocked(now) {
		if err := l.security.SetLock(ctx, sec.UserID, nil); err != nil {
			return fmt.Errorf("escalate to permanent lock: %w", err)
		}
		sec.LockedUntil = nil
		l.log.Warn("account permanently locked",
			zap.String("user_id", sec.UserID),
			zap.String("reason", reason))
		l.publishLocked(ctx, sec.UserID, true, nil, now)
		return &LockedError{Permanent: true}
	}

	count, err := l.security.IncrementWarns(ctx, sec.UserID)
	if err != nil {
		return fmt.Errorf("increment security warns: %w", err)
	}
	sec.SecurityWarns = count

	if count >= l.cfg.MaxSecurityWarns {
		until := now.Add(l.cfg.LockDuration)
		if err := l.security.SetLock(ctx, sec.UserID, &until); err != nil {
			return fmt.Errorf("set time lock: %w", err)
		}
		sec.Locked = true
		sec.LockedUntil = &until
		l.log.Warn("account time-locked",
			zap.String("user_id", sec.UserID),
			zap.String("reason", reason),
			zap.Time("until", until))
		l.publishLocked(ctx, sec.UserID, false, &until, now)
		return &LockedError{Until: &until}
	}

	l.log.Info("security warning raised",
		zap.String("user_id", sec.UserID),
		zap.String("reason", reason),
		zap.Int("count", count),
		zap.Int("max", l.cfg.MaxSecurityWarns))

	return &WarningError{Count: count, Max: l.cfg.MaxSecurityWarns}
}

func (l *Lockout) publishLocked(ctx context.Context, userID string, permanent bool, until *time.Time, at time.Time) {
	if l.publisher == nil {
		return
	}

	email := ""
	if l.users != nil {
		if user, err := l.users.GetByID(ctx, userID); err == nil {
			email = user.Email
		}
	}

	event := domain.AccountLockedEvent{
		UserID:    userID,
		Email:     email,
		Permanent: permanent,
		Until:     until,
		LockedAt:  at,
	}
	if err := l.publisher.PublishAccountLocked(ctx, event); err != nil {
		l.log.Error("publish account locked event",
			zap.String("user_id", userID),
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err))
	}
}
