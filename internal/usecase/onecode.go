package usecase

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/port"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/config"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/security"
)

const simpleOTPLength = 6

// OneCodeEngine manages the single-slot numeric code stored on the security
// record. Each new request overwrites the slot; verification requires an
// exact match and an unexpired code.
type OneCodeEngine struct {
	cfg      *config.AuthSettings
	security port.SecurityRepository
	lockout  *Lockout
	now      func() time.Time
}

// NewOneCodeEngine constructs a OneCodeEngine.
func NewOneCodeEngine(cfg *config.AuthSettings, securityRepo port.SecurityRepository, lockout *Lockout) *OneCodeEngine {
	return &OneCodeEngine{
		cfg:      cfg,
		security: securityRepo,
		lockout:  lockout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine clock for deterministic tests.
func (e *OneCodeEngine) WithClock(clock func() time.Time) {
	if clock != nil {
		e.now = clock
	}
}

// Issue generates a fresh 6-digit code, stores it in the slot, and returns
// the plaintext code with its expiry for the notification path.
func (e *OneCodeEngine) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	code, err := security.GenerateNumericCode(simpleOTPLength)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate one-time code: %w", err)
	}

	expiresAt := e.now().Add(e.cfg.SimpleOTPTTL)
	slot := domain.EncodeSimpleOTP(code, expiresAt)
	if err := e.security.SetSimpleOTP(ctx, userID, &slot); err != nil {
		return "", time.Time{}, fmt.Errorf("store one-time code: %w", err)
	}

	return code, expiresAt, nil
}

// Verify checks the submitted code against the slot and clears the slot on
// success. Mismatches and expired codes raise a strike.
func (e *OneCodeEngine) Verify(ctx context.Context, sec *domain.AccountSecurity, submitted string) error {
	if err := e.lockout.Check(ctx, sec); err != nil {
		return err
	}

	submitted = strings.TrimSpace(submitted)
	if submitted == "" {
		return e.lockout.RaiseWarning(ctx, sec, "empty one-time code")
	}

	var slot string
	if sec.SimpleOTP != nil {
		slot = *sec.SimpleOTP
	}
	code, expiresAt, ok := domain.DecodeSimpleOTP(slot)
	if !ok {
		return e.lockout.RaiseWarning(ctx, sec, "no one-time code pending")
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(submitted)) != 1 {
		return e.lockout.RaiseWarning(ctx, sec, "one-time code mismatch")
	}
	if !expiresAt.After(e.now()) {
		return e.lockout.RaiseWarning(ctx, sec, "one-time code expired")
	}

	if err := e.security.SetSimpleOTP(ctx, sec.UserID, nil); err != nil {
		return fmt.Errorf("clear one-time code: %w", err)
	}
	sec.SimpleOTP = nil

	return nil
}
