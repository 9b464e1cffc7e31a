package usecase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRaiseWarningCountsTowardLock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t, "alice", "a long enough password")

	for i := 1; i < env.cfg.MaxSecurityWarns; i++ {
		sec, err := env.security.GetByUserID(ctx, userID)
		if err != nil {
			t.Fatalf("get security record: %v", err)
		}

		err = env.lockout.RaiseWarning(ctx, sec, "test")
		var warn *WarningError
		if !errors.As(err, &warn) {
			t.Fatalf("expected WarningError on strike %d, got %v", i, err)
		}
		if warn.Count != i || warn.Max != env.cfg.MaxSecurityWarns {
			t.Fatalf("expected warning %d of %d, got %d of %d", i, env.cfg.MaxSecurityWarns, warn.Count, warn.Max)
		}
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatal("expected WarningError to unwrap to ErrInvalidCredentials")
		}
	}

	sec, err := env.security.GetByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("get security record: %v", err)
	}
	err = env.lockout.RaiseWarning(ctx, sec, "test")
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError on final strike, got %v", err)
	}
	if locked.Permanent {
		t.Fatal("expected a time lock, not permanent")
	}
	wantUntil := env.clock().Add(env.cfg.LockDuration)
	if locked.Until == nil || !locked.Until.Equal(wantUntil) {
		t.Fatalf("expected lock until %v, got %v", wantUntil, locked.Until)
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", "a long enough password")

	// Four prior strikes, one failure away from the threshold.
	for i := 0; i < 4; i++ {
		if _, err := env.auth.Login(ctx, "alice", "wrong password", nil); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}

	_, err := env.auth.Login(ctx, "alice", "wrong password", nil)
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError on fifth failure, got %v", err)
	}

	// One hour later the lock is still active, even with correct credentials.
	env.advance(time.Hour)
	if _, err := env.auth.Login(ctx, "alice", "a long enough password", nil); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked one hour in, got %v", err)
	}

	// Three hours after locking the window has elapsed: the lock self-heals
	// and login succeeds with warnings reset.
	env.advance(2 * time.Hour)
	result, err := env.auth.Login(ctx, "alice", "a long enough password", nil)
	if err != nil {
		t.Fatalf("expected login to succeed after lock expiry, got %v", err)
	}
	if result.Tokens == nil {
		t.Fatal("expected a token pair")
	}

	sec, err := env.security.GetByUserID(ctx, "user-alice")
	if err != nil {
		t.Fatalf("get security record: %v", err)
	}
	if sec.SecurityWarns != 0 || sec.Locked {
		t.Fatalf("expected cleared lock and zero warns, got warns=%d locked=%v", sec.SecurityWarns, sec.Locked)
	}
}

func TestStrikeDuringActiveLockEscalatesToPermanent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t, "alice", "a long enough password")

	until := env.clock().Add(env.cfg.LockDuration)
	if err := env.security.SetLock(ctx, userID, &until); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	sec, err := env.security.GetByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("get security record: %v", err)
	}

	err = env.lockout.RaiseWarning(ctx, sec, "test")
	var locked *LockedError
	if !errors.As(err, &locked) || !locked.Permanent {
		t.Fatalf("expected permanent LockedError, got %v", err)
	}

	// Permanent locks never self-heal.
	env.advance(100 * time.Hour)
	sec, err = env.security.GetByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("get security record: %v", err)
	}
	if err := env.lockout.Check(ctx, sec); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked for permanent lock, got %v", err)
	}
}
