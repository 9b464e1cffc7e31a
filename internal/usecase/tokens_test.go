package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
)

func TestLoginIssuesVerifiablePair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", "a long enough password")

	result, err := env.auth.Login(ctx, "alice", "a long enough password", nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	pair := result.Tokens
	if pair == nil {
		t.Fatal("expected a token pair")
	}

	access, err := env.tokens.VerifyToken(ctx, domain.TokenKindAccess, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if access.AudienceClaim() != domain.AudienceWeb {
		t.Fatalf("expected web audience, got %s", access.AudienceClaim())
	}

	refresh, err := env.tokens.VerifyToken(ctx, domain.TokenKindTemporary, pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify refresh token: %v", err)
	}
	if refresh.JTI() != pair.RefreshJTI {
		t.Fatalf("expected refresh JTI %s, got %s", pair.RefreshJTI, refresh.JTI())
	}
}

func TestRefreshRotatesOutOldToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", "a long enough password")

	result, err := env.auth.Login(ctx, "alice", "a long enough password", nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	oldPair := result.Tokens

	newPair, err := env.auth.Refresh(ctx, oldPair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if newPair.RefreshJTI == oldPair.RefreshJTI {
		t.Fatal("expected a fresh refresh JTI")
	}

	if _, err := env.tokens.VerifyToken(ctx, domain.TokenKindTemporary, newPair.RefreshToken); err != nil {
		t.Fatalf("verify rotated refresh token: %v", err)
	}

	// The rotated-out JTI must no longer verify even though its signature
	// remains valid.
	if _, err := env.tokens.VerifyToken(ctx, domain.TokenKindTemporary, oldPair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked for the old refresh token, got %v", err)
	}
}

func TestRevokedTokenFailsVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice", "a long enough password")

	result, err := env.auth.Login(ctx, "alice", "a long enough password", nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	pair := result.Tokens

	if err := env.tokens.RevokeToken(ctx, pair.AccessJTI, "test", time.Minute); err != nil {
		t.Fatalf("revoke access token: %v", err)
	}

	if _, err := env.tokens.VerifyToken(ctx, domain.TokenKindAccess, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestAccessTokenCapRaisesWarning(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t, "alice", "a long enough password")

	sec, err := env.security.GetByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("get security record: %v", err)
	}

	// Fill the access slots. Refresh slots stay below their cap because
	// every rotation-free issuance also mints one temporary token, so seed
	// access records directly beyond what logins could reach.
	for i := 0; i < env.cfg.MaxAccessTokens; i++ {
		record := domain.TokenRecord{
			JTI:       "seed-access-" + string(rune('a'+i)),
			UserID:    userID,
			Kind:      domain.TokenKindAccess,
			CreatedAt: env.clock().Unix(),
			ExpiresAt: env.clock().Add(8 * time.Minute).Unix(),
		}
		record.Audience, err = domain.AudienceValue(domain.AudienceWeb)
		if err != nil {
			t.Fatalf("build audience: %v", err)
		}
		if err := env.ledger.Insert(ctx, record); err != nil {
			t.Fatalf("seed ledger: %v", err)
		}
	}

	_, err = env.tokens.CreateTokens(ctx, sec, userID, "", nil)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	sec, err = env.security.GetByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("get security record: %v", err)
	}
	if sec.SecurityWarns != 1 {
		t.Fatalf("expected the cap breach to record a strike, got %d", sec.SecurityWarns)
	}
}

func TestRefreshTokenCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t, "alice", "a long enough password")

	for i := 0; i < env.cfg.MaxRefreshTokens; i++ {
		record := domain.TokenRecord{
			JTI:       "seed-refresh-" + string(rune('a'+i)),
			UserID:    userID,
			Kind:      domain.TokenKindTemporary,
			CreatedAt: env.clock().Unix(),
			ExpiresAt: env.clock().Add(15 * time.Minute).Unix(),
		}
		var err error
		record.Audience, err = domain.AudienceValue(domain.AudienceWeb)
		if err != nil {
			t.Fatalf("build audience: %v", err)
		}
		if err := env.ledger.Insert(ctx, record); err != nil {
			t.Fatalf("seed ledger: %v", err)
		}
	}

	sec, err := env.security.GetByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("get security record: %v", err)
	}

	_, err = env.tokens.CreateTokens(ctx, sec, userID, "", nil)
	var capErr *CapacityExceededError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityExceededError, got %v", err)
	}
	if capErr.Kind != domain.TokenKindTemporary {
		t.Fatalf("expected temporary kind, got %s", capErr.Kind)
	}

	// Unlike the access cap, the refresh cap does not record a strike.
	sec, err = env.security.GetByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("get security record: %v", err)
	}
	if sec.SecurityWarns != 0 {
		t.Fatalf("expected no strike, got %d", sec.SecurityWarns)
	}
}

func TestPruneIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t, "alice", "a long enough password")

	if _, err := env.auth.Login(ctx, "alice", "a long enough password", nil); err != nil {
		t.Fatalf("login: %v", err)
	}

	// Let the access token expire but keep the refresh token alive.
	env.advance(10 * time.Minute)

	first, err := env.ledger.Prune(ctx, userID, "", env.clock())
	if err != nil {
		t.Fatalf("first prune: %v", err)
	}
	if len(first.Removed) != 1 {
		t.Fatalf("expected one expired entry removed, got %d", len(first.Removed))
	}

	second, err := env.ledger.Prune(ctx, userID, "", env.clock())
	if err != nil {
		t.Fatalf("second prune: %v", err)
	}
	if len(second.Removed) != 0 {
		t.Fatalf("expected idempotent prune, got %d removals", len(second.Removed))
	}
	if len(second.Temporary) != 1 {
		t.Fatalf("expected the refresh token to survive, got %d", len(second.Temporary))
	}
}

func TestApplicationLoginRegistersClient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t, "alice", "a long enough password")

	descriptor := &ApplicationDescriptor{
		Name:     "alice-laptop",
		Type:     domain.ApplicationTypeNativeApp,
		Location: "Stuttgart",
	}
	result, err := env.auth.Login(ctx, "alice", "a long enough password", descriptor)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	app, err := env.apps.GetByUserAndName(ctx, userID, "alice-laptop")
	if err != nil {
		t.Fatalf("expected registered application: %v", err)
	}

	refresh, err := env.tokens.VerifyToken(ctx, domain.TokenKindApplication, result.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("verify application refresh token: %v", err)
	}
	if refresh.AudienceClaim() != app.ID {
		t.Fatalf("expected refresh audience %s, got %s", app.ID, refresh.AudienceClaim())
	}

	// A second login with the same descriptor reuses the record.
	if _, err := env.auth.Refresh(ctx, result.Tokens.RefreshToken); err != nil {
		t.Fatalf("refresh application session: %v", err)
	}
	again, err := env.auth.Login(ctx, "alice", "a long enough password", descriptor)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if again.Tokens == nil {
		t.Fatal("expected tokens")
	}
	secondApp, err := env.apps.GetByUserAndName(ctx, userID, "alice-laptop")
	if err != nil {
		t.Fatalf("lookup application: %v", err)
	}
	if secondApp.ID != app.ID {
		t.Fatal("expected the existing application record to be reused")
	}
}

func TestSecurityTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t, "alice", "a long enough password")

	token, err := env.tokens.IssueSecurityToken(ctx, userID, domain.SecurityReasonForgotPassword)
	if err != nil {
		t.Fatalf("issue security token: %v", err)
	}

	claims, err := env.tokens.ConsumeSecurityToken(ctx, token, domain.SecurityReasonForgotPassword)
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if claims.Subject != userID {
		t.Fatalf("expected subject %s, got %s", userID, claims.Subject)
	}

	if _, err := env.tokens.ConsumeSecurityToken(ctx, token, domain.SecurityReasonForgotPassword); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked on second consume, got %v", err)
	}
}

func TestSecurityTokenReasonMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t, "alice", "a long enough password")

	token, err := env.tokens.IssueSecurityToken(ctx, userID, domain.SecurityReasonLogin2FA)
	if err != nil {
		t.Fatalf("issue security token: %v", err)
	}

	if _, err := env.tokens.ConsumeSecurityToken(ctx, token, domain.SecurityReasonForgotPassword); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for wrong reason, got %v", err)
	}

	// The failed consume must not burn the token.
	if _, err := env.tokens.ConsumeSecurityToken(ctx, token, domain.SecurityReasonLogin2FA); err != nil {
		t.Fatalf("expected token to remain usable, got %v", err)
	}
}

func TestLogoutRevokesPresentedTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t, "alice", "a long enough password")

	result, err := env.auth.Login(ctx, "alice", "a long enough password", nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.auth.Logout(ctx, result.Tokens.RefreshToken, result.Tokens.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if _, err := env.tokens.VerifyToken(ctx, domain.TokenKindTemporary, result.Tokens.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked refresh token, got %v", err)
	}
	if env.ledger.count(userID) != 0 {
		t.Fatalf("expected empty ledger, got %d records", env.ledger.count(userID))
	}
}
