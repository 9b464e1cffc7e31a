package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/port"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/config"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/security"
)

// RevocationStore caches revoked JTIs so verification can short-circuit
// before the ledger lookup. Implementations are best-effort; the ledger
// remains the authority.
type RevocationStore interface {
	MarkRevoked(ctx context.Context, jti string, reason string, ttl time.Duration) error
	MarkManyRevoked(ctx context.Context, jtis []string, reason string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, string, error)
}

// TokenPair is the result of a successful issuing login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessJTI    string
	RefreshJTI   string
	ExpiresAt    time.Time
}

// TokenService mints, verifies, and revokes signed tokens against the key
// manager and the ledger.
type TokenService struct {
	cfg         *config.AuthSettings
	codec       *security.TokenCodec
	ledger      port.TokenLedger
	lockout     *Lockout
	revocations RevocationStore
	log         *zap.Logger
	now         func() time.Time
}

// NewTokenService constructs a TokenService. revocations may be nil when no
// cache is deployed.
func NewTokenService(cfg *config.AuthSettings, codec *security.TokenCodec, ledger port.TokenLedger, lockout *Lockout, revocations RevocationStore, log *zap.Logger) *TokenService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenService{
		cfg:         cfg,
		codec:       codec,
		ledger:      ledger,
		lockout:     lockout,
		revocations: revocations,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests. The codec
// keeps its own clock; tests override both.
func (s *TokenService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

func categoryFor(kind domain.TokenKind) (security.KeyCategory, error) {
	switch kind {
	case domain.TokenKindAccess:
		return security.KeyCategoryAccess, nil
	case domain.TokenKindTemporary, domain.TokenKindApplication:
		return security.KeyCategoryRefresh, nil
	case domain.TokenKindSecurity:
		return security.KeyCategorySecurity, nil
	default:
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
}

// CreateTokens prunes the subject's ledger, enforces the per-kind caps, and
// mints a refresh+access pair sharing one audience. oldJTI names a refresh
// token being rotated out; app binds the pair to a registered application
// instead of the web audience. Ledger rows are written before the signed
// tokens are returned.
func (s *TokenService) CreateTokens(ctx context.Context, sec *domain.AccountSecurity, userID string, oldJTI string, app *domain.RegisteredApplication) (*TokenPair, error) {
	if err := s.lockout.Check(ctx, sec); err != nil {
		return nil, err
	}

	now := s.now()

	pruned, err := s.ledger.Prune(ctx, userID, oldJTI, now)
	if err != nil {
		return nil, fmt.Errorf("prune token ledger: %w", err)
	}

	if app != nil {
		if len(pruned.Application) >= s.cfg.MaxRefreshTokens {
			return nil, &CapacityExceededError{Kind: domain.TokenKindApplication}
		}
	} else if len(pruned.Temporary) >= s.cfg.MaxRefreshTokens {
		return nil, &CapacityExceededError{Kind: domain.TokenKindTemporary}
	}

	if len(pruned.Access) >= s.cfg.MaxAccessTokens {
		warnErr := s.lockout.RaiseWarning(ctx, sec, "access token cap reached")
		var locked *LockedError
		if errors.As(warnErr, &locked) {
			return nil, warnErr
		}
		return nil, &CapacityExceededError{Kind: domain.TokenKindAccess}
	}

	var (
		audience    domain.Audience
		refreshKind domain.TokenKind
		refreshTTL  time.Duration
	)
	if app != nil {
		audience, err = domain.AudienceApplication(app.ID)
		refreshKind = domain.TokenKindApplication
		refreshTTL = s.cfg.AppRefreshTokenTTL
	} else {
		audience, err = domain.AudienceValue(domain.AudienceWeb)
		refreshKind = domain.TokenKindTemporary
		refreshTTL = s.cfg.WebRefreshTokenTTL
	}
	if err != nil {
		return nil, fmt.Errorf("build token audience: %w", err)
	}

	refreshToken, refreshRecord, err := s.mint(security.KeyCategoryRefresh, userID, audience, refreshKind, refreshTTL, now)
	if err != nil {
		return nil, err
	}
	accessToken, accessRecord, err := s.mint(security.KeyCategoryAccess, userID, audience, domain.TokenKindAccess, s.cfg.AccessTokenTTL, now)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Insert(ctx, refreshRecord); err != nil {
		return nil, fmt.Errorf("record refresh token: %w", err)
	}
	if err := s.ledger.Insert(ctx, accessRecord); err != nil {
		return nil, fmt.Errorf("record access token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessJTI:    accessRecord.JTI,
		RefreshJTI:   refreshRecord.JTI,
		ExpiresAt:    time.Unix(accessRecord.ExpiresAt, 0).UTC(),
	}, nil
}

func (s *TokenService) mint(category security.KeyCategory, userID string, audience domain.Audience, kind domain.TokenKind, ttl time.Duration, now time.Time) (string, domain.TokenRecord, error) {
	claims, err := s.codec.NewClaims(security.ClaimOptions{
		Subject:  userID,
		Audience: audience.String(),
		TTL:      ttl,
		IssuedAt: now,
		JTI:      uuid.NewString(),
	})
	if err != nil {
		return "", domain.TokenRecord{}, fmt.Errorf("build %s claims: %w", kind, err)
	}

	signed, err := s.codec.Sign(category, claims)
	if err != nil {
		return "", domain.TokenRecord{}, err
	}

	record := domain.TokenRecord{
		JTI:       claims.JTI(),
		UserID:    userID,
		Kind:      kind,
		Audience:  audience,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}

	return signed, record, nil
}

// VerifyToken decodes the token with the kind's public key and confirms the
// JTI is still live in the ledger for the claimed subject and audience.
// Ledger absence means revoked no matter how valid the signature is.
func (s *TokenService) VerifyToken(ctx context.Context, kind domain.TokenKind, token string) (*security.TokenClaims, error) {
	category, err := categoryFor(kind)
	if err != nil {
		return nil, err
	}

	claims, err := s.codec.Parse(category, token)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenMalformed
		}
	}

	if s.revocations != nil {
		revoked, _, cacheErr := s.revocations.IsRevoked(ctx, claims.JTI())
		if cacheErr != nil {
			s.log.Warn("revocation cache lookup failed", zap.Error(cacheErr))
		} else if revoked {
			return nil, ErrTokenRevoked
		}
	}

	live, err := s.ledger.Exists(ctx, claims.Subject, claims.JTI(), claims.AudienceClaim())
	if err != nil {
		return nil, fmt.Errorf("check token ledger: %w", err)
	}
	if !live {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// IssueSecurityToken mints a short-lived single-purpose token binding a
// multi-step flow to the subject. reason becomes the audience claim.
func (s *TokenService) IssueSecurityToken(ctx context.Context, userID, reason string) (string, error) {
	audience, err := domain.AudienceValue(reason)
	if err != nil {
		return "", fmt.Errorf("build security audience: %w", err)
	}

	now := s.now()
	signed, record, err := s.mint(security.KeyCategorySecurity, userID, audience, domain.TokenKindSecurity, s.cfg.SecurityTokenTTL, now)
	if err != nil {
		return "", err
	}

	if err := s.ledger.Insert(ctx, record); err != nil {
		return "", fmt.Errorf("record security token: %w", err)
	}

	return signed, nil
}

// ConsumeSecurityToken verifies a security token whose audience starts with
// the expected reason and revokes it so it can never be used twice. The
// returned claims carry the full audience for callers that need the suffix.
func (s *TokenService) ConsumeSecurityToken(ctx context.Context, token, reason string) (*security.TokenClaims, error) {
	claims, err := s.VerifyToken(ctx, domain.TokenKindSecurity, token)
	if err != nil {
		return nil, err
	}

	aud := claims.AudienceClaim()
	if aud != reason && !securityReasonMatches(aud, reason) {
		return nil, ErrTokenMalformed
	}

	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.RevokeToken(ctx, claims.JTI(), "security token consumed", remaining); err != nil {
		return nil, err
	}

	return claims, nil
}

func securityReasonMatches(audience, reason string) bool {
	return len(audience) > len(reason)+len(domain.SecurityReasonSeparator) &&
		audience[:len(reason)] == reason &&
		audience[len(reason):len(reason)+len(domain.SecurityReasonSeparator)] == domain.SecurityReasonSeparator
}

// RevokeToken deletes one JTI from the ledger and shadows it in the cache.
func (s *TokenService) RevokeToken(ctx context.Context, jti, reason string, remaining time.Duration) error {
	if err := s.ledger.Delete(ctx, []string{jti}); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	s.cacheRevocation(ctx, []string{jti}, reason, remaining)
	return nil
}

// RevokeAllTokens deletes every token for the user, optionally narrowed by
// kind and/or audience claim. Used on logout-everywhere, account deletion,
// and 2FA state changes.
func (s *TokenService) RevokeAllTokens(ctx context.Context, userID string, kind *domain.TokenKind, audience *string) error {
	pruned, err := s.ledger.Prune(ctx, userID, "", s.now())
	if err != nil {
		return fmt.Errorf("prune before revoke all: %w", err)
	}

	if err := s.ledger.DeleteAll(ctx, userID, kind, audience); err != nil {
		return fmt.Errorf("revoke all tokens: %w", err)
	}

	var jtis []string
	for _, set := range [][]domain.TokenRecord{pruned.Application, pruned.Temporary, pruned.Access} {
		for _, record := range set {
			if kind != nil && record.Kind != *kind {
				continue
			}
			if audience != nil && record.Audience.String() != *audience {
				continue
			}
			jtis = append(jtis, record.JTI)
		}
	}
	s.cacheRevocation(ctx, jtis, "revoke all", s.cfg.AppRefreshTokenTTL)

	return nil
}

func (s *TokenService) cacheRevocation(ctx context.Context, jtis []string, reason string, ttl time.Duration) {
	if s.revocations == nil || len(jtis) == 0 {
		return
	}
	if ttl <= 0 {
		return
	}
	if err := s.revocations.MarkManyRevoked(ctx, jtis, reason, ttl); err != nil {
		s.log.Warn("revocation cache write failed", zap.Error(err))
	}
}
