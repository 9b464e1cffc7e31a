package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/port"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/config"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/security"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/repository"
)

// ApplicationDescriptor identifies a native client at login. Web logins
// carry no descriptor and fall back to the shared web audience.
type ApplicationDescriptor struct {
	Name     string
	Type     domain.ApplicationType
	Location string
}

// LoginResult is either a full token pair or, for 2FA-enabled accounts, a
// security token deferring to the challenge step.
type LoginResult struct {
	Tokens            *TokenPair
	TwoFactorRequired bool
	SecurityToken     string
}

// AuthService orchestrates login, the 2FA challenge handoff, refresh
// rotation, and logout.
type AuthService struct {
	cfg       *config.AuthSettings
	users     port.UserRepository
	security  port.SecurityRepository
	apps      port.ApplicationRepository
	tokens    *TokenService
	twofactor *TwoFactorService
	lockout   *Lockout
	log       *zap.Logger
	now       func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	cfg *config.AuthSettings,
	users port.UserRepository,
	securityRepo port.SecurityRepository,
	apps port.ApplicationRepository,
	tokens *TokenService,
	twofactor *TwoFactorService,
	lockout *Lockout,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		cfg:       cfg,
		users:     users,
		security:  securityRepo,
		apps:      apps,
		tokens:    tokens,
		twofactor: twofactor,
		lockout:   lockout,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Login authenticates the identifier/password pair. Accounts with 2FA on
// receive a security token binding the challenge step instead of session
// tokens; the application descriptor, when present, binds the session to a
// registered native client.
func (s *AuthService) Login(ctx context.Context, identifier, password string, descriptor *ApplicationDescriptor) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	sec, err := s.security.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup security record: %w", err)
	}
	if err := s.lockout.Check(ctx, sec); err != nil {
		return nil, err
	}

	ok, err := security.VerifyPassword(password, sec.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.lockout.RaiseWarning(ctx, sec, "invalid password")
	}

	if !sec.Verified {
		return nil, ErrAccountNotVerified
	}

	app, err := s.resolveApplication(ctx, user.ID, descriptor)
	if err != nil {
		return nil, err
	}

	if sec.TwoFactorEnabled {
		reason := domain.SecurityReasonLogin2FA
		if app != nil {
			reason += domain.SecurityReasonSeparator + app.ID
		}
		token, err := s.tokens.IssueSecurityToken(ctx, user.ID, reason)
		if err != nil {
			return nil, err
		}
		return &LoginResult{TwoFactorRequired: true, SecurityToken: token}, nil
	}

	pair, err := s.tokens.CreateTokens(ctx, sec, user.ID, "", app)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		s.log.Warn("update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	return &LoginResult{Tokens: pair}, nil
}

// CompleteTwoFactorLogin exchanges a login security token plus a valid TOTP
// code for session tokens. The security token is consumed on success and a
// failed code raises a strike like any other credential failure.
func (s *AuthService) CompleteTwoFactorLogin(ctx context.Context, securityToken, code string) (*TokenPair, error) {
	claims, err := s.tokens.VerifyToken(ctx, domain.TokenKindSecurity, securityToken)
	if err != nil {
		return nil, err
	}

	aud := claims.AudienceClaim()
	if aud != domain.SecurityReasonLogin2FA && !strings.HasPrefix(aud, domain.SecurityReasonLogin2FA+domain.SecurityReasonSeparator) {
		return nil, ErrTokenMalformed
	}

	userID := claims.Subject
	if err := s.twofactor.Verify(ctx, userID, code); err != nil {
		return nil, err
	}

	if _, err := s.tokens.ConsumeSecurityToken(ctx, securityToken, domain.SecurityReasonLogin2FA); err != nil {
		return nil, err
	}

	var app *domain.RegisteredApplication
	if suffix, okApp := strings.CutPrefix(aud, domain.SecurityReasonLogin2FA+domain.SecurityReasonSeparator); okApp {
		app, err = s.apps.GetByID(ctx, suffix)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrTokenMalformed
			}
			return nil, fmt.Errorf("lookup application: %w", err)
		}
	}

	sec, err := s.security.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup security record: %w", err)
	}

	pair, err := s.tokens.CreateTokens(ctx, sec, userID, "", app)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, userID, s.now()); err != nil {
		s.log.Warn("update last login", zap.String("user_id", userID), zap.Error(err))
	}

	return pair, nil
}

// Refresh rotates a refresh token: the presented JTI is pruned out and a
// fresh pair is issued under the same audience.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	kind := domain.TokenKindTemporary
	claims, err := s.tokens.VerifyToken(ctx, kind, refreshToken)
	if err != nil {
		return nil, err
	}

	var app *domain.RegisteredApplication
	if claims.AudienceClaim() != domain.AudienceWeb {
		app, err = s.apps.GetByID(ctx, claims.AudienceClaim())
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrTokenRevoked
			}
			return nil, fmt.Errorf("lookup application: %w", err)
		}
	}

	sec, err := s.security.GetByUserID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("lookup security record: %w", err)
	}

	return s.tokens.CreateTokens(ctx, sec, claims.Subject, claims.JTI(), app)
}

// Logout revokes the presented refresh token and, when supplied, the
// matching access token. Expired tokens are treated as already gone.
func (s *AuthService) Logout(ctx context.Context, refreshToken, accessToken string) error {
	var jtis []string

	if claims, err := s.tokens.VerifyToken(ctx, domain.TokenKindTemporary, refreshToken); err == nil {
		jtis = append(jtis, claims.JTI())
	} else if !errors.Is(err, ErrTokenExpired) && !errors.Is(err, ErrTokenRevoked) {
		return err
	}

	if accessToken != "" {
		if claims, err := s.tokens.VerifyToken(ctx, domain.TokenKindAccess, accessToken); err == nil {
			jtis = append(jtis, claims.JTI())
		}
	}

	if len(jtis) == 0 {
		return nil
	}

	if err := s.tokens.ledger.Delete(ctx, jtis); err != nil {
		return fmt.Errorf("revoke session tokens: %w", err)
	}
	s.tokens.cacheRevocation(ctx, jtis, "logout", s.cfg.AppRefreshTokenTTL)

	return nil
}

// LogoutAll revokes every live token the account holds.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	return s.tokens.RevokeAllTokens(ctx, userID, nil, nil)
}

func (s *AuthService) resolveApplication(ctx context.Context, userID string, descriptor *ApplicationDescriptor) (*domain.RegisteredApplication, error) {
	if descriptor == nil {
		return nil, nil
	}

	name := strings.TrimSpace(descriptor.Name)
	if name == "" {
		return nil, fmt.Errorf("application descriptor: name is required")
	}

	now := s.now()

	existing, err := s.apps.GetByUserAndName(ctx, userID, name)
	if err == nil {
		if descriptor.Location != "" {
			if err := s.apps.UpdateLastLocation(ctx, existing.ID, descriptor.Location, now); err != nil {
				s.log.Warn("update application location", zap.String("application_id", existing.ID), zap.Error(err))
			}
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup application: %w", err)
	}

	app := domain.RegisteredApplication{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		Type:         descriptor.Type,
		LastLocation: descriptor.Location,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.apps.Create(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return s.apps.GetByUserAndName(ctx, userID, name)
		}
		return nil, fmt.Errorf("register application: %w", err)
	}

	return &app, nil
}
