package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/port"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/logger"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/security"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/repository"
)

// PasswordResetService drives the forgot/reset flow: a mailed one-time code
// bound to a short-lived security token, followed by a full credential
// rotation.
type PasswordResetService struct {
	users     port.UserRepository
	security  port.SecurityRepository
	onecode   *OneCodeEngine
	tokens    *TokenService
	lockout   *Lockout
	validator *security.PasswordValidator
	publisher port.EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService. publisher may be nil.
func NewPasswordResetService(
	users port.UserRepository,
	securityRepo port.SecurityRepository,
	onecode *OneCodeEngine,
	tokens *TokenService,
	lockout *Lockout,
	validator *security.PasswordValidator,
	publisher port.EventPublisher,
	log *zap.Logger,
) *PasswordResetService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PasswordResetService{
		users:     users,
		security:  securityRepo,
		onecode:   onecode,
		tokens:    tokens,
		lockout:   lockout,
		validator: validator,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *PasswordResetService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Forgot starts a reset: a one-time code is mailed and a security token
// binding the flow to the account is returned to the caller.
func (s *PasswordResetService) Forgot(ctx context.Context, identifier string) (string, error) {
	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	sec, err := s.security.GetByUserID(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("lookup security record: %w", err)
	}
	if err := s.lockout.Check(ctx, sec); err != nil {
		return "", err
	}

	code, expiresAt, err := s.onecode.Issue(ctx, user.ID)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.IssueSecurityToken(ctx, user.ID, domain.SecurityReasonForgotPassword)
	if err != nil {
		return "", err
	}

	s.publishResetRequested(ctx, *user, code, expiresAt)

	return token, nil
}

// Reset completes the flow: consumes the security token, checks the mailed
// code, replaces the password hash, and revokes every live session.
func (s *PasswordResetService) Reset(ctx context.Context, securityToken, code, newPassword string) error {
	claims, err := s.tokens.ConsumeSecurityToken(ctx, securityToken, domain.SecurityReasonForgotPassword)
	if err != nil {
		return err
	}
	userID := claims.Subject

	sec, err := s.security.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup security record: %w", err)
	}

	if err := s.onecode.Verify(ctx, sec, code); err != nil {
		return err
	}

	if err := s.validator.Validate(newPassword); err != nil {
		return err
	}
	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.security.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}

	if err := s.tokens.RevokeAllTokens(ctx, userID, nil, nil); err != nil {
		return err
	}

	s.publishPasswordChanged(ctx, userID)

	return nil
}

func (s *PasswordResetService) publishResetRequested(ctx context.Context, user domain.User, code string, expiresAt time.Time) {
	if s.publisher == nil {
		return
	}

	event := domain.PasswordResetRequestedEvent{
		UserID:    user.ID,
		Email:     user.Email,
		Code:      code,
		ExpiresAt: expiresAt,
		IssuedAt:  s.now(),
	}
	if err := s.publisher.PublishPasswordResetRequested(ctx, event); err != nil {
		s.log.Error("publish password reset event",
			zap.String("user_id", user.ID),
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err))
	}
}

func (s *PasswordResetService) publishPasswordChanged(ctx context.Context, userID string) {
	if s.publisher == nil {
		return
	}

	email := ""
	if user, err := s.users.GetByID(ctx, userID); err == nil {
		email = user.Email
	}

	event := domain.PasswordChangedEvent{UserID: userID, Email: email, ChangedAt: s.now()}
	if err := s.publisher.PublishPasswordChanged(ctx, event); err != nil {
		s.log.Error("publish password changed event",
			zap.String("user_id", userID),
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err))
	}
}
