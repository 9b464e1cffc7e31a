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
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/logger"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/security"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/repository"
)

// RegistrationService creates accounts and drives email verification via
// the one-time-code engine.
type RegistrationService struct {
	users     port.UserRepository
	security  port.SecurityRepository
	onecode   *OneCodeEngine
	lockout   *Lockout
	validator *security.PasswordValidator
	publisher port.EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

// NewRegistrationService constructs a RegistrationService. publisher may be nil.
func NewRegistrationService(
	users port.UserRepository,
	securityRepo port.SecurityRepository,
	onecode *OneCodeEngine,
	lockout *Lockout,
	validator *security.PasswordValidator,
	publisher port.EventPublisher,
	log *zap.Logger,
) *RegistrationService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationService{
		users:     users,
		security:  securityRepo,
		onecode:   onecode,
		lockout:   lockout,
		validator: validator,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *RegistrationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Register creates the account with an unverified security record and sends
// a verification code.
func (s *RegistrationService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" {
		return nil, fmt.Errorf("registration: username and email are required")
	}

	if err := s.validator.Validate(password); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		RegisteredAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	sec := domain.AccountSecurity{
		UserID:       user.ID,
		PasswordHash: hash,
		UpdatedAt:    now,
	}
	if err := s.security.Create(ctx, sec); err != nil {
		return nil, fmt.Errorf("create security record: %w", err)
	}

	code, expiresAt, err := s.onecode.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.publishVerificationCode(ctx, user, code, expiresAt)

	return &user, nil
}

// VerifyAccount confirms ownership of the registered email address with the
// mailed code and flips the verified flag.
func (s *RegistrationService) VerifyAccount(ctx context.Context, identifier, code string) error {
	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	sec, err := s.security.GetByUserID(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("lookup security record: %w", err)
	}
	if sec.Verified {
		return nil
	}

	if err := s.onecode.Verify(ctx, sec, code); err != nil {
		return err
	}

	if err := s.security.SetVerified(ctx, user.ID, true); err != nil {
		return fmt.Errorf("set verified flag: %w", err)
	}

	return nil
}

// ResendVerification issues a fresh code for a still-unverified account,
// overwriting any previous one.
func (s *RegistrationService) ResendVerification(ctx context.Context, identifier string) error {
	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	sec, err := s.security.GetByUserID(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("lookup security record: %w", err)
	}
	if sec.Verified {
		return ErrConflictState
	}
	if err := s.lockout.Check(ctx, sec); err != nil {
		return err
	}

	code, expiresAt, err := s.onecode.Issue(ctx, user.ID)
	if err != nil {
		return err
	}
	s.publishVerificationCode(ctx, *user, code, expiresAt)

	return nil
}

func (s *RegistrationService) publishVerificationCode(ctx context.Context, user domain.User, code string, expiresAt time.Time) {
	if s.publisher == nil {
		return
	}

	event := domain.VerificationCodeIssuedEvent{
		UserID:    user.ID,
		Email:     user.Email,
		Code:      code,
		ExpiresAt: expiresAt,
		IssuedAt:  s.now(),
	}
	if err := s.publisher.PublishVerificationCodeIssued(ctx, event); err != nil {
		s.log.Error("publish verification code event",
			zap.String("user_id", user.ID),
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err))
	}
}
