package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/port"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/config"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/logger"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/security"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/repository"
)

// TwoFactorEnrollment is returned when activation starts: the shared secret
// plus the provisioning URI for QR-code clients.
type TwoFactorEnrollment struct {
	Secret          string
	ProvisioningURI string
}

// TwoFactorService drives the TOTP lifecycle: activation, first
// verification with backup-code issuance, ongoing verification with replay
// protection, backup-code consumption, and removal.
type TwoFactorService struct {
	cfg       *config.AuthSettings
	users     port.UserRepository
	security  port.SecurityRepository
	twofactor port.TwoFactorRepository
	totp      *security.TOTPProvider
	tokens    *TokenService
	lockout   *Lockout
	publisher port.EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

// NewTwoFactorService constructs a TwoFactorService. publisher may be nil.
func NewTwoFactorService(
	cfg *config.AuthSettings,
	users port.UserRepository,
	securityRepo port.SecurityRepository,
	twofactor port.TwoFactorRepository,
	totp *security.TOTPProvider,
	tokens *TokenService,
	lockout *Lockout,
	publisher port.EventPublisher,
	log *zap.Logger,
) *TwoFactorService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TwoFactorService{
		cfg:       cfg,
		users:     users,
		security:  securityRepo,
		twofactor: twofactor,
		totp:      totp,
		tokens:    tokens,
		lockout:   lockout,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *TwoFactorService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Enable starts 2FA activation. It re-authenticates with the password,
// rejects when 2FA is already on or an activation is already pending, and
// stores the generated secret awaiting its first verification.
func (s *TwoFactorService) Enable(ctx context.Context, userID, password string) (*TwoFactorEnrollment, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	sec, err := s.security.GetByUserID(ctx, userID)
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
		return nil, s.lockout.RaiseWarning(ctx, sec, "2fa activation password check")
	}

	if sec.TwoFactorEnabled {
		return nil, ErrConflictState
	}
	if _, err := s.twofactor.GetByUserID(ctx, userID); err == nil {
		return nil, ErrAlreadyInProgress
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup pending activation: %w", err)
	}

	secret, uri, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	record := domain.TwoFactor{
		UserID:    userID,
		Secret:    secret,
		CreatedAt: s.now(),
	}
	if err := s.twofactor.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyInProgress
		}
		return nil, fmt.Errorf("store pending activation: %w", err)
	}

	return &TwoFactorEnrollment{Secret: secret, ProvisioningURI: uri}, nil
}

// ConfirmFirst completes activation with the first TOTP code. On success it
// issues the backup code set, records the code for replay protection, and
// flips the account into the enabled state.
func (s *TwoFactorService) ConfirmFirst(ctx context.Context, userID, code string) ([]string, error) {
	sec, err := s.security.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup security record: %w", err)
	}
	if err := s.lockout.Check(ctx, sec); err != nil {
		return nil, err
	}
	if sec.TwoFactorEnabled {
		return nil, ErrConflictState
	}

	record, err := s.twofactor.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConflictState
		}
		return nil, fmt.Errorf("lookup pending activation: %w", err)
	}

	code = strings.TrimSpace(code)
	if !s.totp.Verify(record.Secret, code) {
		return nil, s.lockout.RaiseWarning(ctx, sec, "2fa first verification")
	}

	codes, err := security.GenerateBackupCodes(s.cfg.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	if err := s.twofactor.SetLastOTP(ctx, userID, code); err != nil {
		return nil, fmt.Errorf("record consumed otp: %w", err)
	}
	if err := s.twofactor.SetBackupCodes(ctx, userID, strings.Join(codes, domain.BackupCodeSeparator)); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}
	if err := s.security.SetTwoFactorEnabled(ctx, userID, true); err != nil {
		return nil, fmt.Errorf("enable two-factor flag: %w", err)
	}

	s.publishEnabled(ctx, userID)

	return codes, nil
}

// Verify checks a TOTP code for an enabled account. A code equal to the
// last consumed one is rejected even inside its time window; a fresh match
// is recorded as last-used so it cannot be replayed.
func (s *TwoFactorService) Verify(ctx context.Context, userID, code string) error {
	sec, err := s.security.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup security record: %w", err)
	}
	if err := s.lockout.Check(ctx, sec); err != nil {
		return err
	}
	if !sec.TwoFactorEnabled {
		return ErrConflictState
	}

	record, err := s.twofactor.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup two-factor record: %w", err)
	}

	code = strings.TrimSpace(code)
	if record.IsReplay(code) {
		return s.lockout.RaiseWarning(ctx, sec, "replayed otp")
	}
	if !s.totp.Verify(record.Secret, code) {
		return s.lockout.RaiseWarning(ctx, sec, "invalid otp")
	}

	if err := s.twofactor.SetLastOTP(ctx, userID, code); err != nil {
		return fmt.Errorf("record consumed otp: %w", err)
	}

	return nil
}

// VerifyBackup consumes backup codes as proof of possession. Every
// submitted code missing from the stored set raises a strike on the spot;
// when the distinct matches reach exactly half of the stored set the
// engine disables 2FA and issues a fresh web session.
func (s *TwoFactorService) VerifyBackup(ctx context.Context, userID string, codes []string) (*TokenPair, error) {
	sec, err := s.security.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup security record: %w", err)
	}
	if err := s.lockout.Check(ctx, sec); err != nil {
		return nil, err
	}
	if !sec.TwoFactorEnabled {
		return nil, ErrConflictState
	}

	record, err := s.twofactor.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup two-factor record: %w", err)
	}

	stored := record.BackupCodeList()
	if len(stored) == 0 {
		return nil, ErrConflictState
	}
	known := make(map[string]struct{}, len(stored))
	for _, c := range stored {
		known[c] = struct{}{}
	}

	matched := make(map[string]struct{})
	for _, submitted := range codes {
		submitted = strings.TrimSpace(submitted)
		if submitted == "" {
			continue
		}
		if _, ok := known[submitted]; ok {
			matched[submitted] = struct{}{}
			continue
		}

		warnErr := s.lockout.RaiseWarning(ctx, sec, "invalid backup code")
		var locked *LockedError
		if errors.As(warnErr, &locked) {
			return nil, warnErr
		}
	}

	if len(matched) != len(stored)/2 {
		return nil, ErrInvalidCredentials
	}

	if err := s.remove(ctx, userID, true); err != nil {
		return nil, err
	}

	return s.tokens.CreateTokens(ctx, sec, userID, "", nil)
}

// Remove disables 2FA after a valid TOTP code and deletes the record.
func (s *TwoFactorService) Remove(ctx context.Context, userID, code string) error {
	if err := s.Verify(ctx, userID, code); err != nil {
		return err
	}
	return s.remove(ctx, userID, false)
}

func (s *TwoFactorService) remove(ctx context.Context, userID string, viaBackup bool) error {
	if err := s.twofactor.Delete(ctx, userID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("delete two-factor record: %w", err)
	}
	if err := s.security.SetTwoFactorEnabled(ctx, userID, false); err != nil {
		return fmt.Errorf("disable two-factor flag: %w", err)
	}

	kind := domain.TokenKindSecurity
	if err := s.tokens.RevokeAllTokens(ctx, userID, &kind, nil); err != nil {
		return fmt.Errorf("revoke pending security tokens: %w", err)
	}

	s.publishDisabled(ctx, userID, viaBackup)

	return nil
}

func (s *TwoFactorService) publishEnabled(ctx context.Context, userID string) {
	if s.publisher == nil {
		return
	}

	email := s.lookupEmail(ctx, userID)
	event := domain.TwoFactorEnabledEvent{UserID: userID, Email: email, EnabledAt: s.now()}
	if err := s.publisher.PublishTwoFactorEnabled(ctx, event); err != nil {
		s.log.Error("publish two-factor enabled event",
			zap.String("user_id", userID),
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err))
	}
}

func (s *TwoFactorService) publishDisabled(ctx context.Context, userID string, viaBackup bool) {
	if s.publisher == nil {
		return
	}

	email := s.lookupEmail(ctx, userID)
	event := domain.TwoFactorDisabledEvent{UserID: userID, Email: email, DisabledAt: s.now(), ViaBackup: viaBackup}
	if err := s.publisher.PublishTwoFactorDisabled(ctx, event); err != nil {
		s.log.Error("publish two-factor disabled event",
			zap.String("user_id", userID),
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err))
	}
}

func (s *TwoFactorService) lookupEmail(ctx context.Context, userID string) string {
	if s.users == nil {
		return ""
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Email
}
