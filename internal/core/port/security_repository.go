package port

import (
	"context"
	"time"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
)

// SecurityRepository persists per-account security records. Warn counter
// updates are single-statement atomic increments so concurrent failures
// cannot under-count toward the lockout threshold.
type SecurityRepository interface {
	Create(ctx context.Context, record domain.AccountSecurity) error
	GetByUserID(ctx context.Context, userID string) (*domain.AccountSecurity, error)
	IncrementWarns(ctx context.Context, userID string) (int, error)
	ResetWarns(ctx context.Context, userID string) error
	SetLock(ctx context.Context, userID string, until *time.Time) error
	ClearLock(ctx context.Context, userID string) error
	SetVerified(ctx context.Context, userID string, verified bool) error
	SetSimpleOTP(ctx context.Context, userID string, slot *string) error
	UpdatePasswordHash(ctx context.Context, userID string, hash string) error
	SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error
	Delete(ctx context.Context, userID string) error
}

// TwoFactorRepository persists the 0-or-1 TOTP record per account.
type TwoFactorRepository interface {
	Create(ctx context.Context, record domain.TwoFactor) error
	GetByUserID(ctx context.Context, userID string) (*domain.TwoFactor, error)
	SetLastOTP(ctx context.Context, userID string, code string) error
	SetBackupCodes(ctx context.Context, userID string, joined string) error
	Delete(ctx context.Context, userID string) error
}
