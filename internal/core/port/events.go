package port

import (
	"context"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
)

// EventPublisher publishes security notification events to the message bus.
// Publication is fire-and-forget from the caller's perspective: failures are
// logged by the implementation and must never abort the security flow.
type EventPublisher interface {
	PublishVerificationCodeIssued(ctx context.Context, event domain.VerificationCodeIssuedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishTwoFactorEnabled(ctx context.Context, event domain.TwoFactorEnabledEvent) error
	PublishTwoFactorDisabled(ctx context.Context, event domain.TwoFactorDisabledEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
}
