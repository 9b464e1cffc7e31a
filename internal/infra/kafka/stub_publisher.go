package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/port"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishVerificationCodeIssued logs auth.verification.code_issued events.
func (p *StubPublisher) PublishVerificationCodeIssued(_ context.Context, event domain.VerificationCodeIssuedEvent) error {
	p.logEvent("auth.verification.code_issued", event.UserID, event.IssuedAt, map[string]any{
		"email":      logger.MaskEmail(event.Email),
		"code":       logger.MaskString(event.Code),
		"expires_at": event.ExpiresAt,
	})
	return nil
}

// PublishPasswordResetRequested logs auth.password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logEvent("auth.password.reset_requested", event.UserID, event.IssuedAt, map[string]any{
		"email":      logger.MaskEmail(event.Email),
		"code":       logger.MaskString(event.Code),
		"expires_at": event.ExpiresAt,
	})
	return nil
}

// PublishPasswordChanged logs auth.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent("auth.password.changed", event.UserID, event.ChangedAt, map[string]any{
		"email": logger.MaskEmail(event.Email),
	})
	return nil
}

// PublishTwoFactorEnabled logs auth.twofactor.enabled events.
func (p *StubPublisher) PublishTwoFactorEnabled(_ context.Context, event domain.TwoFactorEnabledEvent) error {
	p.logEvent("auth.twofactor.enabled", event.UserID, event.EnabledAt, map[string]any{
		"email": logger.MaskEmail(event.Email),
	})
	return nil
}

// PublishTwoFactorDisabled logs auth.twofactor.disabled events.
func (p *StubPublisher) PublishTwoFactorDisabled(_ context.Context, event domain.TwoFactorDisabledEvent) error {
	p.logEvent("auth.twofactor.disabled", event.UserID, event.DisabledAt, map[string]any{
		"email":      logger.MaskEmail(event.Email),
		"via_backup": event.ViaBackup,
	})
	return nil
}

// PublishAccountLocked logs auth.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.logEvent("auth.account.locked", event.UserID, event.LockedAt, map[string]any{
		"email":     logger.MaskEmail(event.Email),
		"permanent": event.Permanent,
		"until":     event.Until,
	})
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
