package domain

import "time"

// VerificationCodeIssuedEvent notifies the mailer that an account
// verification code was generated.
type VerificationCodeIssuedEvent struct {
	UserID    string
	Email     string
	Code      string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// PasswordResetRequestedEvent notifies the mailer about a reset code.
type PasswordResetRequestedEvent struct {
	UserID    string
	Email     string
	Code      string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// PasswordChangedEvent is published after a successful password reset.
type PasswordChangedEvent struct {
	UserID    string
	Email     string
	ChangedAt time.Time
}

// TwoFactorEnabledEvent is published when 2FA activation completes.
type TwoFactorEnabledEvent struct {
	UserID    string
	Email     string
	EnabledAt time.Time
}

// TwoFactorDisabledEvent is published when 2FA is removed, including via
// backup-code consumption.
type TwoFactorDisabledEvent struct {
	UserID     string
	Email      string
	DisabledAt time.Time
	ViaBackup  bool
}

// AccountLockedEvent is published when an account transitions into a lock.
type AccountLockedEvent struct {
	UserID    string
	Email     string
	Permanent bool
	Until     *time.Time
	LockedAt  time.Time
}
