package domain

import (
	"strconv"
	"strings"
	"time"
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID           string
	Username     string
	Email        string
	RegisteredAt time.Time
	LastLogin    *time.Time
}

// AccountSecurity is the per-account security record. It is mutated only
// through the lockout machine, the 2FA engine, and the one-time-code engine.
type AccountSecurity struct {
	UserID           string
	PasswordHash     string
	SecurityWarns    int
	Locked           bool
	LockedUntil      *time.Time
	Verified         bool
	SimpleOTP        *string
	TwoFactorEnabled bool
	UpdatedAt        time.Time
}

// IsPermanentlyLocked reports whether the account is locked with no expiry.
func (a AccountSecurity) IsPermanentlyLocked() bool {
	return a.Locked && a.LockedUntil == nil
}

// IsTimeLocked reports whether the account is inside an active lock window.
func (a AccountSecurity) IsTimeLocked(at time.Time) bool {
	return a.Locked && a.LockedUntil != nil && a.LockedUntil.After(at)
}

// LockExpired reports whether a time lock exists but its window has elapsed.
func (a AccountSecurity) LockExpired(at time.Time) bool {
	return a.Locked && a.LockedUntil != nil && !a.LockedUntil.After(at)
}

const simpleOTPSeparator = ":"

// EncodeSimpleOTP packs a one-time code and its expiry into the single-slot
// "code:expiry" representation stored on the security record.
func EncodeSimpleOTP(code string, expiresAt time.Time) string {
	return code + simpleOTPSeparator + strconv.FormatInt(expiresAt.Unix(), 10)
}

// DecodeSimpleOTP unpacks the stored slot. ok is false when the slot is
// empty or structurally invalid.
func DecodeSimpleOTP(slot string) (code string, expiresAt time.Time, ok bool) {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return "", time.Time{}, false
	}

	parts := strings.SplitN(slot, simpleOTPSeparator, 2)
	if len(parts) != 2 {
		return "", time.Time{}, false
	}

	code = strings.TrimSpace(parts[0])
	if code == "" {
		return "", time.Time{}, false
	}

	unix, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}

	return code, time.Unix(unix, 0).UTC(), true
}

// TwoFactor holds the TOTP state for an account while 2FA is enabled or
// pending its first verification. At most one record exists per account.
type TwoFactor struct {
	UserID      string
	Secret      string
	LastOTP     *string
	BackupCodes string
	CreatedAt   time.Time
}

// BackupCodeSeparator joins the unused backup codes into a single column.
const BackupCodeSeparator = ";"

// BackupCodeList splits the stored backup codes, dropping empty entries.
func (t TwoFactor) BackupCodeList() []string {
	if strings.TrimSpace(t.BackupCodes) == "" {
		return nil
	}

	raw := strings.Split(t.BackupCodes, BackupCodeSeparator)
	codes := make([]string, 0, len(raw))
	for _, code := range raw {
		code = strings.TrimSpace(code)
		if code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// IsReplay reports whether the supplied code equals the last consumed OTP.
func (t TwoFactor) IsReplay(code string) bool {
	return t.LastOTP != nil && *t.LastOTP == code
}
