package domain

import (
	"errors"
	"strings"
	"time"
)

// TokenKind enumerates the token categories tracked by the ledger.
type TokenKind string

const (
	TokenKindAccess      TokenKind = "access"
	TokenKindTemporary   TokenKind = "temporary"
	TokenKindApplication TokenKind = "application"
	TokenKindSecurity    TokenKind = "security"
)

// AudienceWeb is the audience value carried by browser-issued tokens.
const AudienceWeb = "webapplication"

// Security-step audience values. Application-bound 2FA challenges append
// "::<application-id>" to the login reason.
const (
	SecurityReasonLogin2FA       = "login-2fa"
	SecurityReasonForgotPassword = "forgot-password"
)

// SecurityReasonSeparator splits a security reason from its application id.
const SecurityReasonSeparator = "::"

// ErrEmptyAudience indicates an audience was constructed without a value.
var ErrEmptyAudience = errors.New("audience value must not be empty")

// Audience identifies the intended consumer of a token: either a free-text
// purpose value or a registered application. Exactly one side is populated;
// the zero Audience is invalid.
type Audience struct {
	value string
	appID string
}

// AudienceValue constructs a free-text audience.
func AudienceValue(value string) (Audience, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Audience{}, ErrEmptyAudience
	}
	return Audience{value: value}, nil
}

// AudienceApplication constructs an audience referencing a registered application.
func AudienceApplication(applicationID string) (Audience, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return Audience{}, ErrEmptyAudience
	}
	return Audience{appID: applicationID}, nil
}

// IsApplication reports whether the audience references a registered application.
func (a Audience) IsApplication() bool {
	return a.appID != ""
}

// ApplicationID returns the referenced application id, empty for value audiences.
func (a Audience) ApplicationID() string {
	return a.appID
}

// Value returns the free-text audience value, empty for application audiences.
func (a Audience) Value() string {
	return a.value
}

// IsZero reports whether the audience carries neither side.
func (a Audience) IsZero() bool {
	return a.value == "" && a.appID == ""
}

// String returns the claim representation placed in the token's aud field.
func (a Audience) String() string {
	if a.appID != "" {
		return a.appID
	}
	return a.value
}

// TokenRecord is a ledger entry for a live token. Presence in the ledger is
// what makes a cryptographically valid token acceptable; deletion is the
// revocation mechanism.
type TokenRecord struct {
	JTI       string
	UserID    string
	Kind      TokenKind
	Audience  Audience
	CreatedAt int64
	ExpiresAt int64
}

// IsExpired reports whether the record's expiration has passed.
func (r TokenRecord) IsExpired(at time.Time) bool {
	return r.ExpiresAt <= at.Unix()
}

// PruneResult partitions an account's live tokens after expired entries and
// the rotated-out JTI have been removed.
type PruneResult struct {
	Application []TokenRecord
	Temporary   []TokenRecord
	Access      []TokenRecord
	Removed     []string
}
