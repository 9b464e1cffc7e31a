package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPProvider wraps the TOTP primitive: secret generation, code
// verification, and provisioning URIs for QR-code clients.
type TOTPProvider struct {
	issuer string
	now    func() time.Time
}

// NewTOTPProvider constructs a provider stamping the supplied issuer into
// provisioning URIs.
func NewTOTPProvider(issuer string) *TOTPProvider {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = "thestudentmaster"
	}
	return &TOTPProvider{
		issuer: issuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the provider clock for deterministic tests.
func (p *TOTPProvider) WithClock(clock func() time.Time) {
	if clock != nil {
		p.now = clock
	}
}

func (p *TOTPProvider) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateSecret creates a new shared secret and its provisioning URI.
func (p *TOTPProvider) GenerateSecret(accountName string) (string, string, error) {
	accountName = strings.TrimSpace(accountName)
	if accountName == "" {
		return "", "", fmt.Errorf("totp: account name is required")
	}
	if strings.Contains(accountName, ":") {
		return "", "", fmt.Errorf("totp: account name must not contain a colon")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: accountName,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  20,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp key: %w", err)
	}

	return key.Secret(), key.URL(), nil
}

// Verify reports whether the code matches the secret within one period of
// clock drift on either side.
func (p *TOTPProvider) Verify(secret, code string) bool {
	secret = strings.TrimSpace(secret)
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, p.now(), p.validateOpts())
	if err != nil {
		return false
	}
	return valid
}

// CurrentCode derives the code for the current time window.
func (p *TOTPProvider) CurrentCode(secret string) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, p.now(), p.validateOpts())
	if err != nil {
		return "", fmt.Errorf("generate totp code: %w", err)
	}
	return code, nil
}
