package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

var (
	// ErrTokenExpired indicates the token's signature is intact but exp has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed indicates a structural or signature failure.
	ErrTokenMalformed = errors.New("token malformed")
)

// TokenClaims is the signed payload carried by every token category.
type TokenClaims struct {
	jwt.RegisteredClaims
}

// JTI returns the token's unique identifier claim.
func (c *TokenClaims) JTI() string {
	return strings.TrimSpace(c.RegisteredClaims.ID)
}

// AudienceClaim returns the single audience entry, empty when absent.
func (c *TokenClaims) AudienceClaim() string {
	if len(c.RegisteredClaims.Audience) == 0 {
		return ""
	}
	return strings.TrimSpace(c.RegisteredClaims.Audience[0])
}

// ClaimOptions configures construction of token claims.
type ClaimOptions struct {
	Subject  string
	Audience string
	TTL      time.Duration
	IssuedAt time.Time
	JTI      string
}

// TokenCodec signs and parses tokens against the category key pairs.
// Audience validation is deliberately deferred to the ledger existence
// check, so Parse never enforces the aud claim.
type TokenCodec struct {
	keys   *KeyManager
	issuer string
	now    func() time.Time
}

// NewTokenCodec constructs a codec bound to the supplied key manager.
func NewTokenCodec(keys *KeyManager, issuer string) *TokenCodec {
	return &TokenCodec{
		keys:   keys,
		issuer: issuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the codec clock for deterministic tests.
func (c *TokenCodec) WithClock(clock func() time.Time) {
	if clock != nil {
		c.now = clock
	}
}

// NewClaims builds the standard claim set for a token.
func (c *TokenCodec) NewClaims(opts ClaimOptions) (*TokenClaims, error) {
	subject := strings.TrimSpace(opts.Subject)
	if subject == "" {
		return nil, fmt.Errorf("codec: subject is required")
	}
	audience := strings.TrimSpace(opts.Audience)
	if audience == "" {
		return nil, fmt.Errorf("codec: audience is required")
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("codec: ttl must be positive")
	}

	issuedAt := opts.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = c.now()
	}
	issuedAt = issuedAt.UTC()

	jti := strings.TrimSpace(opts.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	return &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(opts.TTL)),
			ID:        jti,
		},
	}, nil
}

// Sign encodes the claims with the category's private key.
func (c *TokenCodec) Sign(category KeyCategory, claims *TokenClaims) (string, error) {
	if claims == nil {
		return "", fmt.Errorf("codec: claims required")
	}

	method, err := SigningMethodFor(category)
	if err != nil {
		return "", err
	}

	key, err := c.keys.SigningKey(category)
	if err != nil {
		return "", fmt.Errorf("get %s signing key: %w", category, err)
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", category, err)
	}

	return signed, nil
}

// Parse decodes a token with the category's public key and classifies every
// failure into ErrTokenExpired or ErrTokenMalformed; library errors never
// escape this boundary.
func (c *TokenCodec) Parse(category KeyCategory, token string) (*TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}

	expectedMethod, err := SigningMethodFor(category)
	if err != nil {
		return nil, err
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != expectedMethod.Alg() {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.keys.VerificationKey(category)
	}, jwt.WithTimeFunc(c.now), jwt.WithIssuer(c.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.JTI() == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
