package security

import (
	"errors"
	"testing"
	"time"
)

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	return NewTokenCodec(NewKeyManager(t.TempDir()), "test-issuer")
}

func TestTokenCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	claims, err := codec.NewClaims(ClaimOptions{
		Subject:  "user-1",
		Audience: "webapplication",
		TTL:      8 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewClaims returned error: %v", err)
	}

	signed, err := codec.Sign(KeyCategoryAccess, claims)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	parsed, err := codec.Parse(KeyCategoryAccess, signed)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if parsed.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %s", parsed.Subject)
	}
	if parsed.AudienceClaim() != "webapplication" {
		t.Fatalf("expected webapplication audience, got %s", parsed.AudienceClaim())
	}
	if parsed.JTI() == "" {
		t.Fatal("expected a generated JTI")
	}
}

func TestTokenCodecExpiry(t *testing.T) {
	codec := newTestCodec(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	codec.WithClock(func() time.Time { return base })

	claims, err := codec.NewClaims(ClaimOptions{
		Subject:  "user-1",
		Audience: "webapplication",
		TTL:      5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewClaims returned error: %v", err)
	}
	signed, err := codec.Sign(KeyCategorySecurity, claims)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	codec.WithClock(func() time.Time { return base.Add(6 * time.Minute) })
	if _, err := codec.Parse(KeyCategorySecurity, signed); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenCodecWrongCategory(t *testing.T) {
	codec := newTestCodec(t)

	claims, err := codec.NewClaims(ClaimOptions{
		Subject:  "user-1",
		Audience: "webapplication",
		TTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("NewClaims returned error: %v", err)
	}
	signed, err := codec.Sign(KeyCategoryAccess, claims)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	// Refresh uses a different curve and key, so the token must not parse.
	if _, err := codec.Parse(KeyCategoryRefresh, signed); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestTokenCodecMalformedInput(t *testing.T) {
	codec := newTestCodec(t)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := codec.Parse(KeyCategoryAccess, token); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("expected ErrTokenMalformed for %q, got %v", token, err)
		}
	}
}

func TestTokenCodecWrongIssuer(t *testing.T) {
	keys := NewKeyManager(t.TempDir())
	signing := NewTokenCodec(keys, "issuer-a")
	verifying := NewTokenCodec(keys, "issuer-b")

	claims, err := signing.NewClaims(ClaimOptions{
		Subject:  "user-1",
		Audience: "webapplication",
		TTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("NewClaims returned error: %v", err)
	}
	signed, err := signing.Sign(KeyCategoryAccess, claims)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	if _, err := verifying.Parse(KeyCategoryAccess, signed); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for wrong issuer, got %v", err)
	}
}
