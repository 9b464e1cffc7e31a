package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRevocationCache_MarkAndCheck(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewRevocationCache(client, "revoked")

	ctx := context.Background()
	ttl := 2 * time.Minute

	if err := cache.MarkRevoked(ctx, "jti-123", "user_logout", ttl); err != nil {
		t.Fatalf("MarkRevoked returned error: %v", err)
	}

	revoked, reason, err := cache.IsRevoked(ctx, "jti-123")
	if err != nil {
		t.Fatalf("IsRevoked returned error: %v", err)
	}
	if !revoked {
		t.Fatalf("expected jti to be marked revoked")
	}
	if reason != "user_logout" {
		t.Fatalf("expected reason user_logout, got %s", reason)
	}

	remaining := server.TTL("revoked:jti-123")
	if remaining <= 0 || remaining > ttl {
		t.Fatalf("expected ttl within (0, %v], got %v", ttl, remaining)
	}
}

func TestRevocationCache_IsRevokedMiss(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewRevocationCache(client, "revoked")

	revoked, reason, err := cache.IsRevoked(context.Background(), "missing")
	if err != nil {
		t.Fatalf("IsRevoked returned error: %v", err)
	}
	if revoked {
		t.Fatalf("expected a cache miss to read as not revoked")
	}
	if reason != "" {
		t.Fatalf("expected empty reason, got %s", reason)
	}
}

func TestRevocationCache_MarkManyRevoked(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewRevocationCache(client, "revoked")

	ctx := context.Background()
	jtis := []string{"jti-1", "jti-2", "jti-3"}

	if err := cache.MarkManyRevoked(ctx, jtis, "logout_all", time.Minute); err != nil {
		t.Fatalf("MarkManyRevoked returned error: %v", err)
	}

	for _, jti := range jtis {
		revoked, reason, err := cache.IsRevoked(ctx, jti)
		if err != nil {
			t.Fatalf("IsRevoked(%s) returned error: %v", jti, err)
		}
		if !revoked {
			t.Fatalf("expected %s to be revoked", jti)
		}
		if reason != "logout_all" {
			t.Fatalf("expected reason logout_all for %s, got %s", jti, reason)
		}
	}

	if got := len(server.Keys()); got != len(jtis) {
		t.Fatalf("expected %d keys, got %d", len(jtis), got)
	}
}

func TestRevocationCache_MarkManyRevokedEmpty(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewRevocationCache(client, "revoked")

	if err := cache.MarkManyRevoked(context.Background(), nil, "noop", time.Minute); err != nil {
		t.Fatalf("MarkManyRevoked returned error: %v", err)
	}
	if got := len(server.Keys()); got != 0 {
		t.Fatalf("expected no keys, got %d", got)
	}
}

func TestRevocationCache_RejectsNonPositiveTTL(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewRevocationCache(client, "revoked")

	if err := cache.MarkRevoked(context.Background(), "jti-1", "reason", 0); err == nil {
		t.Fatal("expected an error for zero ttl")
	}
}
