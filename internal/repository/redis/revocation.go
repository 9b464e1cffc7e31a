package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"
)

const defaultRevocationPrefix = "revoked"

// RevocationCache keeps revoked JTIs in Redis so verification can reject a
// freshly revoked token without touching the ledger. The ledger stays
// authoritative; entries here expire with the token they shadow.
type RevocationCache struct {
	client *red.Client
	prefix string
}

// NewRevocationCache wires a Redis client into a revocation cache.
func NewRevocationCache(client *red.Client, keyPrefix string) *RevocationCache {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}

	return &RevocationCache{client: client, prefix: prefix}
}

// MarkRevoked stores the supplied JTI with a reason and a TTL matching the
// remaining lifetime of the revoked token.
func (c *RevocationCache) MarkRevoked(ctx context.Context, jti string, reason string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	key := c.key(jti)
	if key == "" {
		return errors.New("jti must not be empty")
	}

	if err := c.client.Set(ctx, key, reason, ttl).Err(); err != nil {
		return fmt.Errorf("redis set revoked jti: %w", err)
	}

	return nil
}

// MarkManyRevoked stores a batch of JTIs under the same reason and TTL.
func (c *RevocationCache) MarkManyRevoked(ctx context.Context, jtis []string, reason string, ttl time.Duration) error {
	if len(jtis) == 0 {
		return nil
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	pipe := c.client.Pipeline()
	for _, jti := range jtis {
		key := c.key(jti)
		if key == "" {
			continue
		}
		pipe.Set(ctx, key, reason, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set revoked jtis: %w", err)
	}

	return nil
}

// IsRevoked reports whether the JTI has been revoked and returns the stored
// reason when present.
func (c *RevocationCache) IsRevoked(ctx context.Context, jti string) (bool, string, error) {
	key := c.key(jti)
	if key == "" {
		return false, "", errors.New("jti must not be empty")
	}

	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("redis get revoked jti: %w", err)
	}

	return true, value, nil
}

func (c *RevocationCache) key(jti string) string {
	trimmed := strings.TrimSpace(jti)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.prefix, trimmed)
}
