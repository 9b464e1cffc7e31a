package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/config"
)

// Client wraps the go-redis client used by the revocation cache.
type Client struct {
	rdb *red.Client
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(settings config.RedisSettings, log *zap.Logger) (*Client, error) {
	opts := &red.Options{
		Addr:     fmt.Sprintf("%s:%d", settings.Host, settings.Port),
		DB:       settings.DB,
		Password: settings.Password,
	}
	if settings.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := red.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if log != nil {
		log.Info("redis connection established", zap.String("addr", opts.Addr), zap.Int("db", settings.DB))
	}

	return &Client{rdb: rdb}, nil
}

// Raw exposes the underlying go-redis client to repositories.
func (c *Client) Raw() *red.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}

// HealthCheck pings the server, used by the readiness endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis client not configured")
	}
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
