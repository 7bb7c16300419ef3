package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"

	"team-activity-pipeline/internal/config"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis client shared by the job queue and unique-job locks
type Client struct {
	*redis.Client
}

// NewClient creates a new Redis client based on the configuration
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Address,
		Password:   cfg.Password,
		DB:         cfg.DB,
		Username:   cfg.Username,
		MaxRetries: 3,
	}

	if cfg.UseTLS {
		host, _, err := net.SplitHostPort(cfg.Address)
		if err != nil {
			host = cfg.Address
		}
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: host,
		}
	}
	slog.Debug("connecting to redis", "address", cfg.Address, "tls", cfg.UseTLS, "db", cfg.DB)

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{Client: client}, nil
}

// HealthCheck performs a health check on the Redis connection
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
