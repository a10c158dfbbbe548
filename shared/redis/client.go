package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace      = "tm"
	idempotencyPrefix = "idempotency"
)

// Config holds Redis connection configuration
type Config struct {
	Addr     string
	Password string
	DB       int
}

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client wraps the handful of commands the API uses
type Client struct {
	store  cmdable
	raw    *redis.Client
	logger *slog.Logger
}

// NewClient connects to Redis and verifies connectivity
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	if config.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	logger.Info("Connecting to Redis", slog.String("addr", config.Addr), slog.Int("db", config.DB))

	raw := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := raw.Ping(ctx).Err(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Successfully connected to Redis")
	return &Client{store: raw, raw: raw, logger: logger}, nil
}

// Get returns the value at key; ok is false when the key does not exist
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.store.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, true, nil
}

// SetNX stores value only if key is absent
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	ok, err := c.store.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to setnx %s: %w", key, err)
	}
	return ok, nil
}

// Del removes keys
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if err := c.store.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// IdempotencyKey namespaces a client-supplied key under a caller scope
func (c *Client) IdempotencyKey(scope, id string) string {
	return BuildKey(idempotencyPrefix, scope, id)
}

// BuildKey joins parts under the service namespace
func BuildKey(parts ...string) string {
	return keyNamespace + ":" + strings.Join(parts, ":")
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.store.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	c.logger.Info("Closing Redis connection")
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}
