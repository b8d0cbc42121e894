// Package cache provides a JSON read-through cache over Redis.
//
// The cache is never authoritative. Every backend failure, including a
// per-call timeout, is reported as ErrUnavailable so callers can treat it
// as a miss on reads and a no-op on writes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrMiss is returned by Get when the key does not exist.
	ErrMiss = errors.New("cache miss")

	// ErrUnavailable is returned when the backend fails or times out.
	ErrUnavailable = errors.New("cache unavailable")

	// ErrCorrupt is returned by Get when the stored value cannot be decoded.
	ErrCorrupt = errors.New("cache entry corrupt")
)

// Cache is a typed key-value cache with per-entry TTL.
type Cache interface {
	// Get decodes the value at key into dst.
	Get(ctx context.Context, key string, dst any) error
	// Set stores value at key as JSON for ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// ProjectKey returns the cache key of a project snapshot.
func ProjectKey(id uuid.UUID) string {
	return "project:" + id.String()
}

// RedisCache implements Cache on a Redis client.
type RedisCache struct {
	client    redis.Cmdable
	opTimeout time.Duration
	logger    *slog.Logger
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a RedisCache. opTimeout bounds every call; zero
// disables the bound.
func NewRedisCache(client redis.Cmdable, opTimeout time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{
		client:    client,
		opTimeout: opTimeout,
		logger:    logger.With(slog.String("component", "redis_cache")),
	}
}

func (c *RedisCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

// Get implements Cache.Get.
func (c *RedisCache) Get(ctx context.Context, key string, dst any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// Set implements Cache.Set.
func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value for %s: %w", key, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Delete implements Cache.Delete.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping checks that the backend is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}
