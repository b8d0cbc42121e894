package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window counter shared by every instance of the
// API. When Redis is unreachable requests are let through.
type RedisRateLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewRedisRateLimiter allows limit requests per client per window under
// keys starting with prefix.
func NewRedisRateLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration, logger *slog.Logger) *RedisRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRateLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: logger.With(slog.String("component", "redis_rate_limiter")),
	}
}

// Allow counts one request for client and reports whether it is within the
// limit, along with the time left in the current window.
func (l *RedisRateLimiter) Allow(ctx context.Context, client string) (bool, time.Duration, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", l.prefix, client, windowStart.Unix())

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return true, 0, err
	}

	remaining := windowStart.Add(l.window).Sub(now)
	return incr.Val() <= int64(l.limit), remaining, nil
}

// Middleware rejects requests over the limit with 429.
func (l *RedisRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)
		allowed, remaining, err := l.Allow(r.Context(), client)
		if err != nil {
			logger.FromContextOrDefault(r.Context(), l.logger).Warn("rate limiter unavailable, allowing request",
				slog.String("limiter", l.prefix),
				slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			logger.FromContextOrDefault(r.Context(), l.logger).Warn("rate limit exceeded",
				slog.String("client", client),
				slog.String("limit_type", l.prefix))
			writeRateLimited(w, r, max(int(remaining.Seconds()+0.999), 1))
			return
		}
		next.ServeHTTP(w, r)
	})
}
