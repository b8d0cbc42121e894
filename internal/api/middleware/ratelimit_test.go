package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/pm-api/internal/api/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func requestFrom(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.RemoteAddr = remote
	return req
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 2})
	defer rl.Stop()
	handler := rl.Middleware(okHandler)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("10.0.0.1:1234"))
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:5678"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.2:1234"))
	assert.Equal(t, http.StatusOK, rr.Code, "other clients have their own bucket")
	assert.Equal(t, 2, rl.ClientCount())
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	rl.Middleware(okHandler).ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:1"))
	require.Equal(t, 1, rl.ClientCount())

	rl.cleanup(time.Now().Add(time.Minute))
	assert.Equal(t, 1, rl.ClientCount())

	rl.cleanup(time.Now().Add(3 * time.Minute))
	assert.Equal(t, 0, rl.ClientCount())
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(100, 15*time.Minute)
	assert.Equal(t, 100, cfg.Burst)
	assert.InDelta(t, 100.0/900.0, float64(cfg.Rate), 1e-9)
}

func TestClientKey(t *testing.T) {
	assert.Equal(t, "ip:10.1.2.3", clientKey(requestFrom("10.1.2.3:80")))

	id := uuid.New()
	req := requestFrom("10.1.2.3:80")
	req = req.WithContext(shared.WithUserID(req.Context(), id))
	assert.Equal(t, "user:"+id.String(), clientKey(req))
}

func newRedisLimiter(t *testing.T, limit int) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRateLimiter(client, "project_create", limit, time.Minute,
		slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func TestRedisRateLimiter_FixedWindow(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 3)
	now := time.Date(2024, 1, 1, 12, 0, 10, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	handler := limiter.Middleware(okHandler)

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("10.0.0.1:1"))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "50", rr.Header().Get("Retry-After"))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, mr.TTL(keys[0]) > 0, "window keys expire")

	now = now.Add(time.Minute)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, rr.Code, "a new window resets the count")
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 1)
	mr.SetError("LOADING")
	handler := limiter.Middleware(okHandler)

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("10.0.0.1:1"))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}
