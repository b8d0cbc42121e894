package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/pm-api/internal/api/shared"
	"github.com/phrazzld/pm-api/internal/metrics"
	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Content-Security-Policy":   "default-src 'self'",
		"X-XSS-Protection":          "1; mode=block",
		"X-Content-Type-Options":    "nosniff",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
		"X-Frame-Options":           "SAMEORIGIN",
	}
	for name, value := range want {
		assert.Equal(t, value, rr.Header().Get(name), name)
	}
}

func TestTraceMiddleware(t *testing.T) {
	var logs bytes.Buffer
	base := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var traceID string
	handler := chimiddleware.RequestID(NewTraceMiddleware(base)(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			traceID = shared.GetTraceID(r.Context())
			logger.FromContext(r.Context()).Info("inside handler")
		})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-123", traceID)
	assert.Contains(t, logs.String(), "trace_id=req-123")
	assert.Contains(t, logs.String(), "inside handler")
}

type httpRecord struct {
	method, route string
	status        int
}

type recordingRecorder struct {
	metrics.Nop
	requests []httpRecord
}

func (r *recordingRecorder) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	r.requests = append(r.requests, httpRecord{method, route, status})
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &recordingRecorder{}
	router := chi.NewRouter()
	router.Use(NewMetricsMiddleware(rec))
	router.Get("/api/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/projects/abc", nil))

	require.Len(t, rec.requests, 1)
	assert.Equal(t, httpRecord{http.MethodGet, "/api/projects/{id}", http.StatusNotFound}, rec.requests[0])
}
