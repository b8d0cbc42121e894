package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordCacheMiss()
	c.RecordCacheError("get")
	c.RecordJobCompleted("projectSetup")
	c.RecordJobRetry("projectSetup")
	c.RecordJobRetry("projectSetup")
	c.RecordJobFailed("projectSetup")
	c.RecordEnqueueFailure("projectSetup")
	c.RecordProjectsArchived(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheErrors.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsCompleted.WithLabelValues("projectSetup")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobRetries.WithLabelValues("projectSetup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsFailed.WithLabelValues("projectSetup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.enqueueFailures.WithLabelValues("projectSetup")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.archived))
}

func TestCollector_HTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.MethodGet, "/api/projects/{id}", 200, 15*time.Millisecond)
	c.RecordHTTPRequest(http.MethodGet, "/api/projects/{id}", 404, 3*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/api/projects/{id}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/api/projects/{id}", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.httpLatency))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordCacheMiss()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pm_cache_misses_total 1")
}
