// Package metrics exposes Prometheus instrumentation for the cache, the job
// queue and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the instrumentation surface used by services, the job queue
// and middleware.
type Recorder interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheError(op string)
	RecordJobCompleted(jobType string)
	RecordJobRetry(jobType string)
	RecordJobFailed(jobType string)
	RecordEnqueueFailure(jobType string)
	RecordProjectsArchived(count int)
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheErrors     *prometheus.CounterVec
	jobsCompleted   *prometheus.CounterVec
	jobRetries      *prometheus.CounterVec
	jobsFailed      *prometheus.CounterVec
	enqueueFailures *prometheus.CounterVec
	archived        prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pm_cache_hits_total",
			Help: "Project reads served from the cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pm_cache_misses_total",
			Help: "Project reads that fell through to the store.",
		}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pm_cache_errors_total",
			Help: "Cache operations that failed or timed out.",
		}, []string{"op"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pm_jobs_completed_total",
			Help: "Jobs that finished successfully.",
		}, []string{"type"}),
		jobRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pm_job_retries_total",
			Help: "Failed job attempts that were retried.",
		}, []string{"type"}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pm_jobs_failed_total",
			Help: "Jobs that exhausted their attempts.",
		}, []string{"type"}),
		enqueueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pm_job_enqueue_failures_total",
			Help: "Jobs that could not be enqueued.",
		}, []string{"type"}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pm_projects_archived_total",
			Help: "Projects archived for inactivity.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pm_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pm_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.cacheErrors,
		c.jobsCompleted,
		c.jobRetries,
		c.jobsFailed,
		c.enqueueFailures,
		c.archived,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

func (c *Collector) RecordCacheHit()  { c.cacheHits.Inc() }
func (c *Collector) RecordCacheMiss() { c.cacheMisses.Inc() }

func (c *Collector) RecordCacheError(op string) {
	c.cacheErrors.WithLabelValues(op).Inc()
}

func (c *Collector) RecordJobCompleted(jobType string) {
	c.jobsCompleted.WithLabelValues(jobType).Inc()
}

func (c *Collector) RecordJobRetry(jobType string) {
	c.jobRetries.WithLabelValues(jobType).Inc()
}

func (c *Collector) RecordJobFailed(jobType string) {
	c.jobsFailed.WithLabelValues(jobType).Inc()
}

func (c *Collector) RecordEnqueueFailure(jobType string) {
	c.enqueueFailures.WithLabelValues(jobType).Inc()
}

func (c *Collector) RecordProjectsArchived(count int) {
	c.archived.Add(float64(count))
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards all measurements.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordCacheHit()                                      {}
func (Nop) RecordCacheMiss()                                     {}
func (Nop) RecordCacheError(string)                              {}
func (Nop) RecordJobCompleted(string)                            {}
func (Nop) RecordJobRetry(string)                                {}
func (Nop) RecordJobFailed(string)                               {}
func (Nop) RecordEnqueueFailure(string)                          {}
func (Nop) RecordProjectsArchived(int)                           {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
