// Package metrics provides Prometheus metrics for HeftCoder.
// Exports HTTP, orchestrator, AI provider, planning job and storage metrics.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "heftcoder"

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPResponseSize     *prometheus.HistogramVec

	// Orchestrator Metrics
	ActionsTotal       *prometheus.CounterVec
	StreamEventsTotal  *prometheus.CounterVec
	FallbackPlansTotal *prometheus.CounterVec
	StageOutcomesTotal *prometheus.CounterVec
	StreamsInFlight    prometheus.Gauge

	// AI Metrics
	AIRequestsTotal   *prometheus.CounterVec
	AIRequestDuration *prometheus.HistogramVec
	AIFallbacksTotal  *prometheus.CounterVec
	AIProviderHealth  *prometheus.GaugeVec

	// Planning job Metrics
	JobsTotal       *prometheus.CounterVec
	JobDuration     prometheus.Histogram
	JobQueueDepth   prometheus.Gauge
	JobWatchersOpen prometheus.Gauge

	// Cache Metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Storage Metrics
	PublishedPages    prometheus.Gauge
	PageVisitsTotal   prometheus.Counter
	SecretsConfigured prometheus.Gauge

	// System Metrics
	BuildInfo   *prometheus.GaugeVec
	StartupTime prometheus.Gauge
}

// Get returns the singleton Metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	// HTTP Metrics
	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint", "method"},
	)

	m.HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)

	m.HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"endpoint"},
	)

	// Orchestrator Metrics
	m.ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "actions_total",
			Help:      "Orchestrator actions by action name and outcome",
		},
		[]string{"action", "outcome"},
	)

	m.StreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "stream_events_total",
			Help:      "Events written to orchestrator event streams by type",
		},
		[]string{"type"},
	)

	m.FallbackPlansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "fallback_plans_total",
			Help:      "Heuristic plans produced because the architect reply was unusable",
		},
		[]string{"reason"},
	)

	m.StageOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "stage_outcomes_total",
			Help:      "Execution pipeline stage outcomes by agent role",
		},
		[]string{"role", "outcome"},
	)

	m.StreamsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "streams_in_flight",
			Help:      "Open orchestrator event streams",
		},
	)

	// AI Metrics
	m.AIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "requests_total",
			Help:      "Total number of agent calls by provider, model, role and status",
		},
		[]string{"provider", "model", "role", "status"},
	)

	m.AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "request_duration_seconds",
			Help:      "Agent call duration in seconds",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120, 180},
		},
		[]string{"provider", "role"},
	)

	m.AIFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "fallbacks_total",
			Help:      "Agent calls that fell back to another provider",
		},
		[]string{"from_provider", "to_provider", "reason"},
	)

	m.AIProviderHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "provider_health",
			Help:      "Provider health status (1 = healthy, 0 = unhealthy)",
		},
		[]string{"provider"},
	)

	// Planning job Metrics
	m.JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Planning jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	m.JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Planning job wall time from submit to terminal status",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120, 180},
		},
	)

	m.JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "queue_depth",
			Help:      "Planning jobs waiting for a worker",
		},
	)

	m.JobWatchersOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "watchers_open",
			Help:      "Open websocket job watchers",
		},
	)

	// Cache Metrics
	m.CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total cache hits by cache name",
		},
		[]string{"cache"},
	)

	m.CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total cache misses by cache name",
		},
		[]string{"cache"},
	)

	// Storage Metrics
	m.PublishedPages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "published_pages",
			Help:      "Number of published pages",
		},
	)

	m.PageVisitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "page_visits_total",
			Help:      "Published page views served",
		},
	)

	m.SecretsConfigured = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "secrets_configured",
			Help:      "Number of stored workspace secrets",
		},
	)

	// System Metrics
	m.BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "go_version"},
	)

	m.StartupTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "startup_time_seconds",
			Help:      "Unix timestamp of process start",
		},
	)

	return m
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(endpoint, method string, statusCode int, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, statusCodeToLabel(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(endpoint).Observe(float64(responseSize))
}

// RecordAction records the outcome of an orchestrator action.
func (m *Metrics) RecordAction(action, outcome string) {
	m.ActionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordStreamEvent counts an event written to an event stream.
func (m *Metrics) RecordStreamEvent(eventType string) {
	m.StreamEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordFallbackPlan counts a heuristic plan.
func (m *Metrics) RecordFallbackPlan(reason string) {
	m.FallbackPlansTotal.WithLabelValues(reason).Inc()
}

// RecordStage records a pipeline stage outcome.
func (m *Metrics) RecordStage(role string, ok bool) {
	outcome := "complete"
	if !ok {
		outcome = "error"
	}
	m.StageOutcomesTotal.WithLabelValues(role, outcome).Inc()
}

// RecordAIRequest records an agent call
func (m *Metrics) RecordAIRequest(provider, model, role, status string, duration time.Duration) {
	m.AIRequestsTotal.WithLabelValues(provider, model, role, status).Inc()
	m.AIRequestDuration.WithLabelValues(provider, role).Observe(duration.Seconds())
}

// RecordAIFallback records a provider fallback event
func (m *Metrics) RecordAIFallback(fromProvider, toProvider, reason string) {
	m.AIFallbacksTotal.WithLabelValues(fromProvider, toProvider, reason).Inc()
}

// SetAIProviderHealth sets the health status of an AI provider
func (m *Metrics) SetAIProviderHealth(provider string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.AIProviderHealth.WithLabelValues(provider).Set(value)
}

// RecordJobFinished records a planning job reaching a terminal status.
func (m *Metrics) RecordJobFinished(status string, duration time.Duration) {
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobDuration.Observe(duration.Seconds())
}

// RecordCacheOperation records a cache hit or miss
func (m *Metrics) RecordCacheOperation(cacheName string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheName).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cacheName).Inc()
	}
}

// SetBuildInfo sets build information
func (m *Metrics) SetBuildInfo(version, goVersion string) {
	m.BuildInfo.WithLabelValues(version, goVersion).Set(1)
	m.StartupTime.SetToCurrentTime()
}

// statusCodeToLabel converts HTTP status code to a label string
func statusCodeToLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return strconv.Itoa(code)
	}
}
