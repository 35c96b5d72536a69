package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-case-api/internal/models"
)

// MetricsService owns the Prometheus registry for HTTP, cache and alert engine instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheLookups    *prometheus.CounterVec
	alertRuns       *prometheus.CounterVec
	alertDuration   prometheus.Observer
	alertCreated    *prometheus.CounterVec
	alertReminders  prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	alertRunCount        uint64
	alertCreatedCount    uint64
	alertReminderCount   uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})
	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
	})
	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	alertRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_runs_total",
		Help: "Alert engine runs by outcome",
	}, []string{"outcome"})
	alertDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "alert_run_duration_seconds",
		Help:    "Duration of alert engine runs",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
	alertCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_cases_created_total",
		Help: "Automated cases opened by rule",
	}, []string{"rule"})
	// Every rule reports a series from startup, zero until it fires.
	for _, rule := range models.AlertRuleIDs {
		alertCreated.WithLabelValues(rule)
	}
	alertReminders := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alert_reminders_sent_total",
		Help: "Reminders sent for stale cases",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheLookups,
		alertRuns, alertDuration, alertCreated, alertReminders, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheLookups:    cacheLookups,
		alertRuns:       alertRuns,
		alertDuration:   alertDuration,
		alertCreated:    alertCreated,
		alertReminders:  alertReminders,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache lookup and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	m.cacheHitRatio.Set(float64(hits) / float64(total))
}

// ObserveCacheWrite tracks cache write latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveAlertRun records one alert engine invocation.
func (m *MetricsService) ObserveAlertRun(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.alertRuns.WithLabelValues(outcome).Inc()
	m.alertDuration.Observe(duration.Seconds())
	atomic.AddUint64(&m.alertRunCount, 1)
}

// RecordAlertCaseCreated counts a case opened by rule.
func (m *MetricsService) RecordAlertCaseCreated(rule string) {
	if m == nil {
		return
	}
	m.alertCreated.WithLabelValues(rule).Inc()
	atomic.AddUint64(&m.alertCreatedCount, 1)
}

// RecordReminderSent counts a stale-case reminder.
func (m *MetricsService) RecordReminderSent() {
	if m == nil {
		return
	}
	m.alertReminders.Inc()
	atomic.AddUint64(&m.alertReminderCount, 1)
}

// Snapshot returns aggregated counters for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            ratio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		AlertRuns:                atomic.LoadUint64(&m.alertRunCount),
		AlertCasesCreated:        atomic.LoadUint64(&m.alertCreatedCount),
		AlertRemindersSent:       atomic.LoadUint64(&m.alertReminderCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
