package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-adp-portal/internal/apiclient"
	"github.com/noah-isme/sma-adp-portal/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	upstreamTotal    *prometheus.CounterVec
	refreshTotal     *prometheus.CounterVec
	authRetryTotal   *prometheus.CounterVec
	staleDiscarded   prometheus.Counter
	reconcileTotal   *prometheus.CounterVec
	cachedRecords    prometheus.Gauge

	requestCount          uint64
	requestDurationTotal  uint64
	upstreamCount         uint64
	upstreamDurationTotal uint64
	upstreamFailures      uint64
	refreshCount          uint64
	refreshFailures       uint64
	authRetryCount        uint64
	terminatedCount       uint64
	staleDiscardCount     uint64
	cachedRecordCount     int64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of agent HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of agent HTTP requests",
	}, []string{"method", "path", "status"})

	upstreamDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_request_duration_seconds",
		Help:    "Duration of calls to the enrollment API",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	upstreamTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Total calls to the enrollment API",
	}, []string{"method", "endpoint", "status"})

	refreshTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "token_refresh_total",
		Help: "Access token refresh flights by outcome",
	}, []string{"outcome"})

	authRetryTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_retry_total",
		Help: "Requests resent after an authorization failure, by outcome",
	}, []string{"outcome"})

	staleDiscarded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_stale_loads_discarded_total",
		Help: "Enrollment list responses dropped because a newer load was already applied",
	})

	reconcileTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_reconcile_total",
		Help: "Background enrollment reloads by outcome",
	}, []string{"outcome"})

	cachedRecords := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "enrollment_cached_records",
		Help: "Enrollment records currently cached",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, upstreamDuration, upstreamTotal, refreshTotal, authRetryTotal, staleDiscarded, reconcileTotal, cachedRecords, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		upstreamDuration: upstreamDuration,
		upstreamTotal:    upstreamTotal,
		refreshTotal:     refreshTotal,
		authRetryTotal:   authRetryTotal,
		staleDiscarded:   staleDiscarded,
		reconcileTotal:   reconcileTotal,
		cachedRecords:    cachedRecords,
	}
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

// ObserveHTTPRequest records agent request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveUpstreamCall records one call to the enrollment API. Status 0 means no response.
func (m *MetricsService) ObserveUpstreamCall(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.upstreamDuration.WithLabelValues(method, endpoint, labelStatus).Observe(duration.Seconds())
	m.upstreamTotal.WithLabelValues(method, endpoint, labelStatus).Inc()
	atomic.AddUint64(&m.upstreamCount, 1)
	atomic.AddUint64(&m.upstreamDurationTotal, uint64(duration.Nanoseconds()))
	if status == 0 || status >= http.StatusInternalServerError {
		atomic.AddUint64(&m.upstreamFailures, 1)
	}
}

// RecordRefresh counts a refresh flight outcome.
func (m *MetricsService) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.refreshCount, 1)
	if outcome == RefreshFailed {
		atomic.AddUint64(&m.refreshFailures, 1)
	}
}

// RecordAuthRetry counts a resend after an authorization failure.
func (m *MetricsService) RecordAuthRetry(outcome string) {
	if m == nil {
		return
	}
	m.authRetryTotal.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.authRetryCount, 1)
	if outcome == apiclient.RetryTerminated {
		atomic.AddUint64(&m.terminatedCount, 1)
	}
}

// RecordStaleLoadDiscarded counts a superseded enrollment list response.
func (m *MetricsService) RecordStaleLoadDiscarded() {
	if m == nil {
		return
	}
	m.staleDiscarded.Inc()
	atomic.AddUint64(&m.staleDiscardCount, 1)
}

// RecordReconcile counts a background reload outcome.
func (m *MetricsService) RecordReconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(outcome).Inc()
}

// SetCachedEnrollments publishes the enrollment cache size.
func (m *MetricsService) SetCachedEnrollments(n int) {
	if m == nil {
		return
	}
	m.cachedRecords.Set(float64(n))
	atomic.StoreInt64(&m.cachedRecordCount, int64(n))
}

// Snapshot returns aggregated metrics suitable for the agent status endpoint.
func (m *MetricsService) Snapshot() models.AgentMetrics {
	if m == nil {
		return models.AgentMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	upstream := atomic.LoadUint64(&m.upstreamCount)
	upstreamDuration := atomic.LoadUint64(&m.upstreamDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgUpstreamMs float64
	if upstream > 0 {
		avgUpstreamMs = float64(upstreamDuration) / float64(upstream) / float64(time.Millisecond)
	}

	return models.AgentMetrics{
		RequestsTotal:             requests,
		AverageRequestDurationMs:  avgRequestMs,
		UpstreamCallsTotal:        upstream,
		UpstreamFailuresTotal:     atomic.LoadUint64(&m.upstreamFailures),
		AverageUpstreamDurationMs: avgUpstreamMs,
		TokenRefreshesTotal:       atomic.LoadUint64(&m.refreshCount),
		TokenRefreshFailures:      atomic.LoadUint64(&m.refreshFailures),
		AuthRetriesTotal:          atomic.LoadUint64(&m.authRetryCount),
		SessionsTerminated:        atomic.LoadUint64(&m.terminatedCount),
		StaleLoadsDiscarded:       atomic.LoadUint64(&m.staleDiscardCount),
		CachedEnrollments:         atomic.LoadInt64(&m.cachedRecordCount),
		Goroutines:                runtime.NumGoroutine(),
		GeneratedAt:               time.Now().UTC(),
	}
}
