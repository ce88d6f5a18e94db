package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-portal/internal/apiclient"
)

func TestMetricsSnapshotAggregates(t *testing.T) {
	m := NewMetricsService()

	m.ObserveHTTPRequest(http.MethodGet, "/enrollments", http.StatusOK, 20*time.Millisecond)
	m.ObserveUpstreamCall(http.MethodGet, "/enrollments/student/{studentId}", http.StatusOK, 10*time.Millisecond)
	m.ObserveUpstreamCall(http.MethodGet, "/enrollments/student/{studentId}", 0, 30*time.Millisecond)
	m.RecordRefresh(RefreshSucceeded)
	m.RecordRefresh(RefreshFailed)
	m.RecordAuthRetry(apiclient.RetryTerminated)
	m.RecordStaleLoadDiscarded()
	m.SetCachedEnrollments(3)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RequestsTotal)
	assert.InDelta(t, 20.0, snap.AverageRequestDurationMs, 0.001)
	assert.Equal(t, uint64(2), snap.UpstreamCallsTotal)
	assert.Equal(t, uint64(1), snap.UpstreamFailuresTotal)
	assert.InDelta(t, 20.0, snap.AverageUpstreamDurationMs, 0.001)
	assert.Equal(t, uint64(2), snap.TokenRefreshesTotal)
	assert.Equal(t, uint64(1), snap.TokenRefreshFailures)
	assert.Equal(t, uint64(1), snap.SessionsTerminated)
	assert.Equal(t, uint64(1), snap.StaleLoadsDiscarded)
	assert.Equal(t, int64(3), snap.CachedEnrollments)
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.RecordRefresh(RefreshSucceeded)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `token_refresh_total{outcome="succeeded"} 1`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordRefresh(RefreshFailed)
	m.SetCachedEnrollments(1)
	assert.Equal(t, http.StatusServiceUnavailable, func() int {
		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec.Code
	}())
}
