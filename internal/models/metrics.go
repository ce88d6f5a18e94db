package models

import "time"

// AgentMetrics is a point-in-time view of the agent's instrumentation.
type AgentMetrics struct {
	RequestsTotal             uint64    `json:"requests_total"`
	AverageRequestDurationMs  float64   `json:"average_request_duration_ms"`
	UpstreamCallsTotal        uint64    `json:"upstream_calls_total"`
	UpstreamFailuresTotal     uint64    `json:"upstream_failures_total"`
	AverageUpstreamDurationMs float64   `json:"average_upstream_duration_ms"`
	TokenRefreshesTotal       uint64    `json:"token_refreshes_total"`
	TokenRefreshFailures      uint64    `json:"token_refresh_failures"`
	AuthRetriesTotal          uint64    `json:"auth_retries_total"`
	SessionsTerminated        uint64    `json:"sessions_terminated"`
	StaleLoadsDiscarded       uint64    `json:"stale_loads_discarded"`
	CachedEnrollments         int64     `json:"cached_enrollments"`
	Goroutines                int       `json:"goroutines"`
	GeneratedAt               time.Time `json:"generated_at"`
}
