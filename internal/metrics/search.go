package metrics

import (
	"time"

	"github.com/tradelens/tradelens/internal/core"
	"github.com/tradelens/tradelens/internal/observability"
)

// Search engine metric names. The exporter prefixes every name with its
// namespace, so search_total is scraped as tradelens_search_total.
const (
	SearchTotal       = "search_total"
	SearchDuration    = "search_duration_ms"
	RemoteCallTotal   = "remote_call_total"
	CacheLookupTotal  = "cache_lookup_total"
	LimiterBackoff    = "limiter_backoff_ms"
	LimiterIntervalMs = "limiter_interval_ms"
	HistoryWriteTotal = "history_write_total"

	ServerStartTime = "server_start_time_seconds"
)

// Recorder forwards orchestrator telemetry to the global telemetry system.
// The zero value is ready to use and is a no-op while telemetry is disabled.
type Recorder struct{}

// CacheLookup counts result cache hits and misses.
func (Recorder) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(CacheLookupTotal, 1, map[string]string{"result": result})
	}
}

// RemoteCall counts one trade API call by endpoint class and outcome.
func (Recorder) RemoteCall(endpoint string, outcome core.OutcomeKind) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RemoteCallTotal,
			1,
			map[string]string{
				"endpoint": endpoint,
				"outcome":  string(outcome),
			},
		)
	}
}

// LimiterBackoff records the wait imposed after a rejection.
func (Recorder) LimiterBackoff(endpoint string, wait time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(LimiterBackoff, wait, map[string]string{"endpoint": endpoint})
	}
}

// LimiterInterval publishes the limiter's current pacing interval.
func (Recorder) LimiterInterval(endpoint string, interval time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			LimiterIntervalMs,
			float64(interval.Milliseconds()),
			map[string]string{"endpoint": endpoint},
		)
	}
}

// SearchCompleted records one finished search session.
func (Recorder) SearchCompleted(result *core.SearchResult, elapsed time.Duration) {
	if result == nil || observability.TelemetrySystem == nil {
		return
	}
	tags := map[string]string{
		"reason": result.Reason,
		"rarity": string(result.Rarity),
	}
	_ = observability.TelemetrySystem.Counter(SearchTotal, 1, tags)
	_ = observability.TelemetrySystem.Histogram(SearchDuration, elapsed, map[string]string{"reason": result.Reason})
}

// RecordHistoryWrite counts scan history writes.
func RecordHistoryWrite(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(HistoryWriteTotal, 1, map[string]string{"status": status})
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}
