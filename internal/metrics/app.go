package metrics

import (
	"time"

	"github.com/contextlens/contextlens/internal/observability"
)

// Pipeline and server metric names.
var (
	GenerationsTotal     = "contextlens_generations_total"
	GenerationDuration   = "contextlens_generation_duration_ms"
	SearchQueriesTotal   = "contextlens_search_queries_total"
	SearchQueryDuration  = "contextlens_search_query_duration_ms"
	SearchCacheHitsTotal = "contextlens_search_cache_hits_total"
	RequestsTotal        = "contextlens_requests_total"
	TaskTransitionsTotal = "contextlens_task_transitions_total"
	ActiveTasks          = "contextlens_active_tasks"
	HealthCheckTotal     = "app_health_check_total"
	HealthCheckDuration  = "app_health_check_duration_ms"
	ServerStartTime      = "app_server_start_time_seconds"
	ServerUptime         = "app_server_uptime_seconds"
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordGeneration records one Model Gateway call.
func RecordGeneration(modelID, provider string, success bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(GenerationsTotal, 1, map[string]string{
		"model_id": modelID,
		"provider": provider,
		"status":   status(success),
	})
	_ = observability.TelemetrySystem.Histogram(GenerationDuration, duration, map[string]string{
		"model_id": modelID,
	})
}

// RecordSearchQuery records one Search Gateway call.
func RecordSearchQuery(backend string, success bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(SearchQueriesTotal, 1, map[string]string{
		"backend": backend,
		"status":  status(success),
	})
	_ = observability.TelemetrySystem.Histogram(SearchQueryDuration, duration, map[string]string{
		"backend": backend,
	})
}

// RecordSearchCacheHit records a search answered from cache.
func RecordSearchCacheHit(tier string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(SearchCacheHitsTotal, 1, map[string]string{"tier": tier})
	}
}

// RecordRequest records a processed generation request.
func RecordRequest(searchUsed, success bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	used := "false"
	if searchUsed {
		used = "true"
	}
	_ = observability.TelemetrySystem.Counter(RequestsTotal, 1, map[string]string{
		"search_used": used,
		"status":      status(success),
	})
}

// RecordTaskTransition records a background task entering a status.
func RecordTaskTransition(taskStatus string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(TaskTransitionsTotal, 1, map[string]string{"status": taskStatus})
	}
}

// SetActiveTasks sets the number of tasks currently processing.
func SetActiveTasks(count int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ActiveTasks, float64(count), nil)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	state := "healthy"
	if !healthy {
		state = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": state,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
		"check": checkName,
	})
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerUptime, float64(seconds), nil)
	}
}
