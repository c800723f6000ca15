package metrics

import (
	"strconv"

	"github.com/contextlens/contextlens/internal/observability"
)

// Metric names
const (
	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
	StageErrorsTotalName = "contextlens_stage_errors_total"
)

// RecordError records an error with code and status
func RecordError(errorCode string, httpStatus int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(ErrorsTotalName, 1, map[string]string{
			"error_code":  errorCode,
			"http_status": strconv.Itoa(httpStatus),
		})
	}
}

// RecordPanic records a recovered panic; source is "http" or "task".
func RecordPanic(source string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(PanicsTotalName, 1, map[string]string{"source": source})
	}
}

// RecordErrorByEndpoint records an error by endpoint
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(ErrorsByEndpointName, 1, map[string]string{
			"endpoint":   endpoint,
			"error_code": errorCode,
		})
	}
}

// RecordStageError records a pipeline failure by stage (augmentation or generation).
func RecordStageError(stage, code string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(StageErrorsTotalName, 1, map[string]string{
			"stage": stage,
			"code":  code,
		})
	}
}
