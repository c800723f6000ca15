package errors

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/metrics"
	"github.com/contextlens/contextlens/internal/observability"
)

// HTTPErrorDetail is the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail as {"error": {...}}.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError classifies err and writes it as JSON.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, FromError(requestContext(r), err))
}

// RespondWithEnvelope writes envelope with the status its code maps to,
// then logs it and counts it.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}
	envelope = withCorrelation(envelope, requestContext(r))
	status := HTTPStatusFromEnvelope(envelope)

	logEnvelope(envelope, status)
	metrics.RecordError(envelope.Code, status)
	if r != nil {
		metrics.RecordErrorByEndpoint(r.URL.Path, envelope.Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: HTTPErrorDetail{
		Code:      envelope.Code,
		Message:   envelope.Message,
		Details:   responseDetails(envelope),
		RequestID: envelope.CorrelationID,
	}})
}

func requestContext(r *http.Request) context.Context {
	if r == nil {
		return context.Background()
	}
	return r.Context()
}

// withCorrelation fills a missing correlation id from the request, or a
// generated "fallback-" id outside a request.
func withCorrelation(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		envelope = EnsureEnvelope(nil)
	}
	if envelope.CorrelationID != "" {
		return envelope
	}
	id := requestID(ctx)
	if id == "" {
		id = "fallback-" + errors.GenerateCorrelationID()
	}
	return envelope.WithCorrelationID(id)
}

// responseDetails merges details with context; details win on key clashes.
func responseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if len(envelope.Details) == 0 && len(envelope.Context) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(envelope.Details)+len(envelope.Context))
	for key, value := range envelope.Context {
		out[key] = value
	}
	for key, value := range envelope.Details {
		out[key] = value
	}
	return out
}

func logEnvelope(envelope *errors.ErrorEnvelope, status int) {
	log := observability.ServerLogger
	if log == nil {
		return
	}

	fields := make([]zap.Field, 0, len(envelope.Context)+4)
	fields = append(fields,
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", status),
		zap.String("request_id", envelope.CorrelationID))
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	switch {
	case envelope.Severity == errors.SeverityCritical, envelope.Severity == errors.SeverityHigh:
		log.Error(envelope.Message, fields...)
	case envelope.Severity == errors.SeverityMedium, status >= http.StatusInternalServerError:
		log.Warn(envelope.Message, fields...)
	default:
		log.Info(envelope.Message, fields...)
	}
}
