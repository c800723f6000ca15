package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/observability"
)

// statusRecorder captures the status code and body size written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Flush keeps streaming responses (MCP over HTTP) working through the wrapper.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// knownEndpoints label requests that reach handlers outside chi routing.
var knownEndpoints = map[string]string{
	"/":               "/",
	"/health":         "/health/*",
	"/health/live":    "/health/*",
	"/health/ready":   "/health/*",
	"/health/startup": "/health/*",
	"/version":        "/version",
	"/metrics":        "/metrics",
	"/mcp":            "/mcp",
	"/v1/generate":    "/v1/generate",
	"/v1/batch":       "/v1/batch",
	"/v1/tasks":       "/v1/tasks",
	"/v1/health":      "/v1/health",
	"/v1/stats":       "/v1/stats",
}

// getEndpointPattern returns a low-cardinality label for r: the chi route
// pattern when routed, otherwise a fixed label per known path.
func getEndpointPattern(r *http.Request) string {
	if pattern := chi.RouteContext(r.Context()).RoutePattern(); pattern != "" {
		return pattern
	}
	if label, ok := knownEndpoints[r.URL.Path]; ok {
		return label
	}
	if strings.HasPrefix(r.URL.Path, "/v1/tasks/") {
		return "/v1/tasks/{id}"
	}
	return "/unknown"
}

// quietEndpoints are polled by orchestrators and logged at debug.
var quietEndpoints = map[string]bool{
	"/health/*": true,
	"/metrics":  true,
}

// RequestMetrics emits request count, latency, sizes and error counters, and
// logs one line per request.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys := observability.TelemetrySystem
		if sys == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		endpoint := getEndpointPattern(r)
		status := strconv.Itoa(rec.status)
		labels := map[string]string{"method": r.Method, "endpoint": endpoint, "status": status}
		sizeLabels := map[string]string{"method": r.Method, "endpoint": endpoint}

		requestSize := r.ContentLength
		if requestSize < 0 {
			requestSize = 0
		}

		_ = sys.Counter("http_requests_total", 1, labels)
		_ = sys.Histogram("http_request_duration_ms", elapsed, labels)
		_ = sys.Gauge("http_request_size_bytes", float64(requestSize), sizeLabels)
		_ = sys.Gauge("http_response_size_bytes", float64(rec.written), sizeLabels)

		if rec.status >= http.StatusBadRequest {
			errorType := "client_error"
			if rec.status >= http.StatusInternalServerError {
				errorType = "server_error"
			}
			_ = sys.Counter("http_errors_total", 1, map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"status":     status,
				"error_type": errorType,
			})
		}

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", endpoint),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
			zap.Int64("request_size", requestSize),
			zap.Int64("response_size", rec.written),
			zap.String("request_id", GetRequestID(r.Context())),
		}
		switch {
		case rec.status >= http.StatusInternalServerError:
			observability.Warn("HTTP request failed", fields...)
		case quietEndpoints[endpoint]:
			observability.Debug("HTTP request completed", fields...)
		default:
			observability.Info("HTTP request completed", fields...)
		}
	})
}
