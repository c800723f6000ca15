package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlens/contextlens/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })
	return collector
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestMetricsEmitsRequestAndSizeMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	h := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":"ok"}`))
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"prompt":"hi"}`))
	rec := serve(h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	for _, name := range []string{
		"http_requests_total",
		"http_request_duration_ms",
		"http_request_size_bytes",
		"http_response_size_bytes",
	} {
		assert.Greater(t, collector.CountMetricsByName(name), 0, name)
	}
	assert.Zero(t, collector.CountMetricsByName("http_errors_total"))
}

func TestRequestMetricsCountsErrors(t *testing.T) {
	collector := setupTelemetry(t)

	h := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	serve(h, httptest.NewRequest(http.MethodPost, "/v1/generate", nil))

	assert.Greater(t, collector.CountMetricsByName("http_errors_total"), 0)
}

func TestRequestMetricsPassesThroughWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	h := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	assert.Equal(t, http.StatusAccepted, serve(h, httptest.NewRequest(http.MethodGet, "/v1/stats", nil)).Code)
}

func TestStatusRecorderForwardsFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
	_, _ = w.Write([]byte("event: message\n\n"))
	w.Flush()

	assert.True(t, rec.Flushed)
	assert.EqualValues(t, len("event: message\n\n"), w.written)
}

func TestGetEndpointPattern(t *testing.T) {
	cases := map[string]string{
		"/health":                           "/health/*",
		"/health/ready":                     "/health/*",
		"/version":                          "/version",
		"/metrics":                          "/metrics",
		"/v1/generate":                      "/v1/generate",
		"/v1/tasks":                         "/v1/tasks",
		"/v1/tasks/task_1700000000000_abcd": "/v1/tasks/{id}",
		"/mcp":                              "/mcp",
		"/api/users/123":                    "/unknown",
		"/":                                 "/",
	}
	for path, want := range cases {
		assert.Equal(t, want, getEndpointPattern(httptest.NewRequest(http.MethodGet, path, nil)), path)
	}
}

func TestGetEndpointPatternUsesChiRoute(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Get("/v1/tasks/{id}", func(w http.ResponseWriter, req *http.Request) {
		got = getEndpointPattern(req)
	})
	serve(r, httptest.NewRequest(http.MethodGet, "/v1/tasks/task_1", nil))

	assert.Equal(t, "/v1/tasks/{id}", got)
}

func TestRequestIDEchoesValidHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := serve(h, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDReplacesInvalidHeader(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, bad := range []string{"", "has space", strings.Repeat("x", maxRequestIDLength+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if bad != "" {
			req.Header.Set(RequestIDHeader, bad)
		}
		got := serve(h, req).Header().Get(RequestIDHeader)
		assert.NotEqual(t, bad, got)
		assert.Len(t, got, 36, "expected a generated UUID")
	}
}

func TestRecoveryWritesInternalErrorEnvelope(t *testing.T) {
	collector := setupTelemetry(t)

	h := RequestID(Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", nil)
	req.Header.Set(RequestIDHeader, "panic-req")
	rec := serve(h, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body panicResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Equal(t, "panic-req", body.Error.RequestID)
	assert.NotContains(t, body.Error.Message, "boom")
	assert.Greater(t, collector.CountMetricsByName("panics_total"), 0)
}
