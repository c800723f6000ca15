package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

type blockingChecker struct{}

func (blockingChecker) CheckHealth(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestHealthHandlerReturnsHealthyStatus(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("ok", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "healthy", resp.Checks["ok"])
}

func TestHealthHandlerReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("store", stubChecker{err: errors.New("down")})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp struct {
		Error struct {
			Code    string                 `json:"code"`
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)
	assert.Equal(t, "aggregate", resp.Error.Details["probe"])

	checks, ok := resp.Error.Details["checks"].(map[string]interface{})
	require.True(t, ok, "expected checks in error details")
	assert.Equal(t, "unhealthy", checks["store"])
}

func TestHealthHandlerDegradedCheckStillServes(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("gateways", stubChecker{err: fmt.Errorf("%w: search gateway unhealthy", ErrDegraded)})
	manager.RegisterChecker("telemetry", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "degraded", resp.Checks["gateways"])
	assert.Equal(t, "healthy", resp.Checks["telemetry"])
}

func TestRunHealthChecksMarksSlowCheckersAsTimeout(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("slow", blockingChecker{})
	manager.RegisterChecker("fast", stubChecker{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	checks := manager.runHealthChecks(ctx)
	assert.Equal(t, "timeout", checks["slow"])
	assert.Equal(t, "degraded", manager.determineOverallStatus(checks))
}

func TestProbeHandlersReportProbeName(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("ok", stubChecker{})

	cases := map[string]http.HandlerFunc{
		"live":    manager.LivenessHandler,
		"ready":   manager.ReadinessHandler,
		"startup": manager.StartupHandler,
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, "/health/"+name, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			var resp ProbeResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, name, resp.Probe)
			assert.Equal(t, "healthy", resp.Status)
		})
	}
}

func TestGlobalHandlersWithoutManager(t *testing.T) {
	previous := globalHealthManager
	globalHealthManager = nil
	t.Cleanup(func() { globalHealthManager = previous })

	rec := httptest.NewRecorder()
	ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDetermineOverallStatus(t *testing.T) {
	manager := NewHealthManager("dev")

	assert.Equal(t, "healthy", manager.determineOverallStatus(nil))
	assert.Equal(t, "degraded", manager.determineOverallStatus(map[string]string{"store": "timeout"}))
	assert.Equal(t, "unhealthy", manager.determineOverallStatus(map[string]string{
		"store":    "degraded",
		"gateways": "unhealthy",
	}))
}
