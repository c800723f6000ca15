package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlens/contextlens/internal/core"
	apperrors "github.com/contextlens/contextlens/internal/errors"
	"github.com/contextlens/contextlens/internal/server/handlers"
)

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

type stubEngine struct{}

func (stubEngine) ProcessRequest(ctx context.Context, req core.GenerationRequest) (*core.GenerationResponse, error) {
	return &core.GenerationResponse{Content: "echo: " + req.Prompt, ModelID: "quality"}, nil
}

func (stubEngine) RunBatch(ctx context.Context, tasks []*core.BackgroundTask) []*core.BackgroundTask {
	return tasks
}

func (stubEngine) CreateTask(ctx context.Context, prompt string, kind string, opts ...core.TaskOption) (*core.BackgroundTask, error) {
	return core.NewTask(prompt, core.TaskKind(kind), testTime, opts...), nil
}

func (stubEngine) HealthCheck(ctx context.Context) core.HealthStatus {
	return core.NewHealthStatus(true, true, testTime)
}

func (stubEngine) GetStats() core.Stats {
	return core.Stats{SupportedModelIDs: []string{"quality"}}
}

func TestServerMountsAPIAndMCP(t *testing.T) {
	mcpHit := false
	srv := New("127.0.0.1", 0, Deps{
		API: &handlers.API{Engine: stubEngine{}},
		MCP: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mcpHit = true
			w.WriteHeader(http.StatusAccepted)
		}),
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"prompt":"hi"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echo: hi")

	req = httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, mcpHit)
}

func TestServerWithoutAPIDoesNotMountV1(t *testing.T) {
	srv := New("127.0.0.1", 0, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestHandleErrorSkipsDisconnectedClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/v1/generate", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	HandleError(rec, req, apperrors.NewInternalError("generation aborted"))

	assert.Empty(t, rec.Body.String())
}

func TestServerRecoversPanickingRoute(t *testing.T) {
	srv := New("127.0.0.1", 0, Deps{})
	srv.router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServerOptionalRoutes(t *testing.T) {
	get := func(srv *Server, path string) int {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	plain := New("127.0.0.1", 0, Deps{})
	assert.Equal(t, http.StatusNotFound, get(plain, "/debug/pprof/"))

	hidden := New("127.0.0.1", 0, Deps{HideHealth: true, Pprof: true})
	assert.Equal(t, http.StatusNotFound, get(hidden, "/health/live"))
	assert.Equal(t, http.StatusOK, get(hidden, "/debug/pprof/"))
}

func TestServerListenerSettings(t *testing.T) {
	srv := New("::1", 8081, Deps{WriteTimeout: time.Minute})
	assert.Equal(t, "[::1]:8081", srv.Addr())
	assert.Equal(t, time.Minute, srv.http.WriteTimeout)
	assert.Equal(t, defaultReadTimeout, srv.http.ReadTimeout)
	assert.Equal(t, defaultIdleTimeout, srv.http.IdleTimeout)
}
