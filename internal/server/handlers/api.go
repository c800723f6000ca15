package handlers

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/schema"
	"github.com/go-chi/chi/v5"

	"github.com/contextlens/contextlens/internal/core"
	apperrors "github.com/contextlens/contextlens/internal/errors"
)

// maxBodyBytes bounds request bodies on the /v1 API.
const maxBodyBytes = 1 << 20

//go:embed schemas/*.json
var requestSchemas embed.FS

// Engine is the orchestrator surface served over HTTP.
type Engine interface {
	ProcessRequest(ctx context.Context, req core.GenerationRequest) (*core.GenerationResponse, error)
	RunBatch(ctx context.Context, tasks []*core.BackgroundTask) []*core.BackgroundTask
	CreateTask(ctx context.Context, prompt string, kind string, opts ...core.TaskOption) (*core.BackgroundTask, error)
	HealthCheck(ctx context.Context) core.HealthStatus
	GetStats() core.Stats
}

// TaskStore reads persisted tasks and claims pending ones for a run. Task
// routes answer 503 without one.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*core.BackgroundTask, error)
	ListTasks(ctx context.Context, limit int, status core.TaskStatus) ([]*core.BackgroundTask, error)
	ClaimTask(ctx context.Context, id string) error
}

// API serves the /v1 generation endpoints.
type API struct {
	Engine Engine
	Tasks  TaskStore
}

// Routes mounts the API on r.
func (a *API) Routes(r chi.Router) {
	r.Post("/generate", a.Generate)
	r.Post("/batch", a.Batch)
	r.Post("/tasks", a.CreateTask)
	r.Get("/tasks", a.ListTasks)
	r.Get("/tasks/{id}", a.GetTask)
	r.Post("/tasks/{id}/run", a.RunTask)
	r.Get("/health", a.Health)
	r.Get("/stats", a.Stats)
}

type batchTaskRequest struct {
	Prompt        string `json:"prompt"`
	Kind          string `json:"kind,omitempty"`
	SearchEnabled *bool  `json:"search_enabled,omitempty"`
}

type batchRequest struct {
	Tasks []batchTaskRequest `json:"tasks"`
}

type taskRequest struct {
	Prompt        string `json:"prompt"`
	Kind          string `json:"kind,omitempty"`
	SearchEnabled *bool  `json:"search_enabled,omitempty"`
}

// searchOption turns an optional search_enabled field into task options.
func searchOption(enabled *bool) []core.TaskOption {
	if enabled == nil {
		return nil
	}
	return []core.TaskOption{core.WithSearch(*enabled)}
}

// TaskList is the body of GET /v1/tasks and POST /v1/batch.
type TaskList struct {
	Tasks []*core.BackgroundTask `json:"tasks"`
}

// Generate runs one request through the pipeline.
func (a *API) Generate(w http.ResponseWriter, r *http.Request) {
	var req core.GenerationRequest
	if !decodeValidated(w, r, "generate-request", &req) {
		return
	}
	req.BackgroundMode = false

	resp, err := a.Engine.ProcessRequest(r.Context(), req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Batch runs every task to a terminal state. Per-task failures are reported
// inside the tasks, so the status is 200 whenever the body is valid.
func (a *API) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeValidated(w, r, "batch-request", &req) {
		return
	}

	tasks := make([]*core.BackgroundTask, 0, len(req.Tasks))
	for i, item := range req.Tasks {
		if _, err := core.ParseTaskKind(item.Kind); err != nil {
			respondWithError(w, r, validationEnvelope(fmt.Sprintf("tasks[%d].kind", i), err.Error()))
			return
		}
		task, err := a.Engine.CreateTask(r.Context(), item.Prompt, item.Kind, searchOption(item.SearchEnabled)...)
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		tasks = append(tasks, task)
	}

	writeJSON(w, http.StatusOK, TaskList{Tasks: a.Engine.RunBatch(r.Context(), tasks)})
}

// CreateTask stores a pending task for later execution.
func (a *API) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decodeValidated(w, r, "task-request", &req) {
		return
	}
	task, err := a.Engine.CreateTask(r.Context(), req.Prompt, req.Kind, searchOption(req.SearchEnabled)...)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// GetTask returns one stored task.
func (a *API) GetTask(w http.ResponseWriter, r *http.Request) {
	if !a.requireTasks(w, r) {
		return
	}
	task, err := a.Tasks.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// RunTask runs a stored pending task and returns it in its terminal state.
func (a *API) RunTask(w http.ResponseWriter, r *http.Request) {
	if !a.requireTasks(w, r) {
		return
	}
	task, err := a.Tasks.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if task.Status() != core.TaskPending {
		respondWithError(w, r, errors.NewErrorEnvelope(apperrors.CodeConflict,
			fmt.Sprintf("task %s is %s, only pending tasks can run", task.ID, task.Status())))
		return
	}
	if err := a.Tasks.ClaimTask(r.Context(), task.ID); err != nil {
		respondWithError(w, r, err)
		return
	}
	a.Engine.RunBatch(r.Context(), []*core.BackgroundTask{task})
	writeJSON(w, http.StatusOK, task)
}

// ListTasks lists stored tasks, newest first. Query: status, limit.
func (a *API) ListTasks(w http.ResponseWriter, r *http.Request) {
	if !a.requireTasks(w, r) {
		return
	}

	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondWithError(w, r, validationEnvelope("limit", "must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	status := core.TaskStatus(strings.ToLower(strings.TrimSpace(query.Get("status"))))
	switch status {
	case "", core.TaskPending, core.TaskProcessing, core.TaskCompleted, core.TaskError:
	default:
		respondWithError(w, r, validationEnvelope("status", fmt.Sprintf("unknown status %q", status)))
		return
	}

	tasks, err := a.Tasks.ListTasks(r.Context(), limit, status)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TaskList{Tasks: tasks})
}

// Health probes both gateways; 503 when either is down.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	status := a.Engine.HealthCheck(r.Context())
	code := http.StatusOK
	if !status.Overall {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// Stats reports search gateway counters and supported model ids.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Engine.GetStats())
}

func (a *API) requireTasks(w http.ResponseWriter, r *http.Request) bool {
	if a.Tasks != nil {
		return true
	}
	respondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "task store is disabled"))
	return false
}

// decodeValidated reads the body, validates it against the named schema and
// decodes it into dst. It writes the error response and returns false on failure.
func decodeValidated(w http.ResponseWriter, r *http.Request, schemaName string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, r, errors.NewErrorEnvelope("INVALID_INPUT", "request body could not be read"))
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		respondWithError(w, r, errors.NewErrorEnvelope("INVALID_INPUT", "request body is required"))
		return false
	}
	if !json.Valid(body) {
		respondWithError(w, r, errors.NewErrorEnvelope("INVALID_INPUT", "request body is not valid JSON"))
		return false
	}

	raw, err := requestSchemas.ReadFile("schemas/" + schemaName + ".schema.json")
	if err != nil {
		respondWithError(w, r, fmt.Errorf("load %s schema: %w", schemaName, err))
		return false
	}
	validator, err := schema.NewValidator(raw)
	if err != nil {
		respondWithError(w, r, fmt.Errorf("compile %s schema: %w", schemaName, err))
		return false
	}
	diagnostics, err := validator.ValidateJSON(body)
	if err != nil {
		respondWithError(w, r, err)
		return false
	}
	if len(diagnostics) > 0 {
		messages := make([]string, 0, len(diagnostics))
		for _, diag := range diagnostics {
			messages = append(messages, diag.Message)
		}
		envelope := errors.NewErrorEnvelope("VALIDATION_FAILED", "request body failed validation").
			WithDetails(map[string]interface{}{"violations": messages})
		respondWithError(w, r, envelope)
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		respondWithError(w, r, errors.NewErrorEnvelope("INVALID_INPUT", "request body does not match the expected shape"))
		return false
	}
	return true
}

func validationEnvelope(field, message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("VALIDATION_FAILED", field+": "+message).
		WithDetails(map[string]interface{}{"field": field})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
