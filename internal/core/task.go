package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskKind tags the intent of a background task.
type TaskKind string

const (
	TaskKindResearch           TaskKind = "research"
	TaskKindCodeGeneration     TaskKind = "code-generation"
	TaskKindAnalysis           TaskKind = "analysis"
	TaskKindSearchAndSummarize TaskKind = "search-and-summarize"
)

// ParseTaskKind normalizes a kind; empty input yields research.
func ParseTaskKind(raw string) (TaskKind, error) {
	switch TaskKind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", TaskKindResearch:
		return TaskKindResearch, nil
	case TaskKindCodeGeneration:
		return TaskKindCodeGeneration, nil
	case TaskKindAnalysis:
		return TaskKindAnalysis, nil
	case TaskKindSearchAndSummarize:
		return TaskKindSearchAndSummarize, nil
	default:
		return "", fmt.Errorf("unknown task kind %q", raw)
	}
}

// TaskStatus is derived from a task's lifecycle position.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskError      TaskStatus = "error"
)

// IsTerminal reports whether no further transition is possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskError
}

// TaskOutcome is the terminal result of a task: either *TaskSucceeded or *TaskFailed.
type TaskOutcome interface {
	taskOutcome()
}

// TaskSucceeded holds the response of a completed task.
type TaskSucceeded struct {
	Response *GenerationResponse
}

// TaskFailed holds the error message of a failed task.
type TaskFailed struct {
	Message string
}

func (*TaskSucceeded) taskOutcome() {}
func (*TaskFailed) taskOutcome()    {}

// BackgroundTask is a unit of batch work. Lifecycle fields are only changed
// through Start, Complete and Fail, under mu, so a task never holds both a
// result and an error and starts at most once.
type BackgroundTask struct {
	ID            string
	Kind          TaskKind
	Prompt        string
	SearchEnabled bool
	CreatedAt     time.Time

	mu          sync.Mutex
	started     bool
	outcome     TaskOutcome
	completedAt time.Time
}

// TaskOption adjusts a task before it is first persisted.
type TaskOption func(*BackgroundTask)

// WithSearch sets whether the task may use web search.
func WithSearch(enabled bool) TaskOption {
	return func(t *BackgroundTask) { t.SearchEnabled = enabled }
}

// NewTask creates a pending task with a fresh identifier. Search is on
// unless an option turns it off.
func NewTask(prompt string, kind TaskKind, now time.Time, opts ...TaskOption) *BackgroundTask {
	if kind == "" {
		kind = TaskKindResearch
	}
	task := &BackgroundTask{
		ID:            NewTaskID(now),
		Kind:          kind,
		Prompt:        prompt,
		SearchEnabled: true,
		CreatedAt:     now,
	}
	for _, opt := range opts {
		opt(task)
	}
	return task
}

// NewTaskID returns "task_<unix millis>_<random>".
func NewTaskID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("task_%d_%s", now.UnixMilli(), suffix)
}

// Status derives the status from the lifecycle position.
func (t *BackgroundTask) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status()
}

func (t *BackgroundTask) status() TaskStatus {
	switch t.outcome.(type) {
	case *TaskSucceeded:
		return TaskCompleted
	case *TaskFailed:
		return TaskError
	}
	if t.started {
		return TaskProcessing
	}
	return TaskPending
}

// Outcome returns the terminal outcome, or nil while the task is live.
func (t *BackgroundTask) Outcome() TaskOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Result returns the response when the task completed.
func (t *BackgroundTask) Result() (*GenerationResponse, bool) {
	if ok, is := t.Outcome().(*TaskSucceeded); is {
		return ok.Response, true
	}
	return nil, false
}

// ErrorMessage returns the failure message when the task errored.
func (t *BackgroundTask) ErrorMessage() (string, bool) {
	if failed, is := t.Outcome().(*TaskFailed); is {
		return failed.Message, true
	}
	return "", false
}

// CompletedAt returns the terminal timestamp, or nil while the task is live.
func (t *BackgroundTask) CompletedAt() *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completedAtLocked()
}

func (t *BackgroundTask) completedAtLocked() *time.Time {
	if t.outcome == nil {
		return nil
	}
	at := t.completedAt
	return &at
}

// Start moves a pending task to processing. Of several concurrent callers
// exactly one succeeds.
func (t *BackgroundTask) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.outcome != nil {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.status(), TaskProcessing)
	}
	t.started = true
	return nil
}

// Complete moves a processing task to completed.
func (t *BackgroundTask) Complete(resp *GenerationResponse, at time.Time) error {
	if resp == nil {
		return fmt.Errorf("%w: completed task requires a response", ErrInvalidTransition)
	}
	return t.finish(&TaskSucceeded{Response: resp}, at)
}

// Fail moves a processing task to error.
func (t *BackgroundTask) Fail(message string, at time.Time) error {
	if strings.TrimSpace(message) == "" {
		message = "unknown error"
	}
	return t.finish(&TaskFailed{Message: message}, at)
}

func (t *BackgroundTask) finish(outcome TaskOutcome, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || t.outcome != nil {
		target := TaskCompleted
		if _, failed := outcome.(*TaskFailed); failed {
			target = TaskError
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.status(), target)
	}
	t.outcome = outcome
	t.completedAt = at
	return nil
}

// TaskSnapshot is the flat, serializable view of a task.
type TaskSnapshot struct {
	ID            string              `json:"id"`
	Kind          TaskKind            `json:"kind"`
	Prompt        string              `json:"prompt"`
	SearchEnabled bool                `json:"search_enabled"`
	Status        TaskStatus          `json:"status"`
	Result        *GenerationResponse `json:"result,omitempty"`
	Error         string              `json:"error,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
}

// Snapshot returns a consistent flat view of the task.
func (t *BackgroundTask) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := TaskSnapshot{
		ID:            t.ID,
		Kind:          t.Kind,
		Prompt:        t.Prompt,
		SearchEnabled: t.SearchEnabled,
		Status:        t.status(),
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.completedAtLocked(),
	}
	switch outcome := t.outcome.(type) {
	case *TaskSucceeded:
		snap.Result = outcome.Response
	case *TaskFailed:
		snap.Error = outcome.Message
	}
	return snap
}

// RestoreTask rebuilds a task from a snapshot, rejecting inconsistent states.
func RestoreTask(snap TaskSnapshot) (*BackgroundTask, error) {
	if strings.TrimSpace(snap.ID) == "" {
		return nil, fmt.Errorf("task id is required")
	}
	task := &BackgroundTask{
		ID:            snap.ID,
		Kind:          snap.Kind,
		Prompt:        snap.Prompt,
		SearchEnabled: snap.SearchEnabled,
		CreatedAt:     snap.CreatedAt,
	}
	if task.Kind == "" {
		task.Kind = TaskKindResearch
	}

	completedAt := snap.CreatedAt
	if snap.CompletedAt != nil {
		completedAt = *snap.CompletedAt
	}

	switch snap.Status {
	case TaskPending, "":
		if snap.Result != nil || snap.Error != "" {
			return nil, fmt.Errorf("%w: pending task %s carries an outcome", ErrInvalidTransition, snap.ID)
		}
	case TaskProcessing:
		task.started = true
	case TaskCompleted:
		if snap.Result == nil || snap.Error != "" {
			return nil, fmt.Errorf("%w: completed task %s must carry only a result", ErrInvalidTransition, snap.ID)
		}
		task.started = true
		task.outcome = &TaskSucceeded{Response: snap.Result}
		task.completedAt = completedAt
	case TaskError:
		if snap.Result != nil {
			return nil, fmt.Errorf("%w: failed task %s must not carry a result", ErrInvalidTransition, snap.ID)
		}
		task.started = true
		task.outcome = &TaskFailed{Message: snap.Error}
		task.completedAt = completedAt
	default:
		return nil, fmt.Errorf("unknown task status %q", snap.Status)
	}
	return task, nil
}

// MarshalJSON encodes the task snapshot.
func (t *BackgroundTask) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}

// UnmarshalJSON decodes and validates a task snapshot.
func (t *BackgroundTask) UnmarshalJSON(data []byte) error {
	var snap TaskSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	restored, err := RestoreTask(snap)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ID, t.Kind, t.Prompt = restored.ID, restored.Kind, restored.Prompt
	t.SearchEnabled, t.CreatedAt = restored.SearchEnabled, restored.CreatedAt
	t.started, t.outcome, t.completedAt = restored.started, restored.outcome, restored.completedAt
	return nil
}
