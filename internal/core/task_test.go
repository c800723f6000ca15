package core

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskDefaults(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	task := NewTask("Research X", "", now)

	assert.Equal(t, TaskKindResearch, task.Kind)
	assert.Equal(t, TaskPending, task.Status())
	assert.Equal(t, now, task.CreatedAt)
	assert.Nil(t, task.CompletedAt())
	assert.True(t, strings.HasPrefix(task.ID, "task_1740830400000_"), task.ID)
}

func TestNewTaskIDsAreDistinct(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		id := NewTaskID(now)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestTaskLifecycleCompleted(t *testing.T) {
	now := time.Now().UTC()
	task := NewTask("p", TaskKindAnalysis, now)

	require.NoError(t, task.Start())
	assert.Equal(t, TaskProcessing, task.Status())

	resp := &GenerationResponse{Content: "ok"}
	require.NoError(t, task.Complete(resp, now.Add(time.Second)))
	assert.Equal(t, TaskCompleted, task.Status())

	got, ok := task.Result()
	require.True(t, ok)
	assert.Same(t, resp, got)
	_, failed := task.ErrorMessage()
	assert.False(t, failed)
	require.NotNil(t, task.CompletedAt())
	assert.Equal(t, now.Add(time.Second), *task.CompletedAt())
}

func TestTaskLifecycleFailed(t *testing.T) {
	task := NewTask("p", TaskKindResearch, time.Now())
	require.NoError(t, task.Start())
	require.NoError(t, task.Fail("provider down", time.Now()))

	assert.Equal(t, TaskError, task.Status())
	msg, ok := task.ErrorMessage()
	require.True(t, ok)
	assert.Equal(t, "provider down", msg)
	_, hasResult := task.Result()
	assert.False(t, hasResult)
}

func TestTaskIllegalTransitions(t *testing.T) {
	now := time.Now()

	pending := NewTask("p", "", now)
	assert.True(t, errors.Is(pending.Complete(&GenerationResponse{}, now), ErrInvalidTransition))
	assert.True(t, errors.Is(pending.Fail("x", now), ErrInvalidTransition))

	running := NewTask("p", "", now)
	require.NoError(t, running.Start())
	assert.True(t, errors.Is(running.Start(), ErrInvalidTransition))
	assert.True(t, errors.Is(running.Complete(nil, now), ErrInvalidTransition))

	done := NewTask("p", "", now)
	require.NoError(t, done.Start())
	require.NoError(t, done.Fail("boom", now))
	assert.True(t, errors.Is(done.Complete(&GenerationResponse{}, now), ErrInvalidTransition))
	assert.True(t, errors.Is(done.Fail("again", now), ErrInvalidTransition))
	assert.True(t, errors.Is(done.Start(), ErrInvalidTransition))

	msg, _ := done.ErrorMessage()
	assert.Equal(t, "boom", msg)
}

func TestTaskJSONRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	task := NewTask("explain goroutines", TaskKindCodeGeneration, now)
	require.NoError(t, task.Start())
	require.NoError(t, task.Complete(&GenerationResponse{Content: "answer", ModelID: "quality"}, now.Add(2*time.Second)))

	data, err := json.Marshal(task)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"completed"`)

	var decoded BackgroundTask
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, TaskCompleted, decoded.Status())
	resp, ok := decoded.Result()
	require.True(t, ok)
	assert.Equal(t, "answer", resp.Content)
}

func TestRestoreTaskRejectsInconsistentSnapshots(t *testing.T) {
	_, err := RestoreTask(TaskSnapshot{ID: "a", Status: TaskCompleted, Error: "x", Result: &GenerationResponse{}})
	require.Error(t, err)

	_, err = RestoreTask(TaskSnapshot{ID: "b", Status: TaskPending, Error: "x"})
	require.Error(t, err)

	_, err = RestoreTask(TaskSnapshot{ID: "c", Status: "exploded"})
	require.Error(t, err)

	_, err = RestoreTask(TaskSnapshot{Status: TaskPending})
	require.Error(t, err)
}

func TestParseTaskKind(t *testing.T) {
	kind, err := ParseTaskKind("")
	require.NoError(t, err)
	assert.Equal(t, TaskKindResearch, kind)

	kind, err = ParseTaskKind(" Search-And-Summarize ")
	require.NoError(t, err)
	assert.Equal(t, TaskKindSearchAndSummarize, kind)

	_, err = ParseTaskKind("poetry")
	require.Error(t, err)
}

func TestTaskStartsOnceUnderConcurrency(t *testing.T) {
	task := NewTask("p", TaskKindResearch, time.Now())

	const callers = 16
	var (
		wg      sync.WaitGroup
		started atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = task.Status()
			if task.Start() == nil {
				started.Add(1)
				_ = task.Complete(&GenerationResponse{Content: "done"}, time.Now())
			}
			_ = task.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, TaskCompleted, task.Status())
}

func TestWithSearchOption(t *testing.T) {
	assert.True(t, NewTask("p", "", time.Now()).SearchEnabled)
	assert.False(t, NewTask("p", "", time.Now(), WithSearch(false)).SearchEnabled)
}
