package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/metrics"
	"github.com/contextlens/contextlens/internal/observability"
)

// DefaultWorkers bounds concurrent tasks in a batch when Runner.Workers is unset.
const DefaultWorkers = 4

// RequestProcessor processes one generation request.
type RequestProcessor interface {
	Process(ctx context.Context, req core.GenerationRequest) (*core.GenerationResponse, error)
}

// TaskStore persists task state after every transition.
type TaskStore interface {
	SaveTask(ctx context.Context, task *core.BackgroundTask) error
}

// Runner drives background tasks through the Request Processor with
// per-task failure isolation.
type Runner struct {
	Processor RequestProcessor
	Store     TaskStore
	Workers   int
	Clock     func() time.Time

	active atomic.Int64
}

// RunBatch processes every pending task and returns the same slice. Each
// task ends completed or error; a failure or panic in one task never
// affects another. Tasks that are not pending are left untouched, and a
// task listed twice runs once.
func (r *Runner) RunBatch(ctx context.Context, tasks []*core.BackgroundTask) []*core.BackgroundTask {
	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	sem := make(chan struct{}, workers)
	seen := make(map[*core.BackgroundTask]bool, len(tasks))
	var wg sync.WaitGroup
	for _, task := range tasks {
		if task == nil || seen[task] {
			continue
		}
		seen[task] = true
		if status := task.Status(); status != core.TaskPending {
			observability.Warn("Skipping task that is not pending",
				zap.String("task_id", task.ID),
				zap.String("status", string(status)))
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(task *core.BackgroundTask) {
			defer wg.Done()
			defer func() { <-sem }()
			r.run(ctx, task)
		}(task)
	}
	wg.Wait()
	return tasks
}

func (r *Runner) run(ctx context.Context, task *core.BackgroundTask) {
	if err := task.Start(); err != nil {
		observability.Warn("Task could not start", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	metrics.SetActiveTasks(r.active.Add(1))
	defer func() { metrics.SetActiveTasks(r.active.Add(-1)) }()
	metrics.RecordTaskTransition(string(core.TaskProcessing))
	r.save(ctx, task)

	resp, err := r.process(ctx, task)
	if err != nil {
		_ = task.Fail(err.Error(), r.now())
		observability.Warn("Task failed",
			zap.String("task_id", task.ID),
			zap.String("kind", string(task.Kind)),
			zap.Error(err))
	} else {
		_ = task.Complete(resp, r.now())
	}
	metrics.RecordTaskTransition(string(task.Status()))
	r.save(ctx, task)
}

func (r *Runner) process(ctx context.Context, task *core.BackgroundTask) (resp *core.GenerationResponse, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.RecordPanic("task")
			observability.Error("Task panicked",
				zap.String("task_id", task.ID),
				zap.Any("panic", rec))
			resp, err = nil, fmt.Errorf("task panicked: %v", rec)
		}
	}()
	if r.Processor == nil {
		return nil, fmt.Errorf("request processor not configured")
	}

	searchEnabled := task.SearchEnabled
	resp, err = r.Processor.Process(ctx, core.GenerationRequest{
		Prompt:               task.Prompt,
		ExplicitSearchEnable: &searchEnabled,
		BackgroundMode:       true,
	})
	if err == nil && resp == nil {
		err = fmt.Errorf("request processor returned no response")
	}
	return resp, err
}

func (r *Runner) save(ctx context.Context, task *core.BackgroundTask) {
	if r.Store == nil {
		return
	}
	// Persist even when the batch context is done so terminal states land.
	if err := r.Store.SaveTask(context.WithoutCancel(ctx), task); err != nil {
		observability.Warn("Failed to persist task",
			zap.String("task_id", task.ID),
			zap.String("status", string(task.Status())),
			zap.Error(err))
	}
}

// Active returns the number of tasks currently processing.
func (r *Runner) Active() int64 {
	return r.active.Load()
}

func (r *Runner) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
