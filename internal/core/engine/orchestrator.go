package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/search"
)

// Settings tunes the pipeline assembled by New.
type Settings struct {
	DefaultModel core.ModelID
	QueryModel   core.ModelID
	MaxTokens    int
	Workers      int
	ProbeTimeout time.Duration
}

// Orchestrator is the entry point offered to callers: single requests,
// batches, task creation, health and stats.
type Orchestrator struct {
	Processor *Processor
	Runner    *Runner
	Reporter  *Reporter
	Search    search.Gateway
	Store     TaskStore
	Clock     func() time.Time
}

// New wires the pipeline over the two gateways. store may be nil.
func New(model ModelGateway, searchGateway search.Gateway, store TaskStore, settings Settings) *Orchestrator {
	processor := &Processor{
		Model:        model,
		Queries:      &QueryGenerator{Model: model, ModelID: settings.QueryModel},
		DefaultModel: settings.DefaultModel,
		MaxTokens:    settings.MaxTokens,
	}
	var prober SearchProber
	if searchGateway != nil {
		processor.Aggregator = &Aggregator{Search: searchGateway}
		prober = searchGateway
	}
	return &Orchestrator{
		Processor: processor,
		Runner:    &Runner{Processor: processor, Store: store, Workers: settings.Workers},
		Reporter:  &Reporter{Model: model, Search: prober, Timeout: settings.ProbeTimeout},
		Search:    searchGateway,
		Store:     store,
	}
}

// ProcessRequest handles one interactive request.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req core.GenerationRequest) (*core.GenerationResponse, error) {
	if o == nil || o.Processor == nil {
		return nil, errors.New("orchestrator not configured")
	}
	return o.Processor.Process(ctx, req)
}

// RunBatch processes tasks concurrently and returns them in their original order.
func (o *Orchestrator) RunBatch(ctx context.Context, tasks []*core.BackgroundTask) []*core.BackgroundTask {
	if o == nil || o.Runner == nil {
		return tasks
	}
	return o.Runner.RunBatch(ctx, tasks)
}

// CreateTask builds a pending task with a fresh id and persists it when a
// store is configured. An empty kind means research.
func (o *Orchestrator) CreateTask(ctx context.Context, prompt string, kind string, opts ...core.TaskOption) (*core.BackgroundTask, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	taskKind, err := core.ParseTaskKind(kind)
	if err != nil {
		return nil, err
	}
	task := core.NewTask(prompt, taskKind, o.now(), opts...)
	if o != nil && o.Store != nil {
		if err := o.Store.SaveTask(ctx, task); err != nil {
			return nil, err
		}
	}
	return task, nil
}

// HealthCheck probes both gateways; nothing is cached.
func (o *Orchestrator) HealthCheck(ctx context.Context) core.HealthStatus {
	if o == nil || o.Reporter == nil {
		return core.NewHealthStatus(false, false, time.Now().UTC())
	}
	return o.Reporter.Check(ctx)
}

// GetStats returns search gateway counters and the supported model ids.
func (o *Orchestrator) GetStats() core.Stats {
	stats := core.Stats{
		SearchGatewayStats: map[string]any{},
		SupportedModelIDs:  core.SupportedModelIDs(),
	}
	if o != nil && o.Search != nil {
		stats.SearchGatewayStats = o.Search.Stats()
	}
	return stats
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}
