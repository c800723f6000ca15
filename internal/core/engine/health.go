package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/ailink/prompt"
	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/metrics"
	"github.com/contextlens/contextlens/internal/observability"
)

// DefaultProbeTimeout bounds a full health check.
const DefaultProbeTimeout = 10 * time.Second

// SearchProber is the readiness surface of the Search Gateway.
type SearchProber interface {
	HealthCheck(ctx context.Context) bool
}

// Reporter probes both gateways on every call.
type Reporter struct {
	Model   PromptGenerator
	Search  SearchProber
	Timeout time.Duration
	Clock   func() time.Time
}

// Check probes the Model and Search gateways concurrently. Each probe is
// independent; a failure or panic in one never hides the other's result.
func (r *Reporter) Check(ctx context.Context) core.HealthStatus {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		wg            sync.WaitGroup
		modelHealthy  bool
		searchHealthy bool
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		modelHealthy = probe(ctx, "model_gateway", r.probeModel)
	}()
	go func() {
		defer wg.Done()
		searchHealthy = probe(ctx, "search_gateway", r.probeSearch)
	}()
	wg.Wait()

	return core.NewHealthStatus(modelHealthy, searchHealthy, r.now())
}

func (r *Reporter) probeModel(ctx context.Context) bool {
	if r.Model == nil {
		return false
	}
	gen, err := r.Model.GeneratePrompt(ctx, "", prompt.SlugHealthProbe, nil)
	if err != nil {
		observability.Warn("Model gateway health probe failed", zap.Error(err))
		return false
	}
	return gen != nil
}

func (r *Reporter) probeSearch(ctx context.Context) bool {
	if r.Search == nil {
		return false
	}
	return r.Search.HealthCheck(ctx)
}

func probe(ctx context.Context, name string, fn func(context.Context) bool) (healthy bool) {
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			observability.Error("Health probe panicked", zap.String("probe", name), zap.Any("panic", rec))
			healthy = false
		}
		metrics.RecordHealthCheck(name, healthy, time.Since(started))
	}()
	return fn(ctx)
}

func (r *Reporter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
