package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/ailink"
	"github.com/contextlens/contextlens/internal/config"
	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/core/engine"
	"github.com/contextlens/contextlens/internal/core/store"
	"github.com/contextlens/contextlens/internal/observability"
	"github.com/contextlens/contextlens/internal/search"
)

// appRuntime holds everything a command needs to drive the engine.
type appRuntime struct {
	cfg     *config.Config
	store   *store.Store
	model   *ailink.Service
	search  *search.Service
	limiter *engine.RateLimiter
	engine  *engine.Orchestrator
}

// buildRuntime wires store, rate limiter and both gateways into an
// orchestrator. A disabled store or an unconfigured search backend
// degrades the runtime instead of failing it.
func buildRuntime(ctx context.Context, cfg *config.Config) (*appRuntime, error) {
	if cfg == nil {
		loaded, err := config.Load(ctx)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	rt := &appRuntime{cfg: cfg}

	db, err := openStore(ctx, cfg)
	switch {
	case errors.Is(err, errStoreDisabled):
		observability.Debug("Store disabled; tasks and rate limits stay in memory")
	case err != nil:
		return nil, err
	default:
		rt.store = db
	}

	rt.limiter = &engine.RateLimiter{}
	if rt.store != nil {
		rt.limiter.Store = rt.store
	}
	rt.limiter.ApplyOverrides(cfg.RateLimits)
	rt.limiter.ApplySafetyMargin(cfg.RateLimitMargin)

	model, err := ailink.NewService(cfg.AILink)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	model.Limiter = rt.limiter
	rt.model = model

	var gateway search.Gateway
	if svc, err := search.NewService(cfg.Search); err != nil {
		observability.Warn("Search gateway unavailable; requests run without search",
			zap.String("backend", cfg.Search.Backend),
			zap.Error(err))
	} else {
		svc.Limiter = rt.limiter
		if rt.store != nil {
			svc.Cache = rt.store
		}
		rt.search = svc
		gateway = svc
	}

	var tasks engine.TaskStore
	if rt.store != nil {
		tasks = rt.store
	}

	rt.engine = engine.New(model, gateway, tasks, engine.Settings{
		DefaultModel: core.ResolveModelID(cfg.Engine.DefaultModel),
		QueryModel:   queryModel(cfg.Engine.QueryModel),
		MaxTokens:    cfg.Engine.MaxTokens,
		Workers:      cfg.Engine.Workers,
		ProbeTimeout: cfg.Engine.ProbeTimeout,
	})
	return rt, nil
}

func queryModel(raw string) core.ModelID {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return core.ResolveModelID(raw)
}

// requireStore returns the store or a descriptive error for commands that
// only make sense with persistence.
func (rt *appRuntime) requireStore() (*store.Store, error) {
	if rt == nil || rt.store == nil {
		return nil, errStoreDisabled
	}
	return rt.store, nil
}

func (rt *appRuntime) Close() error {
	if rt == nil || rt.store == nil {
		return nil
	}
	var result *multierror.Error
	if _, err := rt.store.PurgeExpiredSearchCache(context.Background()); err != nil {
		result = multierror.Append(result, err)
	}
	if err := rt.store.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
