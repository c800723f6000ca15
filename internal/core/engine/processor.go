package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/ailink"
	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/metrics"
	"github.com/contextlens/contextlens/internal/observability"
)

// ErrEmptyPrompt rejects a request with no prompt text.
var ErrEmptyPrompt = errors.New("prompt is required")

// ModelGateway is the Model Gateway surface the pipeline needs.
type ModelGateway interface {
	PromptGenerator
	Generate(ctx context.Context, modelID core.ModelID, promptText string, opts ailink.Options) (*ailink.Generation, error)
}

// Processor runs one request through classify, query, search, augment and
// generate. Only the final generation can fail the request.
type Processor struct {
	Model      ModelGateway
	Queries    *QueryGenerator
	Aggregator *Aggregator
	// DefaultModel applies when a request names no model.
	DefaultModel core.ModelID
	MaxTokens    int
	Temperature  *float64
	Clock        func() time.Time
}

// Process handles req. The returned error, when not ErrEmptyPrompt, is a
// *core.StageError with Stage generation.
func (p *Processor) Process(ctx context.Context, req core.GenerationRequest) (*core.GenerationResponse, error) {
	started := p.now()
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	modelID := p.resolveModel(req.ModelID)
	diag := core.Diagnostics{SearchDecision: core.DecisionClassifier}

	var useSearch bool
	if req.ExplicitSearchEnable != nil {
		useSearch = *req.ExplicitSearchEnable
		diag.SearchDecision = core.DecisionExplicit
	} else {
		useSearch = NeedsSearch(req.Prompt)
	}

	queries := []string{}
	results := []core.SearchResult{}
	if useSearch {
		diag.SearchUsed = true
		queries, diag.QueriesSource = p.queriesFor(ctx, req)
		found, err := p.search(ctx, queries, req)
		if err != nil {
			diag.AugmentationError = err.Error()
			metrics.RecordStageError(string(core.StageAugmentation), "SEARCH_FAILED")
			observability.Warn("Search augmentation failed, continuing without results",
				zap.String("stage", string(core.StageAugmentation)),
				zap.Strings("queries", queries),
				zap.Error(err))
		} else {
			results = found
		}
	}

	augmented := AugmentPrompt(req.Prompt, results)

	gen, err := p.generate(ctx, modelID, augmented)
	if err != nil {
		code := ailink.CodeError
		var gerr *ailink.GatewayError
		if errors.As(err, &gerr) {
			code = gerr.Code
		}
		metrics.RecordStageError(string(core.StageGeneration), code)
		metrics.RecordRequest(diag.SearchUsed, false)
		observability.Error("Generation failed",
			zap.String("stage", string(core.StageGeneration)),
			zap.String("model_id", string(modelID)),
			zap.Bool("background", req.BackgroundMode),
			zap.Error(err))
		return nil, &core.StageError{Stage: core.StageGeneration, ModelID: modelID, Err: err}
	}

	diag.Provider = gen.Provider
	diag.Model = gen.Model
	metrics.RecordRequest(diag.SearchUsed, true)

	return &core.GenerationResponse{
		Content:          gen.Text,
		SearchResults:    results,
		SearchQueries:    queries,
		ModelID:          string(modelID),
		TokensUsed:       gen.TokensUsed,
		ProcessingTimeMs: p.now().Sub(started).Milliseconds(),
		Diagnostics:      diag,
	}, nil
}

func (p *Processor) queriesFor(ctx context.Context, req core.GenerationRequest) ([]string, string) {
	if supplied := CleanQueries(req.SearchQueries); len(supplied) > 0 {
		return supplied, core.QueriesFromCaller
	}
	if p.Queries == nil {
		return []string{strings.TrimSpace(req.Prompt)}, core.QueriesFromFallback
	}
	return p.Queries.Generate(ctx, req.Prompt, req.DomainContext)
}

func (p *Processor) search(ctx context.Context, queries []string, req core.GenerationRequest) (results []core.SearchResult, err error) {
	if p.Aggregator == nil {
		return nil, errors.New("search gateway not configured")
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordPanic("search")
			results, err = nil, errors.New("search aggregation panicked")
		}
	}()
	return p.Aggregator.Gather(ctx, queries, req.ResultCap(), req.DomainContext)
}

func (p *Processor) generate(ctx context.Context, modelID core.ModelID, text string) (*ailink.Generation, error) {
	if p.Model == nil {
		return nil, errors.New("model gateway not configured")
	}
	return p.Model.Generate(ctx, modelID, text, ailink.Options{
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	})
}

func (p *Processor) resolveModel(raw string) core.ModelID {
	if strings.TrimSpace(raw) == "" && p.DefaultModel != "" {
		return core.ResolveModelID(string(p.DefaultModel))
	}
	return core.ResolveModelID(raw)
}

func (p *Processor) now() time.Time {
	if p != nil && p.Clock != nil {
		return p.Clock()
	}
	return time.Now().UTC()
}
