package ailink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/ailink/content"
	"github.com/contextlens/contextlens/internal/ailink/driver"
	"github.com/contextlens/contextlens/internal/ailink/prompt"
	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/metrics"
	"github.com/contextlens/contextlens/internal/observability"
)

const (
	defaultTimeout      = 60 * time.Second
	maxTimeout          = 5 * time.Minute
	defaultAttempts     = 2
	defaultInitialDelay = 500 * time.Millisecond
	defaultMaxDelay     = 5 * time.Second
)

// Options tunes a single generation.
type Options struct {
	MaxTokens   int
	Temperature *float64
	PromptSlug  string
	Timeout     time.Duration
}

// Generation is the Model Gateway result.
type Generation struct {
	Text       string       `json:"text"`
	TokensUsed *int         `json:"tokens_used,omitempty"`
	ModelID    core.ModelID `json:"model_id"`
	Provider   string       `json:"provider"`
	Model      string       `json:"model"`
}

// Limiter throttles provider calls per endpoint key.
type Limiter interface {
	Acquire(ctx context.Context, endpoint string) error
	Record429(ctx context.Context, endpoint string, retryAfter time.Duration) error
}

// Service is the Model Gateway: it routes a model id to a provider and runs
// one bounded, retried completion.
type Service struct {
	Providers *Registry
	Prompts   prompt.Registry
	Limiter   Limiter
}

// NewService builds a gateway over cfg with the embedded prompt set plus
// any overrides in cfg.PromptsDir.
func NewService(cfg Config) (*Service, error) {
	prompts, err := prompt.NewRegistryWithOverrides(cfg.PromptsDir)
	if err != nil {
		return nil, err
	}
	return &Service{Providers: NewRegistry(cfg), Prompts: prompts}, nil
}

// Generate sends promptText to the provider routed for modelID. Unknown ids
// fall back to the default model id.
func (s *Service) Generate(ctx context.Context, modelID core.ModelID, promptText string, opts Options) (*Generation, error) {
	if s == nil || s.Providers == nil {
		return nil, errors.New("ailink provider registry not configured")
	}
	if strings.TrimSpace(promptText) == "" {
		return nil, errors.New("prompt is required")
	}
	modelID = core.ResolveModelID(string(modelID))

	primary, err := s.Providers.Resolve(modelID)
	if err != nil {
		return nil, err
	}

	gen, err := s.generateWith(ctx, primary, modelID, promptText, opts)
	if err == nil {
		return gen, nil
	}

	var gerr *GatewayError
	if errors.As(err, &gerr) && !gerr.Retryable() {
		return nil, err
	}
	for _, fallback := range s.Providers.ResolveFallbacks(modelID, primary.ProviderID) {
		if ctx.Err() != nil {
			break
		}
		observability.Warn("Model provider failed, trying fallback",
			zap.String("model_id", string(modelID)),
			zap.String("provider", primary.ProviderID),
			zap.String("fallback", fallback.ProviderID),
			zap.Error(err))
		gen, ferr := s.generateWith(ctx, fallback, modelID, promptText, opts)
		if ferr == nil {
			return gen, nil
		}
		err = ferr
	}
	return nil, err
}

// GeneratePrompt renders a registered prompt and generates with its
// temperature and token budget. A model id set on the prompt is used when
// modelID is empty.
func (s *Service) GeneratePrompt(ctx context.Context, modelID core.ModelID, slug string, vars map[string]string) (*Generation, error) {
	if s == nil || s.Prompts == nil {
		return nil, errors.New("ailink prompt registry not configured")
	}
	def, err := s.Prompts.Get(slug)
	if err != nil {
		return nil, err
	}
	system, user, err := prompt.Render(def, vars)
	if err != nil {
		return nil, err
	}
	text := user
	if system != "" {
		text = system + "\n\n" + user
	}

	opts := Options{PromptSlug: def.Config.Slug, Temperature: def.Config.Temperature}
	if def.Config.MaxTokens != nil {
		opts.MaxTokens = *def.Config.MaxTokens
	}
	if modelID == "" && def.Config.ModelID != "" {
		modelID = core.ModelID(def.Config.ModelID)
	}
	return s.Generate(ctx, modelID, text, opts)
}

func (s *Service) generateWith(ctx context.Context, resolved *ResolvedProvider, modelID core.ModelID, promptText string, opts Options) (*Generation, error) {
	cfg := s.Providers.Config()

	messages := make([]content.Message, 0, 2)
	if system := strings.TrimSpace(cfg.SystemPrompt); system != "" {
		messages = append(messages, content.Text("system", system))
	}
	messages = append(messages, content.Text("user", promptText))

	req := &driver.Request{
		Model:       resolved.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		PromptSlug:  opts.PromptSlug,
		Metadata:    map[string]string{"model_id": string(modelID)},
	}
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		req.MaxTokens = &maxTokens
	}

	timeout := callTimeout(cfg.DefaultTimeout, opts.Timeout)
	endpoint := "ailink:" + resolved.ProviderID

	attempts := cfg.Retry.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	initial := cfg.Retry.InitialDelay
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	maxDelay := cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	started := time.Now()
	resp, err := retry.DoWithData(
		func() (*driver.Response, error) {
			if s.Limiter != nil {
				if err := s.Limiter.Acquire(ctx, endpoint); err != nil {
					return nil, retry.Unrecoverable(err)
				}
			}
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			resp, err := resolved.Driver.Complete(callCtx, req)
			if err != nil {
				var perr *driver.ProviderError
				if errors.As(err, &perr) && perr.StatusCode == 429 && s.Limiter != nil {
					_ = s.Limiter.Record429(ctx, endpoint, perr.RetryAfter)
				}
				return nil, MapProviderError(resolved.ProviderID, err)
			}
			return resp, nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(initial),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var gerr *GatewayError
			return errors.As(err, &gerr) && gerr.Retryable()
		}),
		retry.OnRetry(func(n uint, err error) {
			observability.Debug("Retrying model provider call",
				zap.String("provider", resolved.ProviderID),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
	elapsed := time.Since(started)
	if err != nil {
		metrics.RecordGeneration(string(modelID), resolved.ProviderID, false, elapsed)
		return nil, err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		metrics.RecordGeneration(string(modelID), resolved.ProviderID, false, elapsed)
		return nil, &GatewayError{Code: CodeEmpty, Message: "empty response content", Provider: resolved.ProviderID}
	}
	metrics.RecordGeneration(string(modelID), resolved.ProviderID, true, elapsed)

	gen := &Generation{
		Text:     text,
		ModelID:  modelID,
		Provider: resolved.ProviderID,
		Model:    resolved.Model,
	}
	if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		total := resp.Usage.TotalTokens
		gen.TokensUsed = &total
	}
	return gen, nil
}

func callTimeout(configured, requested time.Duration) time.Duration {
	duration := configured
	if duration <= 0 {
		duration = defaultTimeout
	}
	if requested > 0 {
		duration = requested
	}
	if duration > maxTimeout {
		duration = maxTimeout
	}
	return duration
}

// Describe returns a one-line routing summary for modelID.
func (s *Service) Describe(modelID core.ModelID) string {
	if s == nil || s.Providers == nil {
		return "unconfigured"
	}
	resolved, err := s.Providers.Resolve(core.ResolveModelID(string(modelID)))
	if err != nil {
		return fmt.Sprintf("unresolved: %v", err)
	}
	return fmt.Sprintf("%s via %s (%s)", resolved.Model, resolved.ProviderID, resolved.Driver.Name())
}
