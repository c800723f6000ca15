package engine

import (
	"context"
	"fmt"
	"maps"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/contextlens/contextlens/internal/core"
)

// RateLimiter enforces per-endpoint rate limits. Endpoints are keyed
// "<gateway>:<backend>", for example "ailink:openai" or "search:brave".
type RateLimiter struct {
	Store  RateLimitStore
	Limits map[string]RateLimit
	Clock  func() time.Time
	Margin float64
	// MaxWait bounds how long Acquire blocks for a window to reopen.
	MaxWait time.Duration

	mu sync.Mutex
}

// RateLimit is a fixed-window quota.
type RateLimit struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// RateLimitStore persists window state per endpoint. A nil state from
// GetRateLimit means the endpoint has not been seen.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitState, error)
	UpdateRateLimit(ctx context.Context, endpoint string, state *core.RateLimitState) error
}

// RateLimitedError is returned by Acquire when the endpoint stays closed
// longer than MaxWait.
type RateLimitedError struct {
	Endpoint string
	Wait     time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry in %s", e.Endpoint, e.Wait.Round(time.Second))
}

const defaultMaxWait = 5 * time.Second

// DefaultLimits are the built-in quotas. A bare gateway key covers every
// backend of that gateway without its own entry.
var DefaultLimits = map[string]RateLimit{
	"ailink":           {RequestsPerWindow: 60, WindowDuration: time.Minute},
	"ailink:openai":    {RequestsPerWindow: 500, WindowDuration: time.Minute},
	"ailink:anthropic": {RequestsPerWindow: 50, WindowDuration: time.Minute},
	"ailink:xai":       {RequestsPerWindow: 60, WindowDuration: time.Minute},
	"ailink:ollama":    {RequestsPerWindow: 1000, WindowDuration: time.Minute},
	"search":           {RequestsPerWindow: 60, WindowDuration: time.Minute},
	"search:brave":     {RequestsPerWindow: 1, WindowDuration: time.Second},
	"search:serpapi":   {RequestsPerWindow: 100, WindowDuration: time.Hour},
	"search:exa":       {RequestsPerWindow: 5, WindowDuration: time.Second},
}

// off reports whether limiting is disabled; a limiter without a store
// lets everything through.
func (r *RateLimiter) off() bool {
	return r == nil || r.Store == nil
}

// Allow reports whether endpoint has room in its window and, if not, how
// long until it does. It does not consume a request.
func (r *RateLimiter) Allow(ctx context.Context, endpoint string) (bool, time.Duration, error) {
	if r.off() {
		return true, 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allow(ctx, endpoint)
}

func (r *RateLimiter) allow(ctx context.Context, endpoint string) (bool, time.Duration, error) {
	state, err := r.load(ctx, endpoint)
	if err != nil {
		return true, 0, err
	}

	now := r.now()
	if wait := state.BackoffRemaining(now); wait > 0 {
		return false, wait, nil
	}

	limit := r.getLimit(endpoint)
	windowEnd := state.Roll(now, limit.WindowDuration)
	if state.RequestCount >= limit.RequestsPerWindow {
		return false, windowEnd.Sub(now), nil
	}
	return true, 0, nil
}

// load returns the stored state for endpoint, or a fresh window.
func (r *RateLimiter) load(ctx context.Context, endpoint string) (*core.RateLimitState, error) {
	state, err := r.Store.GetRateLimit(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &core.RateLimitState{WindowStart: r.now()}
	}
	return state, nil
}

// Record counts one request against endpoint's current window.
func (r *RateLimiter) Record(ctx context.Context, endpoint string) error {
	if r.off() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record(ctx, endpoint)
}

func (r *RateLimiter) record(ctx context.Context, endpoint string) error {
	state, err := r.load(ctx, endpoint)
	if err != nil {
		return err
	}
	state.Roll(r.now(), r.getLimit(endpoint).WindowDuration)
	state.RequestCount++
	return r.Store.UpdateRateLimit(ctx, endpoint, state)
}

// Acquire reserves one request on endpoint, waiting up to MaxWait for the
// window or a 429 backoff to clear.
func (r *RateLimiter) Acquire(ctx context.Context, endpoint string) error {
	if r.off() {
		return nil
	}
	maxWait := r.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	deadline := r.now().Add(maxWait)

	for {
		r.mu.Lock()
		allowed, wait, err := r.allow(ctx, endpoint)
		if err == nil && allowed {
			err = r.record(ctx, endpoint)
			r.mu.Unlock()
			return err
		}
		r.mu.Unlock()
		if err != nil {
			return err
		}
		if wait <= 0 {
			wait = time.Millisecond
		}
		if r.now().Add(wait).After(deadline) {
			return &RateLimitedError{Endpoint: endpoint, Wait: wait}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Record429 applies a backoff window from a 429 response. A zero
// retryAfter backs off for the rest of the current window.
func (r *RateLimiter) Record429(ctx context.Context, endpoint string, retryAfter time.Duration) error {
	if r.off() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.load(ctx, endpoint)
	if err != nil {
		return err
	}
	if retryAfter <= 0 {
		retryAfter = r.getLimit(endpoint).WindowDuration
	}
	state.MarkThrottled(r.now(), retryAfter)
	return r.Store.UpdateRateLimit(ctx, endpoint, state)
}

// ApplyOverrides sets per-minute request limits for the named endpoints,
// layered over the defaults. Blank names and non-positive values are ignored.
func (r *RateLimiter) ApplyOverrides(overrides map[string]int) {
	if r == nil || len(overrides) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Limits == nil {
		r.Limits = maps.Clone(DefaultLimits)
	}
	for endpoint, perMinute := range overrides {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" && perMinute > 0 {
			r.Limits[endpoint] = RateLimit{RequestsPerWindow: perMinute, WindowDuration: time.Minute}
		}
	}
}

// ApplySafetyMargin scales every limit by margin. Values outside (0, 1]
// are ignored.
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil || margin <= 0 || margin > 1 {
		return
	}
	r.mu.Lock()
	r.Margin = margin
	r.mu.Unlock()
}

// LimitFor returns the effective limit for endpoint after margin.
func (r *RateLimiter) LimitFor(endpoint string) RateLimit {
	if r == nil {
		return strictLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLimit(endpoint)
}

var (
	// strictLimit applies when there is no limiter at all.
	strictLimit = RateLimit{RequestsPerWindow: 1, WindowDuration: time.Minute}
	// unknownLimit applies to endpoints with no entry for them or their gateway.
	unknownLimit = RateLimit{RequestsPerWindow: 30, WindowDuration: time.Minute}
)

// getLimit looks endpoint up, then its gateway prefix, then unknownLimit.
func (r *RateLimiter) getLimit(endpoint string) RateLimit {
	if r == nil {
		return strictLimit
	}
	limits := r.Limits
	if limits == nil {
		limits = DefaultLimits
	}
	gateway, _, _ := strings.Cut(endpoint, ":")
	for _, key := range []string{endpoint, gateway} {
		if limit, ok := limits[key]; ok {
			return r.scaled(limit)
		}
	}
	return r.scaled(unknownLimit)
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

// scaled applies the safety margin, never going below one request.
func (r *RateLimiter) scaled(limit RateLimit) RateLimit {
	if r.Margin <= 0 || r.Margin > 1 {
		return limit
	}
	limit.RequestsPerWindow = max(1, int(math.Floor(float64(limit.RequestsPerWindow)*r.Margin)))
	return limit
}
