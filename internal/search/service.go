package search

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/metrics"
	"github.com/contextlens/contextlens/internal/observability"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultAttempts     = 2
	defaultInitialDelay = 300 * time.Millisecond
	defaultMaxDelay     = 3 * time.Second
	defaultHealthQuery  = "status"
)

// Limiter throttles backend calls per endpoint key.
type Limiter interface {
	Acquire(ctx context.Context, endpoint string) error
	Record429(ctx context.Context, endpoint string, retryAfter time.Duration) error
}

// Service implements Gateway over a single Backend.
type Service struct {
	Backend Backend
	Cache   PersistentCache
	Limiter Limiter

	cfg    Config
	memory *memoryCache

	queries   atomic.Int64
	failures  atomic.Int64
	cacheHits atomic.Int64
	latencyMs atomic.Int64

	mu        sync.Mutex
	lastError string
	lastAt    time.Time
}

var _ Gateway = (*Service)(nil)

// NewService builds a gateway for the backend named in cfg.
func NewService(cfg Config) (*Service, error) {
	backend, err := NewBackend(cfg, &http.Client{})
	if err != nil {
		return nil, err
	}
	return NewServiceWithBackend(cfg, backend), nil
}

// NewServiceWithBackend wraps an already constructed backend.
func NewServiceWithBackend(cfg Config, backend Backend) *Service {
	return &Service{
		Backend: backend,
		cfg:     cfg,
		memory:  newMemoryCache(cfg.CacheSize, cfg.CacheTTL),
	}
}

// Search runs a plain query.
func (s *Service) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	return s.run(ctx, Query{Text: strings.TrimSpace(query), Count: opts.count()}, opts)
}

// ContextSearch appends the domain hints to the query and forwards them to
// backends that can use them natively.
func (s *Service) ContextSearch(ctx context.Context, query string, domain *core.DomainContext, opts Options) (*Response, error) {
	q := Query{Text: WithDomainHints(query, domain), Count: opts.count()}
	if !domain.IsZero() {
		hint := *domain
		q.Domain = &hint
	}
	return s.run(ctx, q, opts)
}

// WithDomainHints appends framework, language and subject terms that the
// query does not already mention.
func WithDomainHints(query string, domain *core.DomainContext) string {
	query = strings.TrimSpace(query)
	if domain.IsZero() {
		return query
	}
	lower := strings.ToLower(query)
	for _, hint := range []string{domain.Framework, domain.Language, domain.Subject} {
		hint = strings.TrimSpace(hint)
		if hint == "" || strings.Contains(lower, strings.ToLower(hint)) {
			continue
		}
		query += " " + hint
		lower += " " + strings.ToLower(hint)
	}
	return query
}

func (s *Service) run(ctx context.Context, q Query, opts Options) (*Response, error) {
	if s == nil || s.Backend == nil {
		return nil, errors.New("search backend not configured")
	}
	if q.Text == "" {
		return nil, errors.New("search query is required")
	}

	name := s.Backend.Name()
	key := cacheKey(name, q)
	if !opts.NoCache {
		if resp, ok := s.cached(ctx, key); ok {
			return resp, nil
		}
	}

	s.queries.Add(1)
	started := time.Now()
	result, err := s.callBackend(ctx, q)
	elapsed := time.Since(started)
	s.latencyMs.Add(elapsed.Milliseconds())
	metrics.RecordSearchQuery(name, err == nil, elapsed)
	if err != nil {
		s.failures.Add(1)
		s.recordError(err)
		return nil, err
	}

	resp := &Response{
		Results:      rank(result.Hits, q.Count),
		Query:        q.Text,
		TotalResults: result.Total,
		SearchTimeMs: elapsed.Milliseconds(),
	}
	if resp.TotalResults < len(resp.Results) {
		resp.TotalResults = len(resp.Results)
	}

	if !opts.NoCache {
		s.memory.set(key, resp)
		if s.Cache != nil {
			if err := s.Cache.SetSearchCache(ctx, key, resp, s.memory.ttl); err != nil {
				observability.Debug("Search cache write failed", zap.String("backend", name), zap.Error(err))
			}
		}
	}
	return resp, nil
}

func (s *Service) cached(ctx context.Context, key string) (*Response, bool) {
	if resp, ok := s.memory.get(key); ok {
		s.cacheHits.Add(1)
		metrics.RecordSearchCacheHit("memory")
		resp.Cached = true
		return resp, true
	}
	if s.Cache == nil {
		return nil, false
	}
	resp, ok, err := s.Cache.GetSearchCache(ctx, key)
	if err != nil {
		observability.Debug("Search cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok || resp == nil {
		return nil, false
	}
	s.memory.set(key, resp)
	s.cacheHits.Add(1)
	metrics.RecordSearchCacheHit("store")
	out := cloneResponse(resp)
	out.Cached = true
	return out, true
}

func (s *Service) callBackend(ctx context.Context, q Query) (*BackendResult, error) {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := s.cfg.Retry.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	initial := s.cfg.Retry.InitialDelay
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	maxDelay := s.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	endpoint := "search:" + s.Backend.Name()

	return retry.DoWithData(
		func() (*BackendResult, error) {
			if s.Limiter != nil {
				if err := s.Limiter.Acquire(ctx, endpoint); err != nil {
					return nil, retry.Unrecoverable(err)
				}
			}
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			result, err := s.Backend.Search(callCtx, q)
			if err != nil {
				var berr *BackendError
				if errors.As(err, &berr) && berr.StatusCode == http.StatusTooManyRequests && s.Limiter != nil {
					_ = s.Limiter.Record429(ctx, endpoint, 0)
				}
				return nil, err
			}
			if result == nil {
				result = &BackendResult{}
			}
			return result, nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(initial),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return transient(ctx, err)
		}),
		retry.OnRetry(func(n uint, err error) {
			observability.Debug("Retrying search backend call",
				zap.String("backend", s.Backend.Name()),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
}

// transient reports whether err is worth another attempt: backend 429/5xx,
// a per-call timeout, or a network failure, as long as the caller is alive.
func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var berr *BackendError
	if errors.As(err, &berr) {
		return berr.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

// rank truncates hits to count, preserving backend order, and assigns a
// relevance score: the provider's when present, else 1 - position/count.
func rank(hits []Hit, count int) []core.SearchResult {
	if len(hits) > count {
		hits = hits[:count]
	}
	out := make([]core.SearchResult, 0, len(hits))
	for i, hit := range hits {
		score := hit.Score
		if score < 0 {
			score = 1 - float64(i)/float64(count)
		}
		hitType := hit.Type
		if hitType == "" {
			hitType = core.SearchResultWeb
		}
		out = append(out, core.SearchResult{
			Title:          hit.Title,
			URL:            hit.URL,
			Description:    hit.Description,
			Type:           hitType,
			RelevanceScore: score,
		})
	}
	return out
}

// HealthCheck runs a one-result uncached probe query.
func (s *Service) HealthCheck(ctx context.Context) bool {
	if s == nil || s.Backend == nil {
		return false
	}
	query := strings.TrimSpace(s.cfg.HealthQuery)
	if query == "" {
		query = defaultHealthQuery
	}
	_, err := s.Search(ctx, query, Options{Count: 1, NoCache: true})
	if err != nil {
		observability.Warn("Search gateway health probe failed",
			zap.String("backend", s.Backend.Name()),
			zap.Error(err))
		return false
	}
	return true
}

// Stats returns counters for diagnostics.
func (s *Service) Stats() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	queries := s.queries.Load()
	stats := map[string]any{
		"backend":        s.backendName(),
		"queries":        queries,
		"failures":       s.failures.Load(),
		"cache_hits":     s.cacheHits.Load(),
		"cache_entries":  s.memory.len(),
		"total_latency":  s.latencyMs.Load(),
		"avg_latency_ms": int64(0),
	}
	if queries > 0 {
		stats["avg_latency_ms"] = s.latencyMs.Load() / queries
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastError != "" {
		stats["last_error"] = s.lastError
		stats["last_error_at"] = s.lastAt.UTC().Format(time.RFC3339)
	}
	return stats
}

func (s *Service) backendName() string {
	if s.Backend == nil {
		return "none"
	}
	return s.Backend.Name()
}

func (s *Service) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err.Error()
	s.lastAt = time.Now()
}

// Describe returns a one-line summary of the configured backend.
func (s *Service) Describe() string {
	if s == nil || s.Backend == nil {
		return "unconfigured"
	}
	return fmt.Sprintf("%s (cache %d entries, ttl %s)", s.Backend.Name(), s.memory.len(), s.memory.ttl)
}
