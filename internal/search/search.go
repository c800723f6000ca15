// Package search is the Search Gateway: one query in, ranked results out,
// independent of which web search backend answers.
package search

import (
	"context"
	"time"

	"github.com/contextlens/contextlens/internal/core"
)

// DefaultCount is the number of results requested when Options.Count is unset.
const DefaultCount = 10

// Options tunes a single search.
type Options struct {
	Count int
	// NoCache bypasses both cache tiers.
	NoCache bool
}

func (o Options) count() int {
	if o.Count <= 0 {
		return DefaultCount
	}
	return o.Count
}

// Response is the result of one query.
type Response struct {
	Results      []core.SearchResult `json:"results"`
	Query        string              `json:"query"`
	TotalResults int                 `json:"total_results"`
	SearchTimeMs int64               `json:"search_time_ms"`
	Cached       bool                `json:"cached,omitempty"`
}

// Gateway is the search capability consumed by the pipeline.
type Gateway interface {
	Search(ctx context.Context, query string, opts Options) (*Response, error)
	ContextSearch(ctx context.Context, query string, domain *core.DomainContext, opts Options) (*Response, error)
	HealthCheck(ctx context.Context) bool
	Stats() map[string]any
}

// Backend executes a query against one concrete search API.
type Backend interface {
	Name() string
	Search(ctx context.Context, query Query) (*BackendResult, error)
}

// Query is what a backend receives.
type Query struct {
	Text   string
	Count  int
	Domain *core.DomainContext
}

// BackendResult is the raw outcome of a backend call, in backend rank order.
type BackendResult struct {
	Hits  []Hit
	Total int
}

// Hit is one backend result before scoring.
type Hit struct {
	Title       string
	URL         string
	Description string
	Type        core.SearchResultType
	// Score is the provider relevance in [0,1]; negative when not supplied.
	Score float64
}

// Config defines the Search Gateway configuration subtree.
type Config struct {
	Backend     string        `mapstructure:"backend"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Engine      string        `mapstructure:"engine"`
	Country     string        `mapstructure:"country"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	CacheSize   int           `mapstructure:"cache_size"`
	HealthQuery string        `mapstructure:"health_query"`
	Retry       RetryConfig   `mapstructure:"retry"`
}

// RetryConfig bounds retries of transient backend failures.
type RetryConfig struct {
	Attempts     int           `mapstructure:"attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}
