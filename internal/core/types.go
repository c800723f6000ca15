package core

import "time"

// DefaultMaxSearchResults caps aggregated search results when a request does not set one.
const DefaultMaxSearchResults = 10

// DomainContext carries hints used to bias search toward a technical domain.
type DomainContext struct {
	Language  string `json:"language,omitempty"`
	Framework string `json:"framework,omitempty"`
	Subject   string `json:"subject,omitempty"`
}

// IsZero reports whether no hint is set.
func (d *DomainContext) IsZero() bool {
	return d == nil || (d.Language == "" && d.Framework == "" && d.Subject == "")
}

// GenerationRequest describes one unit of generation work.
type GenerationRequest struct {
	Prompt               string         `json:"prompt"`
	ModelID              string         `json:"model_id,omitempty"`
	ExplicitSearchEnable *bool          `json:"explicit_search_enable,omitempty"`
	SearchQueries        []string       `json:"search_queries,omitempty"`
	DomainContext        *DomainContext `json:"domain_context,omitempty"`
	MaxSearchResults     int            `json:"max_search_results,omitempty"`
	BackgroundMode       bool           `json:"background_mode,omitempty"`
}

// ResultCap returns the effective search result cap.
func (r GenerationRequest) ResultCap() int {
	if r.MaxSearchResults <= 0 {
		return DefaultMaxSearchResults
	}
	return r.MaxSearchResults
}

// SearchResultType is a coarse tag for a search hit.
type SearchResultType string

const (
	SearchResultWeb  SearchResultType = "web"
	SearchResultNews SearchResultType = "news"
	SearchResultDocs SearchResultType = "docs"
)

// SearchResult is a single provider-supplied search hit.
type SearchResult struct {
	Title          string           `json:"title"`
	URL            string           `json:"url"`
	Description    string           `json:"description"`
	Type           SearchResultType `json:"type"`
	RelevanceScore float64          `json:"relevance_score"`
}

// Search decision sources recorded in Diagnostics.
const (
	DecisionExplicit   = "explicit"
	DecisionClassifier = "classifier"
)

// Query sources recorded in Diagnostics.
const (
	QueriesFromCaller    = "caller"
	QueriesGenerated     = "generated"
	QueriesFromFallback  = "fallback"
	QueriesNotApplicable = ""
)

// Diagnostics explains how a response was produced.
type Diagnostics struct {
	SearchUsed        bool   `json:"search_used"`
	SearchDecision    string `json:"search_decision"`
	QueriesSource     string `json:"queries_source,omitempty"`
	AugmentationError string `json:"augmentation_error,omitempty"`
	Provider          string `json:"provider,omitempty"`
	Model             string `json:"model,omitempty"`
}

// GenerationResponse is the result of processing a GenerationRequest.
type GenerationResponse struct {
	Content          string         `json:"content"`
	SearchResults    []SearchResult `json:"search_results"`
	SearchQueries    []string       `json:"search_queries"`
	ModelID          string         `json:"model_id"`
	TokensUsed       *int           `json:"tokens_used,omitempty"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Diagnostics      Diagnostics    `json:"diagnostics"`
}

// HealthStatus reports gateway readiness. Overall is derived, never set directly.
type HealthStatus struct {
	ModelGatewayHealthy  bool      `json:"model_gateway_healthy"`
	SearchGatewayHealthy bool      `json:"search_gateway_healthy"`
	Overall              bool      `json:"overall"`
	CheckedAt            time.Time `json:"checked_at"`
}

// NewHealthStatus builds a status with Overall derived from both probes.
func NewHealthStatus(model, search bool, at time.Time) HealthStatus {
	return HealthStatus{
		ModelGatewayHealthy:  model,
		SearchGatewayHealthy: search,
		Overall:              model && search,
		CheckedAt:            at,
	}
}

// Stats summarizes orchestrator diagnostics.
type Stats struct {
	SearchGatewayStats map[string]any `json:"search_gateway_stats"`
	SupportedModelIDs  []string       `json:"supported_model_ids"`
}
