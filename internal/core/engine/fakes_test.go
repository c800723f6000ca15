package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/contextlens/contextlens/internal/ailink"
	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/search"
)

type fakeModel struct {
	mu sync.Mutex

	queryText  string
	queryErr   error
	answer     string
	answerErr  error
	failPrompt string
	panicOn    string
	probeErr   error

	promptCalls   []string
	generateCalls []string
	modelIDs      []core.ModelID
}

func (f *fakeModel) GeneratePrompt(_ context.Context, modelID core.ModelID, slug string, vars map[string]string) (*ailink.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promptCalls = append(f.promptCalls, slug)
	switch slug {
	case "health-probe":
		if f.probeErr != nil {
			return nil, f.probeErr
		}
		return &ailink.Generation{Text: "ok", ModelID: core.ModelFast}, nil
	default:
		if f.queryErr != nil {
			return nil, f.queryErr
		}
		return &ailink.Generation{Text: f.queryText, ModelID: modelID}, nil
	}
}

func (f *fakeModel) Generate(_ context.Context, modelID core.ModelID, text string, _ ailink.Options) (*ailink.Generation, error) {
	f.mu.Lock()
	f.generateCalls = append(f.generateCalls, text)
	f.modelIDs = append(f.modelIDs, modelID)
	f.mu.Unlock()

	if f.panicOn != "" && strings.Contains(text, f.panicOn) {
		panic("provider exploded")
	}
	if f.failPrompt != "" && strings.Contains(text, f.failPrompt) {
		return nil, &ailink.GatewayError{Code: ailink.CodeUnavailable, Message: "provider unavailable", Provider: "fake"}
	}
	if f.answerErr != nil {
		return nil, f.answerErr
	}
	answer := f.answer
	if answer == "" {
		answer = "answer"
	}
	tokens := 42
	return &ailink.Generation{Text: answer, TokensUsed: &tokens, ModelID: modelID, Provider: "fake", Model: "fake-1"}, nil
}

func (f *fakeModel) queryGenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, slug := range f.promptCalls {
		if slug == "search-queries" {
			count++
		}
	}
	return count
}

type fakeSearch struct {
	mu sync.Mutex

	perQuery  int
	failAll   bool
	failQuery string
	nilResp   bool
	healthy   bool
	shared    []string

	queries        []string
	contextQueries []string
	counts         []int
}

func (f *fakeSearch) Search(_ context.Context, query string, opts search.Options) (*search.Response, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.counts = append(f.counts, opts.Count)
	f.mu.Unlock()
	return f.respond(query, opts)
}

func (f *fakeSearch) ContextSearch(_ context.Context, query string, domain *core.DomainContext, opts search.Options) (*search.Response, error) {
	f.mu.Lock()
	f.contextQueries = append(f.contextQueries, search.WithDomainHints(query, domain))
	f.mu.Unlock()
	return f.respond(query, opts)
}

func (f *fakeSearch) respond(query string, opts search.Options) (*search.Response, error) {
	if f.failAll || (f.failQuery != "" && query == f.failQuery) {
		return nil, errors.New("search backend down")
	}
	if f.nilResp {
		return nil, nil
	}
	n := f.perQuery
	if n == 0 {
		n = opts.Count
	}
	results := make([]core.SearchResult, 0, n)
	for _, url := range f.shared {
		results = append(results, core.SearchResult{Title: "Shared", URL: url, Type: core.SearchResultWeb})
	}
	for i := 0; i < n; i++ {
		results = append(results, core.SearchResult{
			Title: fmt.Sprintf("%s #%d", query, i+1),
			URL:   fmt.Sprintf("https://example.com/%s/%d", strings.ReplaceAll(query, " ", "-"), i+1),
			Type:  core.SearchResultWeb,
		})
	}
	return &search.Response{Results: results, Query: query, TotalResults: len(results)}, nil
}

func (f *fakeSearch) HealthCheck(context.Context) bool { return f.healthy }

func (f *fakeSearch) Stats() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]any{"backend": "fake", "queries": int64(len(f.queries) + len(f.contextQueries))}
}

func boolPtr(v bool) *bool { return &v }
