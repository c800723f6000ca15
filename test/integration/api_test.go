package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlens/contextlens/internal/ailink"
	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/core/engine"
	"github.com/contextlens/contextlens/internal/observability"
	"github.com/contextlens/contextlens/internal/search"
	"github.com/contextlens/contextlens/internal/server"
	"github.com/contextlens/contextlens/internal/server/handlers"
)

// scriptedModel answers query generation with fixed queries and echoes the
// augmented prompt length for final generation.
type scriptedModel struct {
	mu      sync.Mutex
	prompts []string
}

func (m *scriptedModel) GeneratePrompt(_ context.Context, modelID core.ModelID, slug string, _ map[string]string) (*ailink.Generation, error) {
	if slug == "search-queries" {
		return &ailink.Generation{Text: "go 1.26 release notes\ngo 1.26 changes", ModelID: modelID}, nil
	}
	return &ailink.Generation{Text: "ok", ModelID: modelID}, nil
}

func (m *scriptedModel) Generate(_ context.Context, modelID core.ModelID, text string, _ ailink.Options) (*ailink.Generation, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, text)
	m.mu.Unlock()
	tokens := 12
	return &ailink.Generation{Text: "generated answer", TokensUsed: &tokens, ModelID: modelID, Provider: "scripted", Model: "s-1"}, nil
}

func (m *scriptedModel) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// cannedBackend returns the same two hits for every query.
type cannedBackend struct{}

func (cannedBackend) Name() string { return "canned" }

func (cannedBackend) Search(_ context.Context, q search.Query) (*search.BackendResult, error) {
	return &search.BackendResult{
		Hits: []search.Hit{
			{Title: "Go 1.26 Release Notes", URL: "https://go.dev/doc/go1.26", Description: "What changed", Type: core.SearchResultDocs, Score: -1},
			{Title: "Go blog: " + q.Text, URL: "https://go.dev/blog/" + strings.ReplaceAll(q.Text, " ", "-"), Description: "Blog", Type: core.SearchResultWeb, Score: -1},
		},
		Total: 2,
	}, nil
}

func newPipelineServer(t *testing.T) (*httptest.Server, *http.Client, *scriptedModel) {
	t.Helper()
	observability.InitCLILogger("test", false)

	model := &scriptedModel{}
	searchSvc := search.NewServiceWithBackend(search.Config{CacheSize: 16}, cannedBackend{})
	orchestrator := engine.New(model, searchSvc, nil, engine.Settings{DefaultModel: core.ModelQuality, Workers: 2})

	ts, client := newTestServer(t, server.Deps{API: &handlers.API{Engine: orchestrator}}, nil)
	return ts, client, model
}

func TestGeneratePipeline_Integration(t *testing.T) {
	ts, client, model := newPipelineServer(t)

	resp, err := client.Post(ts.URL+"/v1/generate", "application/json",
		strings.NewReader(`{"prompt":"What are the latest changes in Go 1.26?","explicit_search_enable":true,"max_search_results":3}`))
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out core.GenerationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	assert.Equal(t, "generated answer", out.Content)
	assert.Equal(t, []string{"go 1.26 release notes", "go 1.26 changes"}, out.SearchQueries)
	require.LessOrEqual(t, len(out.SearchResults), 3)
	require.NotEmpty(t, out.SearchResults)
	seen := map[string]int{}
	for _, result := range out.SearchResults {
		seen[result.URL]++
	}
	assert.Equal(t, 1, seen["https://go.dev/doc/go1.26"], "results are deduplicated by URL")
	assert.True(t, out.Diagnostics.SearchUsed)
	assert.Contains(t, model.lastPrompt(), "https://go.dev/doc/go1.26")
}

func TestBatchPipeline_Integration(t *testing.T) {
	ts, client, _ := newPipelineServer(t)

	body := `{"tasks":[{"prompt":"summarize go 1.26","kind":"search-and-summarize"},{"prompt":"write a haiku","kind":"code-generation","search_enabled":false}]}`
	resp, err := client.Post(ts.URL+"/v1/batch", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Tasks []core.TaskSnapshot `json:"tasks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Tasks, 2)
	for _, task := range out.Tasks {
		assert.Equal(t, core.TaskCompleted, task.Status, task.ID)
		require.NotNil(t, task.Result)
	}
	assert.False(t, out.Tasks[1].Result.Diagnostics.SearchUsed)
}

func TestHealthAndStats_Integration(t *testing.T) {
	ts, client, _ := newPipelineServer(t)

	resp, err := client.Get(ts.URL + "/v1/health")
	require.NoError(t, err)
	var status core.HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.NoError(t, resp.Body.Close())
	assert.True(t, status.Overall)

	resp, err = client.Get(ts.URL + "/v1/stats")
	require.NoError(t, err)
	var stats core.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.NoError(t, resp.Body.Close())
	assert.ElementsMatch(t, core.SupportedModelIDs(), stats.SupportedModelIDs)
	assert.Contains(t, stats.SearchGatewayStats, "backend")
}
