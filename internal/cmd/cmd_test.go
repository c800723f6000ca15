package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/contextlens/contextlens/internal/config"
	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/core/engine"
	"github.com/contextlens/contextlens/internal/core/store"
	apperrors "github.com/contextlens/contextlens/internal/errors"
	"github.com/contextlens/contextlens/internal/output"
)

func newGenerateTestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "generate"}
	registerGenerateFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestParseBatchLines(t *testing.T) {
	input := strings.Join([]string{
		"# comment",
		"",
		"what changed in go 1.26",
		"analysis|review this stack trace",
		"code-generation | write a retry helper",
		"a|b is not a kind",
	}, "\n")

	lines, err := parseBatchLines(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, lines, 4)

	assert.Equal(t, batchLine{Prompt: "what changed in go 1.26"}, lines[0])
	assert.Equal(t, batchLine{Kind: "analysis", Prompt: "review this stack trace"}, lines[1])
	assert.Equal(t, batchLine{Kind: "code-generation", Prompt: "write a retry helper"}, lines[2])
	assert.Equal(t, batchLine{Prompt: "a|b is not a kind"}, lines[3])
}

func TestParseBatchLinesRejectsEmptyPrompt(t *testing.T) {
	_, err := parseBatchLines(strings.NewReader("research|   \n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestBuildGenerationRequest(t *testing.T) {
	c := newGenerateTestCmd(t,
		"--model", "fast",
		"--no-search",
		"--query", "go generics", "--query", "  ",
		"--language", "go",
		"--max-results", "3",
	)

	req, err := buildGenerationRequest(c, "explain generics")
	require.NoError(t, err)

	assert.Equal(t, "explain generics", req.Prompt)
	assert.Equal(t, "fast", req.ModelID)
	require.NotNil(t, req.ExplicitSearchEnable)
	assert.False(t, *req.ExplicitSearchEnable)
	assert.Equal(t, []string{"go generics"}, req.SearchQueries)
	require.NotNil(t, req.DomainContext)
	assert.Equal(t, "go", req.DomainContext.Language)
	assert.Equal(t, 3, req.MaxSearchResults)
}

func TestBuildGenerationRequestLeavesSearchToClassifier(t *testing.T) {
	req, err := buildGenerationRequest(newGenerateTestCmd(t), "hello")
	require.NoError(t, err)
	assert.Nil(t, req.ExplicitSearchEnable)
	assert.Nil(t, req.DomainContext)
	assert.Zero(t, req.MaxSearchResults)
}

func TestBuildGenerationRequestRejectsNegativeMaxResults(t *testing.T) {
	_, err := buildGenerationRequest(newGenerateTestCmd(t, "--max-results", "-1"), "hello")
	require.Error(t, err)
}

func TestReadPrompt(t *testing.T) {
	c := newGenerateTestCmd(t)
	c.SetIn(strings.NewReader("  from stdin \n"))
	got, err := readPrompt(c, []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))
	got, err = readPrompt(newGenerateTestCmd(t, "--prompt-file", path), nil)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	_, err = readPrompt(newGenerateTestCmd(t, "--prompt-file", path), []string{"both"})
	require.Error(t, err)

	_, err = readPrompt(newGenerateTestCmd(t), []string{"   "})
	require.Error(t, err)
}

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want foundry.ExitCode
	}{
		{"missing file", fmt.Errorf("open: %w", os.ErrNotExist), foundry.ExitFileNotFound},
		{"config", apperrors.NewConfigInvalidError("bad"), foundry.ExitConfigInvalid},
		{"rate limited", &engine.RateLimitedError{Endpoint: "search:brave", Wait: time.Second}, foundry.ExitExternalServiceUnavailable},
		{"generation", &core.StageError{Stage: core.StageGeneration, Err: fmt.Errorf("boom")}, foundry.ExitExternalServiceUnavailable},
		{"other", fmt.Errorf("boom"), foundry.ExitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCodeFor(tc.err))
		})
	}
}

func TestBuildRateLimitRows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backoff := now.Add(30 * time.Second)
	limiter := &engine.RateLimiter{}
	limiter.ApplyOverrides(map[string]int{"search:brave": 2})

	rows := buildRateLimitRows([]store.RateLimitEntry{
		{Endpoint: "search:brave", State: core.RateLimitState{RequestCount: 2, WindowStart: now.Add(-10 * time.Second)}},
		{Endpoint: "ailink:openai", State: core.RateLimitState{RequestCount: 1, WindowStart: now, BackoffUntil: &backoff}},
		{Endpoint: "search:exa", State: core.RateLimitState{RequestCount: 99, WindowStart: now.Add(-time.Hour)}},
	}, limiter, now)

	require.Len(t, rows, 3)
	assert.Equal(t, 2, rows[0].Limit)
	assert.True(t, rows[0].Blocked)
	assert.True(t, rows[1].Blocked)
	assert.False(t, rows[2].Blocked)
}

func TestWriteRateLimitOutputs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRateLimitList(output.FormatTable, &buf, nil, &engine.RateLimiter{}, time.Now()))
	assert.Contains(t, buf.String(), "no stored rate limit state")

	buf.Reset()
	require.NoError(t, writeRateLimitReset(output.FormatTable, &buf, 3, 0, true))
	assert.Equal(t, "Would delete 3 rate limit entr(ies)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeRateLimitReset(output.FormatJSON, &buf, 3, 2, false))
	assert.Contains(t, buf.String(), `"deleted": 2`)
}

func TestParseTaskStatus(t *testing.T) {
	status, err := parseTaskStatus(" Completed ")
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, status)

	status, err = parseTaskStatus("")
	require.NoError(t, err)
	assert.Empty(t, status)

	_, err = parseTaskStatus("done")
	require.Error(t, err)
}

func TestBuildInitConfigIsValidYAML(t *testing.T) {
	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(buildInitConfig("sk-test", "")), &parsed))

	ailinkCfg := parsed["ailink"].(map[string]any)
	assert.Equal(t, "primary-openai", ailinkCfg["default_provider"])
	searchCfg := parsed["search"].(map[string]any)
	assert.Equal(t, "brave", searchCfg["backend"])
	assert.NotContains(t, searchCfg, "api_key")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "task_1_abc", sanitizeFilename("task_1_abc"))
	assert.Equal(t, "rate-limit.list", sanitizeFilename("Rate Limit.List"))
	assert.Equal(t, "output", sanitizeFilename("///"))
}

func TestRuntimeWithoutStore(t *testing.T) {
	rt := &appRuntime{}
	_, err := rt.requireStore()
	require.ErrorIs(t, err, errStoreDisabled)
	assert.NoError(t, rt.Close())
}

func TestOpenStoreHonorsDisabled(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Disabled: true}}
	_, err := openStore(context.Background(), cfg)
	require.ErrorIs(t, err, errStoreDisabled)
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 bytes", formatFileSize(512))
	assert.Equal(t, "1.5 KB", formatFileSize(1536))
	assert.Equal(t, "2.0 MB", formatFileSize(2<<20))
	assert.Equal(t, "3.0 GB", formatFileSize(3<<30))
}

func TestBuildInitConfigKeepsProvidedKeys(t *testing.T) {
	var parsed starterConfig
	require.NoError(t, yaml.Unmarshal([]byte(buildInitConfig("sk-test", "brave-key")), &parsed))

	provider := parsed.AILink.Providers["primary-openai"]
	require.Len(t, provider.Credentials, 1)
	assert.Equal(t, "sk-test", provider.Credentials[0].APIKey)
	assert.Equal(t, "brave-key", parsed.Search.APIKey)
}

func TestSinkPath(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		c := &cobra.Command{Use: "x"}
		addOutputFlags(c, allFormats...)
		require.NoError(t, c.Flags().Parse(args))
		return c
	}

	path, err := sinkPath(newCmd(), output.FormatJSON, "tasks")
	require.NoError(t, err)
	assert.Empty(t, path, "stdout by default")

	path, err = sinkPath(newCmd("--out", "-"), output.FormatJSON, "tasks")
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = sinkPath(newCmd("--out-dir", "reports"), output.FormatMarkdown, "Task 7")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("reports", "task-7.md"), path)

	_, err = sinkPath(newCmd("--out", "a.json", "--out-dir", "reports"), output.FormatJSON, "tasks")
	require.Error(t, err)
}

func TestWriteFormattedToOutDir(t *testing.T) {
	dir := t.TempDir()
	c := &cobra.Command{Use: "x"}
	addOutputFlags(c, allFormats...)
	require.NoError(t, c.Flags().Parse([]string{"--output-format", "json", "--out-dir", dir}))

	require.NoError(t, writeFormatted(c, "stats", func(output.Formatter) (string, error) {
		return `{"ok":true}`, nil
	}))

	data, err := os.ReadFile(filepath.Join(dir, "stats.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\"ok\":true}\n", string(data))
}
