package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// repoRoot walks up from the package directory to the go.mod.
func repoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, dir, parent, "no go.mod above the package directory")
		dir = parent
	}
}

func mustLoad(t *testing.T, overrides ...map[string]any) *Config {
	t.Helper()
	cfg, err := Load(context.Background(), overrides...)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	return cfg
}

func TestLoadOutsideHomeWithWorkspaceHint(t *testing.T) {
	root := repoRoot(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CI", "true")
	t.Setenv("FULMEN_WORKSPACE_ROOT", root)

	mustLoad(t)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	cfg := mustLoad(t)

	checks := []struct {
		key  string
		got  any
		want any
	}{
		{"server.host", cfg.Server.Host, "localhost"},
		{"server.port", cfg.Server.Port, 8080},
		{"server.read_timeout", cfg.Server.ReadTimeout, 30 * time.Second},
		{"server.write_timeout", cfg.Server.WriteTimeout, 5 * time.Minute},
		{"server.idle_timeout", cfg.Server.IdleTimeout, 2 * time.Minute},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout, 10 * time.Second},
		{"store.driver", cfg.Store.Driver, "libsql"},
		{"store.path", cfg.Store.Path, filepath.Join(gfconfig.GetAppDataDir("contextlens"), "contextlens.db")},
		{"store.disabled", cfg.Store.Disabled, false},
		{"ailink.default_timeout", cfg.AILink.DefaultTimeout, time.Minute},
		{"ailink.retry.attempts", cfg.AILink.Retry.Attempts, 2},
		{"ailink.retry.initial_delay", cfg.AILink.Retry.InitialDelay, 500 * time.Millisecond},
		{"search.backend", cfg.Search.Backend, "brave"},
		{"search.timeout", cfg.Search.Timeout, 15 * time.Second},
		{"search.cache_ttl", cfg.Search.CacheTTL, 15 * time.Minute},
		{"search.cache_size", cfg.Search.CacheSize, 512},
		{"engine.default_model", cfg.Engine.DefaultModel, "quality"},
		{"engine.max_search_results", cfg.Engine.MaxSearchResults, 10},
		{"engine.workers", cfg.Engine.Workers, 4},
		{"engine.probe_timeout", cfg.Engine.ProbeTimeout, 10 * time.Second},
		{"mcp.enabled", cfg.MCP.Enabled, false},
		{"rate_limit_margin", cfg.RateLimitMargin, 0.9},
		{"logging.level", cfg.Logging.Level, "info"},
		{"metrics.enabled", cfg.Metrics.Enabled, true},
		{"metrics.port", cfg.Metrics.Port, 9090},
		{"health.enabled", cfg.Health.Enabled, true},
		{"health.probe_gateways", cfg.Health.ProbeGateways, false},
		{"debug.enabled", cfg.Debug.Enabled, false},
		{"debug.pprof_enabled", cfg.Debug.PprofEnabled, false},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.key)
	}
}

func TestLoadRuntimeOverrides(t *testing.T) {
	cfg := mustLoad(t, map[string]any{
		"server": map[string]any{"port": 9000, "host": "0.0.0.0"},
		"search": map[string]any{"backend": "exa"},
	})

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "exa", cfg.Search.Backend)
	assert.Equal(t, 15*time.Second, cfg.Search.Timeout, "untouched keys keep defaults")
	assert.Same(t, cfg, GetConfig())
}

func TestLoadEnvOverrides(t *testing.T) {
	cases := []struct {
		env   string
		value string
		check func(*Config) any
		want  any
	}{
		{"CONTEXTLENS_PORT", "3000", func(c *Config) any { return c.Server.Port }, 3000},
		{"CONTEXTLENS_LOG_LEVEL", "warn", func(c *Config) any { return c.Logging.Level }, "warn"},
		{"CONTEXTLENS_METRICS_ENABLED", "false", func(c *Config) any { return c.Metrics.Enabled }, false},
		{"CONTEXTLENS_RATE_LIMIT_MARGIN", "0.8", func(c *Config) any { return c.RateLimitMargin }, 0.8},
		{"CONTEXTLENS_SEARCH_API_KEY", "brave-key", func(c *Config) any { return c.Search.APIKey }, "brave-key"},
		{"CONTEXTLENS_WORKERS", "8", func(c *Config) any { return c.Engine.Workers }, 8},
		{"CONTEXTLENS_ENGINE_QUERY_MODEL", "fast", func(c *Config) any { return c.Engine.QueryModel }, "fast"},
		{"CONTEXTLENS_READ_TIMEOUT", "45s", func(c *Config) any { return c.Server.ReadTimeout }, 45 * time.Second},
		{"CONTEXTLENS_SHUTDOWN_TIMEOUT", "5m", func(c *Config) any { return c.Server.ShutdownTimeout }, 5 * time.Minute},
		{"CONTEXTLENS_SEARCH_TIMEOUT", "2s", func(c *Config) any { return c.Search.Timeout }, 2 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.env, func(t *testing.T) {
			t.Setenv(tc.env, tc.value)
			assert.Equal(t, tc.want, tc.check(mustLoad(t)))
		})
	}
}

func TestLoadProviderEnvOverrides(t *testing.T) {
	t.Setenv("CONTEXTLENS_AILINK_PROVIDERS_LOCAL_LLAMA_ENABLED", "true")
	t.Setenv("CONTEXTLENS_AILINK_PROVIDERS_LOCAL_LLAMA_AI_PROVIDER", "ollama")
	t.Setenv("CONTEXTLENS_AILINK_PROVIDERS_LOCAL_LLAMA_MODELS_DEFAULT", "llama3.1")
	t.Setenv("CONTEXTLENS_AILINK_PROVIDERS_CLAUDE_CREDENTIALS_0_API_KEY", "sk-ant")
	t.Setenv("CONTEXTLENS_AILINK_ROUTING_LONG_CONTEXT", "claude")

	cfg := mustLoad(t)

	local, ok := cfg.AILink.Providers["local-llama"]
	require.True(t, ok)
	assert.True(t, local.Enabled)
	assert.Equal(t, "ollama", local.AIProvider)
	assert.Equal(t, "llama3.1", local.Models["default"])

	claude := cfg.AILink.Providers["claude"]
	require.Len(t, claude.Credentials, 1)
	assert.Equal(t, "sk-ant", claude.Credentials[0].APIKey)
	assert.Equal(t, "claude", cfg.AILink.Routing["long-context"])
}

func TestRuntimeOverridesBeatEnv(t *testing.T) {
	t.Setenv("CONTEXTLENS_PORT", "4000")
	cfg := mustLoad(t, map[string]any{"server": map[string]any{"port": 5000}})
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestEnvSpecsCoverDocumentedVariables(t *testing.T) {
	mustLoad(t)

	mapped := map[string]bool{}
	for _, spec := range getEnvSpecs() {
		mapped[spec.Name] = true
	}
	for _, name := range []string{
		"CONTEXTLENS_LOG_LEVEL",
		"CONTEXTLENS_PORT",
		"CONTEXTLENS_HOST",
		"CONTEXTLENS_METRICS_PORT",
		"CONTEXTLENS_DB_PATH",
		"CONTEXTLENS_SEARCH_BACKEND",
		"CONTEXTLENS_SEARCH_API_KEY",
		"CONTEXTLENS_ENGINE_DEFAULT_MODEL",
		"CONTEXTLENS_MCP_ENABLED",
	} {
		assert.True(t, mapped[name], name)
	}
}

func TestToSlug(t *testing.T) {
	assert.Equal(t, "long-context", toSlug("LONG_CONTEXT"))
	assert.Equal(t, "fast", toSlug("_FAST_"))
}

func TestApplyAILinkProviderOverride(t *testing.T) {
	overrides := map[string]any{}
	applyAILinkProviderOverride(overrides, "PRIMARY_OPENAI_BASE_URL", "https://api.example.test/v1")
	applyAILinkProviderOverride(overrides, "PRIMARY_OPENAI_CREDENTIALS_1_PRIORITY", "5")
	applyAILinkProviderOverride(overrides, "PRIMARY_OPENAI_CREDENTIALS_1_ENABLED", "TRUE")
	applyAILinkProviderOverride(overrides, "ENABLED", "true")

	providers := overrides["ailink"].(map[string]any)["providers"].(map[string]any)
	require.Len(t, providers, 1)
	provider := providers["primary-openai"].(map[string]any)
	assert.Equal(t, "https://api.example.test/v1", provider["base_url"])

	creds := provider["credentials"].([]any)
	require.Len(t, creds, 2)
	assert.Equal(t, 5, creds[1].(map[string]any)["priority"])
	assert.Equal(t, true, creds[1].(map[string]any)["enabled"])
}

func TestCIBoundariesRequireContainingDir(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "repo")
	require.NoError(t, os.MkdirAll(inside, 0o755))

	t.Setenv("FULMEN_WORKSPACE_ROOT", root)
	t.Setenv("GITHUB_WORKSPACE", "relative/path")
	t.Setenv("CI_PROJECT_DIR", t.TempDir())
	t.Setenv("WORKSPACE", "")

	assert.Equal(t, []string{root}, ciBoundaries(inside))
}
