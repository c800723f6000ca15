package config

import (
	"time"

	"github.com/contextlens/contextlens/internal/ailink"
	"github.com/contextlens/contextlens/internal/search"
)

// Config is the merged configuration: embedded defaults, then the user
// config file, then CONTEXTLENS_* environment variables and flags.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	AILink  ailink.Config `mapstructure:"ailink"`
	Search  search.Config `mapstructure:"search"`
	Engine  EngineConfig  `mapstructure:"engine"`
	MCP     MCPConfig     `mapstructure:"mcp"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Debug   DebugConfig   `mapstructure:"debug"`

	RateLimits      map[string]int `mapstructure:"rate_limits"`
	RateLimitMargin float64        `mapstructure:"rate_limit_margin"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the libSQL store: a local path or a remote URL.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
	// Disabled skips the store entirely; tasks and caches stay in memory.
	Disabled bool `mapstructure:"disabled"`
}

// EngineConfig tunes the generation pipeline.
type EngineConfig struct {
	// DefaultModel is the model id used when a request names none.
	DefaultModel string `mapstructure:"default_model"`
	// QueryModel is the model id used for search query generation.
	QueryModel       string        `mapstructure:"query_model"`
	MaxSearchResults int           `mapstructure:"max_search_results"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Workers          int           `mapstructure:"workers"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
}

// MCPConfig controls the Model Context Protocol surface.
type MCPConfig struct {
	// Enabled mounts the streamable HTTP transport at /mcp in serve.
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig sets the minimum level (trace, debug, info, warn, error).
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig controls the /health probe routes.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// ProbeGateways adds live gateway probes to the readiness checks.
	ProbeGateways bool `mapstructure:"probe_gateways"`
}

// DebugConfig gates development-only surfaces.
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// PprofEnabled mounts net/http/pprof under /debug. Never enable on a
	// publicly reachable server.
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
