package ailink

import "time"

// Config defines the Model Gateway configuration subtree.
type Config struct {
	DefaultProvider string        `mapstructure:"default_provider"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`

	// SystemPrompt, when set, is sent as a system message ahead of every prompt.
	SystemPrompt string `mapstructure:"system_prompt"`

	// PromptsDir overrides built-in prompts by slug.
	PromptsDir string `mapstructure:"prompts_dir"`

	Retry RetryConfig `mapstructure:"retry"`

	// Providers is a set of provider instances keyed by a user-defined id (slug).
	// Each instance declares its underlying provider type via AIProvider.
	Providers map[string]ProviderInstanceConfig `mapstructure:"providers"`

	// Routing maps a model id (quality, fast, long-context, multimodal) to a provider id.
	Routing map[string]string `mapstructure:"routing"`
	// Fallbacks lists provider ids tried in order when the routed provider is unavailable.
	Fallbacks map[string][]string `mapstructure:"fallbacks"`
}

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	Attempts     int           `mapstructure:"attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// ProviderInstanceConfig defines a configured provider instance (e.g. "primary-openai").
type ProviderInstanceConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// AIProvider is the driver type: openai, xai, ollama, openai-compatible or anthropic.
	AIProvider string `mapstructure:"ai_provider"`

	// SelectionPolicy controls which credential is chosen.
	// Supported values: "priority" (default), "round_robin".
	SelectionPolicy string `mapstructure:"selection_policy"`

	// DefaultCredential, if set, forces selecting the matching credential label.
	DefaultCredential string `mapstructure:"default_credential"`

	BaseURL string `mapstructure:"base_url"`
	// Models maps a model id to a provider model name; "default" is the catch-all.
	Models map[string]string `mapstructure:"models"`
	// Roles lists model ids this instance serves when Routing has no entry.
	Roles []string `mapstructure:"roles"`

	Credentials []CredentialConfig `mapstructure:"credentials"`
}

// CredentialConfig is a single credential for a provider instance.
type CredentialConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Label    string `mapstructure:"label"`
	APIKey   string `mapstructure:"api_key"`
	Priority int    `mapstructure:"priority"`
}
