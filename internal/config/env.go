package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
)

// EnvVarSpec maps {PREFIX}{NAME} to a config path.
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable value types.
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// envBindings name env vars without the identity prefix. Durations are
// read as strings and converted during decode.
var envBindings = []EnvVarSpec{
	{Name: "HOST", Path: keyPath("server.host"), Type: EnvString},
	{Name: "PORT", Path: keyPath("server.port"), Type: EnvInt},
	{Name: "READ_TIMEOUT", Path: keyPath("server.read_timeout"), Type: EnvString},
	{Name: "WRITE_TIMEOUT", Path: keyPath("server.write_timeout"), Type: EnvString},
	{Name: "IDLE_TIMEOUT", Path: keyPath("server.idle_timeout"), Type: EnvString},
	{Name: "SHUTDOWN_TIMEOUT", Path: keyPath("server.shutdown_timeout"), Type: EnvString},

	{Name: "LOG_LEVEL", Path: keyPath("logging.level"), Type: EnvString},

	{Name: "DB_DRIVER", Path: keyPath("store.driver"), Type: EnvString},
	{Name: "DB_PATH", Path: keyPath("store.path"), Type: EnvString},
	{Name: "DB_URL", Path: keyPath("store.url"), Type: EnvString},
	{Name: "DB_AUTH_TOKEN", Path: keyPath("store.auth_token"), Type: EnvString},
	{Name: "STORE_DISABLED", Path: keyPath("store.disabled"), Type: EnvBool},

	{Name: "AILINK_DEFAULT_PROVIDER", Path: keyPath("ailink.default_provider"), Type: EnvString},
	{Name: "AILINK_DEFAULT_TIMEOUT", Path: keyPath("ailink.default_timeout"), Type: EnvString},
	{Name: "AILINK_SYSTEM_PROMPT", Path: keyPath("ailink.system_prompt"), Type: EnvString},
	{Name: "AILINK_PROMPTS_DIR", Path: keyPath("ailink.prompts_dir"), Type: EnvString},
	{Name: "AILINK_RETRY_ATTEMPTS", Path: keyPath("ailink.retry.attempts"), Type: EnvInt},

	{Name: "SEARCH_BACKEND", Path: keyPath("search.backend"), Type: EnvString},
	{Name: "SEARCH_BASE_URL", Path: keyPath("search.base_url"), Type: EnvString},
	{Name: "SEARCH_API_KEY", Path: keyPath("search.api_key"), Type: EnvString},
	{Name: "SEARCH_ENGINE", Path: keyPath("search.engine"), Type: EnvString},
	{Name: "SEARCH_COUNTRY", Path: keyPath("search.country"), Type: EnvString},
	{Name: "SEARCH_TIMEOUT", Path: keyPath("search.timeout"), Type: EnvString},
	{Name: "SEARCH_CACHE_TTL", Path: keyPath("search.cache_ttl"), Type: EnvString},
	{Name: "SEARCH_CACHE_SIZE", Path: keyPath("search.cache_size"), Type: EnvInt},
	{Name: "SEARCH_HEALTH_QUERY", Path: keyPath("search.health_query"), Type: EnvString},

	{Name: "ENGINE_DEFAULT_MODEL", Path: keyPath("engine.default_model"), Type: EnvString},
	{Name: "ENGINE_QUERY_MODEL", Path: keyPath("engine.query_model"), Type: EnvString},
	{Name: "ENGINE_MAX_SEARCH_RESULTS", Path: keyPath("engine.max_search_results"), Type: EnvInt},
	{Name: "ENGINE_MAX_TOKENS", Path: keyPath("engine.max_tokens"), Type: EnvInt},
	{Name: "ENGINE_PROBE_TIMEOUT", Path: keyPath("engine.probe_timeout"), Type: EnvString},
	{Name: "WORKERS", Path: keyPath("engine.workers"), Type: EnvInt},

	{Name: "MCP_ENABLED", Path: keyPath("mcp.enabled"), Type: EnvBool},
	{Name: "METRICS_ENABLED", Path: keyPath("metrics.enabled"), Type: EnvBool},
	{Name: "METRICS_PORT", Path: keyPath("metrics.port"), Type: EnvInt},
	{Name: "HEALTH_ENABLED", Path: keyPath("health.enabled"), Type: EnvBool},
	{Name: "HEALTH_PROBE_GATEWAYS", Path: keyPath("health.probe_gateways"), Type: EnvBool},
	{Name: "DEBUG_ENABLED", Path: keyPath("debug.enabled"), Type: EnvBool},
	{Name: "DEBUG_PPROF_ENABLED", Path: keyPath("debug.pprof_enabled"), Type: EnvBool},
}

func keyPath(dotted string) []string {
	return strings.Split(dotted, ".")
}

// envPrefix returns the identity env prefix with a trailing underscore,
// or "" before the identity is loaded.
func envPrefix() string {
	if appIdentity == nil {
		return ""
	}
	prefix := appIdentity.EnvPrefix
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// getEnvSpecs returns envBindings with the identity prefix applied.
func getEnvSpecs() []EnvVarSpec {
	prefix := envPrefix()
	if prefix == "" {
		return nil
	}
	specs := make([]EnvVarSpec, len(envBindings))
	for i, spec := range envBindings {
		spec.Name = prefix + spec.Name
		specs[i] = spec
	}
	return specs
}

// collectEnvOverrides reads the static bindings plus the dynamic AILINK
// provider and routing variables and RATE_LIMIT_MARGIN.
func collectEnvOverrides(prefix string) (map[string]any, error) {
	overrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if prefix == "" {
		return overrides, nil
	}

	applyAILinkDynamicEnvOverrides(prefix, overrides)

	if raw := strings.TrimSpace(os.Getenv(prefix + "RATE_LIMIT_MARGIN")); raw != "" {
		margin, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit margin: %w", err)
		}
		overrides["rate_limit_margin"] = margin
	}
	return overrides, nil
}

// applyAILinkDynamicEnvOverrides handles
//
//	{PREFIX}AILINK_PROVIDERS_<ID>_<FIELD>  provider settings, ID may contain '_'
//	{PREFIX}AILINK_ROUTING_<MODEL_ID>      provider instance for a model id
func applyAILinkDynamicEnvOverrides(prefix string, overrides map[string]any) {
	providerPrefix := prefix + "AILINK_PROVIDERS_"
	routingPrefix := prefix + "AILINK_ROUTING_"

	for _, item := range os.Environ() {
		key, value, ok := strings.Cut(item, "=")
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(key, providerPrefix):
			applyAILinkProviderOverride(overrides, strings.TrimPrefix(key, providerPrefix), value)
		case strings.HasPrefix(key, routingPrefix):
			if modelID := toSlug(strings.TrimPrefix(key, routingPrefix)); modelID != "" {
				ensureMap(ensureMap(overrides, "ailink"), "routing")[modelID] = value
			}
		}
	}
}

// providerFieldStarts are the tokens that end the provider id in a
// provider variable name.
var providerFieldStarts = map[string]bool{
	"ENABLED":     true,
	"AI":          true,
	"BASE":        true,
	"MODELS":      true,
	"CREDENTIALS": true,
	"DEFAULT":     true,
	"SELECTION":   true,
}

func applyAILinkProviderOverride(overrides map[string]any, raw string, value string) {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	split := -1
	for i, part := range parts {
		if i > 0 && providerFieldStarts[part] {
			split = i
			break
		}
	}
	if split <= 0 {
		return
	}

	provider := ensureMap(ensureMap(ensureMap(overrides, "ailink"), "providers"), strings.ToLower(strings.Join(parts[:split], "-")))
	field := strings.Join(parts[split:], "_")

	switch {
	case field == "ENABLED":
		provider["enabled"] = strings.EqualFold(value, "true")
	case field == "AI_PROVIDER":
		provider["ai_provider"] = strings.ToLower(value)
	case field == "DEFAULT_CREDENTIAL":
		provider["default_credential"] = value
	case field == "SELECTION_POLICY":
		provider["selection_policy"] = strings.ToLower(value)
	case field == "BASE_URL":
		provider["base_url"] = value
	case strings.HasPrefix(field, "MODELS_"):
		ensureMap(provider, "models")[strings.ToLower(strings.TrimPrefix(field, "MODELS_"))] = value
	case strings.HasPrefix(field, "CREDENTIALS_"):
		applyCredentialOverride(provider, strings.TrimPrefix(field, "CREDENTIALS_"), value)
	}
}

// applyCredentialOverride handles <INDEX>_<FIELD> for credential entries.
func applyCredentialOverride(provider map[string]any, rest string, value string) {
	rawIdx, rawField, ok := strings.Cut(rest, "_")
	idx, err := strconv.Atoi(rawIdx)
	if !ok || err != nil || idx < 0 || rawField == "" {
		return
	}
	field := strings.ToLower(rawField)
	cred := ensureSliceMap(ensureSlice(provider, "credentials", idx+1), idx)

	switch field {
	case "priority":
		if n, err := strconv.Atoi(value); err == nil {
			cred[field] = n
			return
		}
		cred[field] = value
	case "enabled":
		cred[field] = strings.EqualFold(value, "true")
	default:
		cred[field] = value
	}
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return map[string]any{}
	}
	if existing, ok := parent[key].(map[string]any); ok {
		return existing
	}
	next := map[string]any{}
	parent[key] = next
	return next
}

func ensureSlice(parent map[string]any, key string, length int) []any {
	existing, _ := parent[key].([]any)
	for len(existing) < length {
		existing = append(existing, map[string]any{})
	}
	parent[key] = existing
	return existing
}

func ensureSliceMap(slice []any, idx int) map[string]any {
	if idx < 0 || idx >= len(slice) {
		return map[string]any{}
	}
	if existing, ok := slice[idx].(map[string]any); ok {
		return existing
	}
	m := map[string]any{}
	slice[idx] = m
	return m
}

// toSlug turns LONG_CONTEXT into long-context.
func toSlug(raw string) string {
	var clean []string
	for _, part := range strings.Split(raw, "_") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "-")
}
