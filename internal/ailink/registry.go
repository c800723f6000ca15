package ailink

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/contextlens/contextlens/internal/ailink/driver"
	"github.com/contextlens/contextlens/internal/ailink/driver/anthropic"
	"github.com/contextlens/contextlens/internal/ailink/driver/openai"
	"github.com/contextlens/contextlens/internal/core"
)

const (
	xaiBaseURL    = "https://api.x.ai/v1"
	ollamaBaseURL = "http://localhost:11434/v1"
)

// providerKind describes one ai_provider value.
type providerKind struct {
	// baseURL is used when the provider config sets none; empty means the
	// driver default, or that base_url is required when needsURL is set.
	baseURL  string
	needsURL bool
	keyless  bool
	build    func(baseURL, apiKey string, cfg Config) driver.Driver
}

func chatCompletions(kind string, keyless bool) func(string, string, Config) driver.Driver {
	return func(baseURL, apiKey string, cfg Config) driver.Driver {
		c := openai.NewClient(baseURL, apiKey)
		c.Provider = kind
		c.KeyOptional = keyless
		c.Timeout = cfg.DefaultTimeout
		return c
	}
}

var providerKinds = map[string]providerKind{
	"openai":            {build: chatCompletions("openai", false)},
	"xai":               {baseURL: xaiBaseURL, build: chatCompletions("xai", false)},
	"ollama":            {baseURL: ollamaBaseURL, keyless: true, build: chatCompletions("ollama", true)},
	"openai-compatible": {needsURL: true, keyless: true, build: chatCompletions("openai-compatible", true)},
	"anthropic": {build: func(baseURL, apiKey string, cfg Config) driver.Driver {
		c := anthropic.NewClient(baseURL, apiKey)
		c.Timeout = cfg.DefaultTimeout
		return c
	}},
}

func kindOf(providerType string) (string, providerKind, bool) {
	name := strings.ToLower(strings.TrimSpace(providerType))
	kind, ok := providerKinds[name]
	return name, kind, ok
}

// Registry resolves a model id to a provider instance, credential and
// driver. Drivers are built once per provider and credential.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	drivers map[string]driver.Driver
	rr      map[string]int
}

// ResolvedProvider is the outcome of routing one model id.
type ResolvedProvider struct {
	ProviderID string
	Provider   ProviderInstanceConfig
	Credential CredentialConfig
	Driver     driver.Driver
	Model      string
	BaseURL    string
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	if r == nil {
		return Config{}
	}
	return r.cfg
}

// Resolve routes modelID to its primary provider: an explicit routing
// entry, then a provider declaring the model id as a role, then the default
// provider, then the only enabled provider.
func (r *Registry) Resolve(modelID core.ModelID) (*ResolvedProvider, error) {
	if r == nil {
		return nil, errors.New("ailink registry not configured")
	}
	providerID, err := r.route(strings.TrimSpace(string(modelID)))
	if err != nil {
		return nil, err
	}
	return r.resolveWith(providerID, r.cfg.Providers[providerID], modelID)
}

// ResolveFallbacks returns the enabled fallback providers for modelID, in
// order, skipping primaryID and any provider that fails to resolve.
func (r *Registry) ResolveFallbacks(modelID core.ModelID, primaryID string) []*ResolvedProvider {
	if r == nil {
		return nil
	}
	ids, ok := r.cfg.Fallbacks[string(modelID)]
	if !ok || len(ids) == 0 {
		ids = r.cfg.Fallbacks["default"]
	}
	var out []*ResolvedProvider
	for _, id := range ids {
		id = strings.TrimSpace(id)
		providerCfg, known := r.cfg.Providers[id]
		if id == "" || id == primaryID || !known || !providerCfg.Enabled {
			continue
		}
		if resolved, err := r.resolveWith(id, providerCfg, modelID); err == nil {
			out = append(out, resolved)
		}
	}
	return out
}

// EnabledProviders lists enabled provider ids in sorted order.
func (r *Registry) EnabledProviders() []string {
	if r == nil {
		return nil
	}
	var ids []string
	for id, providerCfg := range r.cfg.Providers {
		if providerCfg.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) route(modelID string) (string, error) {
	if modelID != "" {
		if id := strings.TrimSpace(r.cfg.Routing[modelID]); id != "" {
			return id, r.checkEnabled(id, fmt.Sprintf("for model %q", modelID))
		}
		for _, id := range r.EnabledProviders() {
			if hasRole(r.cfg.Providers[id].Roles, modelID) {
				return id, nil
			}
		}
	}

	if id := strings.TrimSpace(r.cfg.DefaultProvider); id != "" {
		return id, r.checkEnabled(id, "(default)")
	}

	switch enabled := r.EnabledProviders(); len(enabled) {
	case 0:
		return "", errors.New("no enabled providers configured")
	case 1:
		return enabled[0], nil
	default:
		return "", fmt.Errorf("no provider routing configured for model %q", modelID)
	}
}

func (r *Registry) checkEnabled(id, role string) error {
	providerCfg, ok := r.cfg.Providers[id]
	switch {
	case !ok:
		return fmt.Errorf("unknown provider %q %s", id, role)
	case !providerCfg.Enabled:
		return fmt.Errorf("provider %q %s is disabled", id, role)
	}
	return nil
}

func (r *Registry) resolveWith(providerID string, providerCfg ProviderInstanceConfig, modelID core.ModelID) (*ResolvedProvider, error) {
	cred, credKey, err := selectCredential(providerCfg, func(group string, n int) int {
		return r.rrIndex(providerID+":"+group, n)
	})
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerID, err)
	}
	model, err := resolveModel(providerCfg, modelID)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerID, err)
	}
	drv, baseURL, err := r.driverFor(providerID, providerCfg, cred, credKey)
	if err != nil {
		return nil, err
	}
	return &ResolvedProvider{
		ProviderID: providerID,
		Provider:   providerCfg,
		Credential: cred,
		Driver:     drv,
		Model:      model,
		BaseURL:    baseURL,
	}, nil
}

// driverFor returns the cached driver for provider and credential along
// with the effective base URL.
func (r *Registry) driverFor(providerID string, providerCfg ProviderInstanceConfig, cred CredentialConfig, credKey string) (driver.Driver, string, error) {
	name, kind, ok := kindOf(providerCfg.AIProvider)
	if !ok {
		if name == "" {
			name = "(unset)"
		}
		return nil, "", fmt.Errorf("unsupported ai_provider %q for provider %q", name, providerID)
	}
	baseURL := strings.TrimSpace(providerCfg.BaseURL)
	if baseURL == "" {
		if kind.needsURL {
			return nil, "", fmt.Errorf("provider %q requires base_url", providerID)
		}
		baseURL = kind.baseURL
	}

	cacheKey := providerID
	if credKey != "" {
		cacheKey += ":" + credKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	drv, cached := r.drivers[cacheKey]
	if !cached {
		drv = kind.build(baseURL, cred.APIKey, r.cfg)
		if r.drivers == nil {
			r.drivers = make(map[string]driver.Driver)
		}
		r.drivers[cacheKey] = drv
	}

	switch client := drv.(type) {
	case *openai.Client:
		baseURL = client.BaseURL
	case *anthropic.Client:
		baseURL = client.BaseURL
	}
	return drv, baseURL, nil
}

// resolveModel maps a model id to the provider's model name, falling back
// to the provider's "default" entry.
func resolveModel(providerCfg ProviderInstanceConfig, modelID core.ModelID) (string, error) {
	for _, key := range []string{string(modelID), "default"} {
		if model := strings.TrimSpace(providerCfg.Models[key]); model != "" {
			return model, nil
		}
	}
	return "", fmt.Errorf("model not configured for %q", modelID)
}

func hasRole(roles []string, modelID string) bool {
	for _, role := range roles {
		if strings.EqualFold(strings.TrimSpace(role), modelID) {
			return true
		}
	}
	return false
}
