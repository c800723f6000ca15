// Package config loads contextlens configuration in three layers through
// gofulmen/config: shipped defaults (config/contextlens/v0), the user's XDG
// config file, then environment variables and runtime overrides.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/schema"
	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/appid"
	"github.com/contextlens/contextlens/internal/observability"
)

const (
	configCategory = "contextlens"
	configVersion  = "v0"
	defaultsFile   = "contextlens-defaults.yaml"
	schemaID       = "contextlens/v0/config"
)

var (
	configMu    sync.RWMutex
	appConfig   *Config
	appIdentity *appidentity.Identity
)

// Load resolves the layered configuration and makes it the current config.
// Later runtime overrides win over earlier ones and over the environment.
// It is safe to call again on reload.
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if err := ensureIdentity(ctx); err != nil {
		return nil, err
	}

	root, err := findProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}

	envOverrides, err := collectEnvOverrides(envPrefix())
	if err != nil {
		return nil, err
	}

	opts := gfconfig.LayeredConfigOptions{
		Category:     configCategory,
		Version:      configVersion,
		DefaultsFile: defaultsFile,
		SchemaID:     schemaID,
		UserPaths:    getUserConfigPaths(),
		Catalog:      schema.NewCatalog(filepath.Join(root, "schemas")),
		DefaultsRoot: filepath.Join(root, "config"),
	}
	layers := append([]map[string]any{envOverrides}, runtimeOverrides...)
	merged, diagnostics, err := gfconfig.LoadLayeredConfig(opts, layers...)
	if err != nil {
		return nil, fmt.Errorf("failed to load layered config: %w", err)
	}
	for _, diag := range diagnostics {
		reportDiagnostic(fmt.Sprint(diag.Pointer), fmt.Sprint(diag.Message))
	}

	cfg, err := decode(merged)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	setConfig(cfg)
	return cfg, nil
}

func ensureIdentity(ctx context.Context) error {
	if appIdentity != nil {
		return nil
	}
	identity, err := appid.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load app identity: %w", err)
	}
	appIdentity = identity
	return nil
}

func decode(merged map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// reportDiagnostic surfaces a schema finding without failing the load.
func reportDiagnostic(pointer, message string) {
	if observability.Active() == nil {
		fmt.Fprintf(os.Stderr, "Config validation: %s: %s\n", pointer, message)
		return
	}
	observability.Warn("Config validation", zap.String("pointer", pointer), zap.String("message", message))
}

// GetConfig returns the most recently loaded configuration.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}
