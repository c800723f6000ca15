package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/ailink/driver"
	"github.com/contextlens/contextlens/internal/appid"
	"github.com/contextlens/contextlens/internal/config"
	"github.com/contextlens/contextlens/internal/observability"
	"github.com/contextlens/contextlens/internal/server/handlers"
)

var (
	cfgFile   string
	verbose   bool
	traceFile string

	appIdentity *appidentity.Identity

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo records build metadata injected by main for both the CLI
// and the /version endpoint.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

// GetAppIdentity returns the embedded app identity, or nil if it failed to load.
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   filepath.Base(os.Args[0]),
	Short: "Search-augmented generation orchestrator for LLM providers",
	Long: `Route prompts to LLM providers, augmenting them with web search results
when the prompt needs current information.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading must not emit metrics to stdout; serve installs the
	// real telemetry system later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	if identity, err := appid.Get(context.Background()); err == nil {
		applyIdentity(identity)
	}

	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is the XDG config path)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	flags.StringVar(&traceFile, "trace", "", "append model provider requests and responses to an NDJSON file")
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
}

// applyIdentity brands the root command from the embedded app identity.
func applyIdentity(identity *appidentity.Identity) {
	if identity == nil {
		return
	}
	appIdentity = identity
	if identity.BinaryName != "" {
		rootCmd.Use = identity.BinaryName
	}
	if identity.Description != "" {
		rootCmd.Short = identity.Description
		rootCmd.Long = fmt.Sprintf("%s - %s", identity.BinaryName, identity.Description)
	}
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && identity.ConfigName != "" {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}
}

func initConfig() {
	identity, err := appid.Get(context.Background())
	if err != nil {
		ExitWithCodeStderr(foundry.ExitFileNotFound, "Failed to load app identity", err)
	}
	applyIdentity(identity)

	observability.InitCLILogger(identity.BinaryName, verbose)
	enableTracing(traceFile)
	configureViper(identity)
	setDefaults()
}

// enableTracing starts NDJSON tracing of provider calls for the rest of
// the process.
func enableTracing(path string) {
	if path == "" {
		return
	}
	if _, err := driver.EnableTracing(path); err != nil {
		observability.CLILogger.Warn("Failed to enable tracing", zap.Error(err))
		return
	}
	observability.CLILogger.Debug("Provider tracing enabled", zap.String("file", path))
}

// configureViper points viper at --config or the XDG config file and the
// identity env prefix. Flags bound to viper resolve against it.
func configureViper(identity *appidentity.Identity) {
	viper.SetEnvPrefix(identity.EnvPrefix)
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
		if dir := gfconfig.GetAppConfigDir(identity.ConfigName); dir != "" {
			viper.AddConfigPath(dir)
		} else if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName("." + identity.ConfigName)
		}
		viper.AddConfigPath("./config")
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	case errors.As(err, &notFound):
		observability.CLILogger.Debug("No config file found, using defaults and environment")
	default:
		observability.CLILogger.Warn("Error reading config file", zap.Error(err))
	}
}

// viperDefaults mirrors config/contextlens/v0/contextlens-defaults.yaml for
// the keys commands read straight from viper.
var viperDefaults = map[string]any{
	"server.host":               "localhost",
	"server.port":               8080,
	"server.read_timeout":       "30s",
	"server.write_timeout":      "5m",
	"server.idle_timeout":       "120s",
	"server.shutdown_timeout":   "10s",
	"logging.level":             "info",
	"store.driver":              "libsql",
	"store.url":                 "",
	"store.auth_token":          "",
	"store.disabled":            false,
	"search.backend":            "brave",
	"search.cache_ttl":          "15m",
	"search.cache_size":         512,
	"engine.default_model":      "quality",
	"engine.max_search_results": 10,
	"engine.workers":            4,
	"engine.probe_timeout":      "10s",
	"mcp.enabled":               false,
	"rate_limits":               map[string]int{},
	"rate_limit_margin":         0.9,
	"metrics.enabled":           true,
	"metrics.port":              9090,
	"health.enabled":            true,
	"health.probe_gateways":     false,
	"debug.enabled":             false,
	"debug.pprof_enabled":       false,
}

func setDefaults() {
	for key, value := range viperDefaults {
		viper.SetDefault(key, value)
	}
	viper.SetDefault("store.path", config.DefaultStorePath())
}
