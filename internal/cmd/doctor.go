package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/contextlens/contextlens/internal/ailink"
	"github.com/contextlens/contextlens/internal/config"
	"github.com/contextlens/contextlens/internal/observability"
	"github.com/contextlens/contextlens/internal/output"
	"github.com/contextlens/contextlens/internal/search"
)

// doctorCheck is one line of the doctor report. ok=false marks a warning;
// it never aborts the remaining checks.
type doctorCheck struct {
	name string
	run  func(cfg *config.Config) (detail string, ok bool)
}

var doctorChecks = []doctorCheck{
	{"Go version", func(*config.Config) (string, bool) {
		return runtime.Version(), runtime.Version() >= "go1.23"
	}},
	{"Gofulmen", func(*config.Config) (string, bool) {
		v := crucible.GetVersion()
		return fmt.Sprintf("gofulmen %s, crucible %s", v.Gofulmen, v.Crucible), v.Gofulmen != ""
	}},
	{"Config directory", func(*config.Config) (string, bool) {
		path := config.DefaultConfigPath()
		if path == "" {
			return "cannot resolve config directory", false
		}
		return fmt.Sprintf("%s (%s)", path, existenceStatus(fileExists(path))), true
	}},
	{"Database", func(cfg *config.Config) (string, bool) {
		switch {
		case cfg.Store.Disabled:
			return "disabled; tasks are not persisted", true
		case cfg.Store.URL != "":
			return cfg.Store.URL + " (remote)", true
		}
		path := cfg.Store.Path
		if path == "" {
			path = config.DefaultStorePath()
		}
		abs, _ := filepath.Abs(path)
		info, err := os.Stat(abs)
		switch {
		case err == nil:
			return fmt.Sprintf("%s (%s)", abs, formatFileSize(info.Size())), true
		case os.IsNotExist(err):
			return abs + " (created on first use)", true
		default:
			return fmt.Sprintf("%s (%v)", abs, err), false
		}
	}},
	{"Model providers", func(cfg *config.Config) (string, bool) {
		enabled := ailink.NewRegistry(cfg.AILink).EnabledProviders()
		if len(enabled) == 0 {
			return "none enabled (run 'doctor init' or configure ailink.providers)", false
		}
		return strings.Join(enabled, ", "), true
	}},
	{"Prompts", func(cfg *config.Config) (string, bool) {
		svc, err := ailink.NewService(cfg.AILink)
		if err != nil {
			return err.Error(), false
		}
		return fmt.Sprintf("%d loaded", len(svc.Prompts.List())), true
	}},
	{"Search backend", func(cfg *config.Config) (string, bool) {
		svc, err := search.NewService(cfg.Search)
		if err != nil {
			return err.Error(), false
		}
		return svc.Describe(), true
	}},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Check the local installation and configuration and suggest fixes for common issues. No provider is contacted; use 'health' for live probes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Error("Config failed to load", zap.Error(err))
			return err
		}

		t := output.NewTable()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Check", "", "Detail"})
		warnings := 0
		for _, check := range doctorChecks {
			detail, ok := check.run(cfg)
			mark := "ok"
			if !ok {
				mark = "warn"
				warnings++
				log.Warn("Doctor check needs attention", zap.String("check", check.name), zap.String("detail", detail))
			}
			t.AppendRow(table.Row{check.name, mark, detail})
		}
		t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d/%d passed", len(doctorChecks)-warnings, len(doctorChecks))})
		t.Render()
		return nil
	},
}

var (
	doctorInitForce     bool
	doctorInitAPIKey    string
	doctorInitSearchKey string
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config with one OpenAI provider and Brave search",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if fileExists(configPath) && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		apiKey, err := resolvePromptedValue(doctorInitAPIKey, "Enter OpenAI API key (leave blank to skip): ")
		if err != nil {
			return err
		}
		searchKey, err := resolvePromptedValue(doctorInitSearchKey, "Enter Brave Search API key (leave blank to skip): ")
		if err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		mode := os.FileMode(0644)
		if apiKey != "" || searchKey != "" {
			mode = 0600
		}
		if err := os.WriteFile(configPath, []byte(buildInitConfig(apiKey, searchKey)), mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := output.NewTable()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Location", "Path", "Status"})
		for _, loc := range []struct{ name, path string }{
			{"config file", config.DefaultConfigPath()},
			{"data directory", config.DefaultDataDir()},
			{"cache directory", config.DefaultCacheDir()},
			{"store", config.DefaultStorePath()},
		} {
			t.AppendRow(table.Row{loc.name, loc.path, existenceStatus(fileExists(loc.path))})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd, doctorConfigCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite an existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitAPIKey, "api-key", "", "OpenAI API key, or 'prompt' to ask")
	doctorInitCmd.Flags().StringVar(&doctorInitSearchKey, "search-key", "", "Brave Search API key, or 'prompt' to ask")
}

func formatFileSize(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d bytes", bytes)
	}
	size := float64(bytes)
	unit := "bytes"
	for _, next := range []string{"KB", "MB", "GB"} {
		if size < 1024 {
			break
		}
		size /= 1024
		unit = next
	}
	return fmt.Sprintf("%.1f %s", size, unit)
}

// starterConfig is the subset of the config file that doctor init writes.
type starterConfig struct {
	AILink struct {
		DefaultProvider string                        `yaml:"default_provider"`
		Providers       map[string]initProviderConfig `yaml:"providers"`
	} `yaml:"ailink"`
	Search struct {
		Backend string `yaml:"backend"`
		APIKey  string `yaml:"api_key,omitempty"`
	} `yaml:"search"`
}

type initProviderConfig struct {
	Enabled     bool              `yaml:"enabled"`
	AIProvider  string            `yaml:"ai_provider"`
	Models      map[string]string `yaml:"models"`
	Credentials []initCredential  `yaml:"credentials"`
}

type initCredential struct {
	Label    string `yaml:"label"`
	Enabled  bool   `yaml:"enabled"`
	Priority int    `yaml:"priority"`
	APIKey   string `yaml:"api_key,omitempty"`
}

const starterConfigHeader = `# contextlens config - created by 'contextlens doctor init'
# Keys left out here can come from the environment:
#   CONTEXTLENS_AILINK_PROVIDERS_PRIMARY_OPENAI_CREDENTIALS_0_API_KEY
#   CONTEXTLENS_SEARCH_API_KEY
`

func buildInitConfig(apiKey, searchKey string) string {
	var cfg starterConfig
	cfg.AILink.DefaultProvider = "primary-openai"
	cfg.AILink.Providers = map[string]initProviderConfig{
		"primary-openai": {
			Enabled:    true,
			AIProvider: "openai",
			Models:     map[string]string{"default": "gpt-4o", "fast": "gpt-4o-mini"},
			Credentials: []initCredential{
				{Label: "default", Enabled: true, APIKey: apiKey},
			},
		},
	}
	cfg.Search.Backend = "brave"
	cfg.Search.APIKey = searchKey

	body, err := yaml.Marshal(&cfg)
	if err != nil {
		panic(err) // unreachable for plain structs
	}
	return starterConfigHeader + string(body)
}

func resolvePromptedValue(value, prompt string) (string, error) {
	value = strings.TrimSpace(value)
	if !strings.EqualFold(value, "prompt") {
		return value, nil
	}
	if _, err := fmt.Fprint(os.Stdout, prompt); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}
