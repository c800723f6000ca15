package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/contextlens/contextlens/internal/errors"
	"github.com/contextlens/contextlens/internal/observability"
	"github.com/contextlens/contextlens/internal/output"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the model and search gateways",
	Long: `Send a live probe to the model gateway and the search gateway.
Exits non-zero when either gateway is unhealthy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
			rt.engine.Reporter.Timeout = timeout
		}

		status := rt.engine.HealthCheck(cmd.Context())
		if err := writeFormatted(cmd, "health", func(f output.Formatter) (string, error) {
			return f.FormatHealth(status)
		}); err != nil {
			return err
		}

		if !status.Overall {
			observability.CLILogger.Debug("Gateway probe failed",
				zap.Bool("model", status.ModelGatewayHealthy),
				zap.Bool("search", status.SearchGatewayHealthy))
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable,
				"Gateway health check failed", errwrap.NewServiceUnavailableError("one or more gateways are unhealthy"))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show search gateway counters and supported model ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		stats := rt.engine.GetStats()
		return writeFormatted(cmd, "stats", func(f output.Formatter) (string, error) {
			return f.FormatStats(stats)
		})
	},
}

func init() {
	rootCmd.AddCommand(healthCmd, statsCmd)

	healthCmd.Flags().Duration("timeout", 0, "Probe timeout (default from engine.probe_timeout)")
	addOutputFlags(healthCmd, allFormats...)
	addOutputFlags(statsCmd, allFormats...)
}
