package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/mcp"
	"github.com/contextlens/contextlens/internal/observability"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the generate, needs_search and health tools over MCP stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout so agents can call
the orchestrator as tools. Logs go to stderr; stdout carries only protocol
frames.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		name := "contextlens"
		if identity := GetAppIdentity(); identity != nil && identity.BinaryName != "" {
			name = identity.BinaryName
		}

		observability.CLILogger.Debug("Starting MCP stdio server",
			zap.String("name", name),
			zap.String("version", versionInfo.Version))

		return mcp.NewService(rt.engine, name, versionInfo.Version).ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
