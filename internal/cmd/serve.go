package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/config"
	errwrap "github.com/contextlens/contextlens/internal/errors"
	"github.com/contextlens/contextlens/internal/mcp"
	"github.com/contextlens/contextlens/internal/observability"
	"github.com/contextlens/contextlens/internal/server"
	"github.com/contextlens/contextlens/internal/server/handlers"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	forceQuitWindow        = 2 * time.Second
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP server exposing the /v1 generation API, health probes
and, when mcp.enabled is set, the MCP streamable transport at /mcp.

Signals:
  SIGINT/SIGTERM   graceful shutdown (press Ctrl+C twice within 2s to force quit)
  SIGHUP           reload rate limit settings from the config file`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	identity := GetAppIdentity()

	cfg, err := config.Load(ctx)
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "config load failed")
	}

	namespace := identity.TelemetryNamespace()
	level := cfg.Logging.Level
	if cfg.Debug.Enabled {
		level = "debug"
	}
	observability.InitServerLogger(identity.BinaryName, level, namespace)
	log := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
			log.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return errwrap.WrapInternal(ctx, err, "engine initialization failed")
	}

	handlers.InitHealthManager(versionInfo.Version)
	handlers.SetAppIdentity(identity)
	registerHealthChecks(handlers.GetHealthManager(), rt, identity)

	srv := server.New(serverHost, serverPort, serverDeps(rt, identity))

	log.Info("Initializing server",
		zap.String("service", identity.BinaryName),
		zap.String("namespace", namespace),
		zap.String("version", versionInfo.Version),
		zap.String("host", serverHost),
		zap.Int("port", serverPort),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Bool("store", rt.store != nil),
		zap.Bool("mcp", cfg.MCP.Enabled))

	registerLifecycle(srv, rt, cfg.Server.ShutdownTimeout)

	errs := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	go func() {
		if err := signals.Listen(ctx); err != nil {
			log.Error("Signal handler error", zap.Error(err))
			errs <- err
		}
	}()

	if err := <-errs; err != nil {
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}

func serverDeps(rt *appRuntime, identity *appidentity.Identity) server.Deps {
	cfg := rt.cfg
	deps := server.Deps{
		API:          &handlers.API{Engine: rt.engine},
		HideHealth:   !cfg.Health.Enabled,
		Pprof:        cfg.Debug.Enabled && cfg.Debug.PprofEnabled,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if rt.store != nil {
		deps.API.Tasks = rt.store
	}
	if cfg.MCP.Enabled {
		deps.MCP = mcp.NewService(rt.engine, identity.BinaryName, versionInfo.Version).HTTPHandler()
	}
	return deps
}

// registerLifecycle installs shutdown and reload handlers. Shutdown handlers
// run last-registered first: the HTTP server stops before the store closes.
func registerLifecycle(srv *server.Server, rt *appRuntime, shutdownTimeout time.Duration) {
	log := observability.ServerLogger
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	signals.OnShutdown(func(ctx context.Context) error {
		if err := rt.Close(); err != nil {
			log.Warn("Store close returned error", zap.Error(err))
		}
		// stderr may already be closed.
		_ = log.Sync()
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		log.Info("Shutting down HTTP server", zap.Duration("timeout", shutdownTimeout))
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		log.Info("HTTP server stopped")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		return reloadRateLimits(ctx, rt)
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  forceQuitWindow,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		log.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}
}

// reloadRateLimits re-reads the config file and applies rate limit settings.
// Gateway changes need a restart.
func reloadRateLimits(ctx context.Context, rt *appRuntime) error {
	log := observability.ServerLogger
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Info("SIGHUP: no config file, keeping current settings")
			return nil
		}
		log.Error("SIGHUP: config file unreadable", zap.String("file", viper.ConfigFileUsed()), zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}

	reloaded, err := config.Load(ctx)
	if err != nil {
		log.Error("SIGHUP: reloaded config is invalid", zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}
	rt.limiter.ApplyOverrides(reloaded.RateLimits)
	rt.limiter.ApplySafetyMargin(reloaded.RateLimitMargin)

	log.Info("SIGHUP: rate limits reloaded",
		zap.String("file", viper.ConfigFileUsed()),
		zap.Int("overrides", len(reloaded.RateLimits)),
		zap.Float64("margin", reloaded.RateLimitMargin))
	return nil
}
