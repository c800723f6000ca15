package server

import (
	"context"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/appid"
	"github.com/contextlens/contextlens/internal/observability"
	"github.com/contextlens/contextlens/internal/server/handlers"
)

const (
	adminSignalPath  = "/admin/signal"
	adminRatePerMin  = 10
	adminRateBurst   = 5
	adminTokenSuffix = "ADMIN_TOKEN"
)

func (s *Server) registerRoutes() {
	if !s.deps.HideHealth {
		s.router.Get("/health", handlers.HealthHandler)
		s.router.Get("/health/live", handlers.LivenessHandler)
		s.router.Get("/health/ready", handlers.ReadinessHandler)
		s.router.Get("/health/startup", handlers.StartupHandler)
	}
	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)
	if s.deps.Pprof {
		s.router.Mount("/debug", middleware.Profiler())
	}

	if s.deps.API != nil {
		s.router.Route("/v1", s.deps.API.Routes)
	}
	if s.deps.MCP != nil {
		s.router.Handle("/mcp", s.deps.MCP)
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint mounts the signal endpoint only when
// <PREFIX>ADMIN_TOKEN is set; requests need that bearer token.
func (s *Server) registerAdminEndpoint() {
	envVar := appid.EnvPrefix(context.Background()) + adminTokenSuffix
	token := os.Getenv(envVar)
	if token == "" {
		observability.Debug("Admin signal endpoint disabled", zap.String("env", envVar))
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: token,
		RateLimit: adminRatePerMin,
		RateBurst: adminRateBurst,
	})
	s.router.Post(adminSignalPath, handler.ServeHTTP)

	observability.Warn("Admin signal endpoint enabled; keep this server off the public internet",
		zap.String("path", adminSignalPath),
		zap.Int("rate_per_min", adminRatePerMin),
		zap.Int("burst", adminRateBurst))
}
