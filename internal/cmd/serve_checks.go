package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/appidentity"

	"github.com/contextlens/contextlens/internal/core"
	errwrap "github.com/contextlens/contextlens/internal/errors"
	"github.com/contextlens/contextlens/internal/observability"
	"github.com/contextlens/contextlens/internal/server/handlers"
)

type gatewayProber interface {
	HealthCheck(ctx context.Context) core.HealthStatus
}

// gatewayCheck probes both gateways live. A failing search gateway only
// degrades readiness since generation still works without search.
func gatewayCheck(engine gatewayProber) handlers.CheckFunc {
	return func(ctx context.Context) error {
		status := engine.HealthCheck(ctx)
		switch {
		case !status.ModelGatewayHealthy && !status.SearchGatewayHealthy:
			return errwrap.NewServiceUnavailableError("model and search gateways unhealthy")
		case !status.ModelGatewayHealthy:
			return errwrap.NewServiceUnavailableError("model gateway unhealthy")
		case !status.SearchGatewayHealthy:
			return fmt.Errorf("%w: search gateway unhealthy", handlers.ErrDegraded)
		}
		return nil
	}
}

func telemetryCheck(context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

func identityCheck(identity *appidentity.Identity) handlers.CheckFunc {
	return func(context.Context) error {
		switch {
		case identity == nil:
			return errwrap.NewConfigInvalidError("app identity not loaded")
		case identity.BinaryName == "":
			return errwrap.NewConfigInvalidError("app identity missing binary name")
		case identity.EnvPrefix == "":
			return errwrap.NewConfigInvalidError("app identity missing env prefix")
		case identity.ConfigName == "":
			return errwrap.NewConfigInvalidError("app identity missing config name")
		}
		return nil
	}
}

// storeCheck pings the store; without one the service runs degraded.
func storeCheck(rt *appRuntime) handlers.CheckFunc {
	return func(ctx context.Context) error {
		if rt.store == nil {
			return fmt.Errorf("%w: store disabled", handlers.ErrDegraded)
		}
		if err := rt.store.DB.PingContext(ctx); err != nil {
			return errwrap.NewServiceUnavailableError("store unreachable")
		}
		return nil
	}
}

func registerHealthChecks(hm *handlers.HealthManager, rt *appRuntime, identity *appidentity.Identity) {
	hm.RegisterChecker("app_identity", identityCheck(identity))
	hm.RegisterChecker("store", storeCheck(rt))
	if rt.cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", handlers.CheckFunc(telemetryCheck))
	}
	if rt.cfg.Health.ProbeGateways {
		hm.RegisterChecker("gateways", gatewayCheck(rt.engine))
	}
}
