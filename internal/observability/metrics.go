package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// defaultMetricsPort is reported when the exporter address cannot be parsed.
const defaultMetricsPort = 9090

var (
	// TelemetrySystem receives every metric emitted by internal/metrics.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the scrape endpoint proxied at /metrics.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics starts the Prometheus exporter on port (0 picks a free port)
// and installs the telemetry system. Metric names are prefixed with the
// namespace when given, the service name otherwise.
func InitMetrics(serviceName string, port int, namespace ...string) error {
	if port < 0 {
		port = 0
	}
	prefix := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		prefix = namespace[0]
	}

	exporter := exporters.NewPrometheusExporter(prefix, fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter: %w", err)
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: exporter})
	if err != nil {
		return fmt.Errorf("create telemetry system: %w", err)
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	metricsPort = boundPort(exporter.GetAddr(), port)
	return nil
}

// GetMetricsPort returns the port the exporter listens on, or 0 before
// InitMetrics.
func GetMetricsPort() int {
	return metricsPort
}

func boundPort(addr string, requested int) int {
	if _, raw, err := net.SplitHostPort(addr); err == nil {
		if port, err := strconv.Atoi(raw); err == nil && port != 0 {
			return port
		}
	}
	if requested == 0 {
		return defaultMetricsPort
	}
	return requested
}
