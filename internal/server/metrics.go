package server

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	apperrors "github.com/contextlens/contextlens/internal/errors"
	"github.com/contextlens/contextlens/internal/metrics"
	"github.com/contextlens/contextlens/internal/observability"
)

var metricsProxyClient = &http.Client{
	Timeout: 5 * time.Second,
}

// startedAt is the Unix time of the last Start call; zero before it.
var startedAt atomic.Int64

// hopByHop headers are not copied from the exporter response.
var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func markStarted(now time.Time) {
	startedAt.Store(now.Unix())
	metrics.SetServerStartTime(now.Unix())
}

// MetricsHandler proxies Prometheus metrics from the internal exporter so
// /metrics can be scraped on the API port. Uptime is refreshed per scrape.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		HandleError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}
	if started := startedAt.Load(); started > 0 {
		metrics.SetServerUptime(time.Now().Unix() - started)
	}

	metricsURL := fmt.Sprintf("http://127.0.0.1:%d/metrics", exporterPort())
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, metricsURL, nil)
	if err != nil {
		HandleError(w, r, apperrors.WrapInternal(r.Context(), err, "Unable to construct metrics request"))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := metricsProxyClient.Do(req)
	if err != nil {
		envelope := apperrors.Wrap(r.Context(), apperrors.CodeExternalService, err, "Prometheus exporter unavailable")
		if withCtx, ctxErr := envelope.WithContext(map[string]interface{}{"metrics_url": metricsURL}); ctxErr == nil {
			envelope = withCtx
		}
		HandleError(w, r, envelope)
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			observability.Warn("Failed to close metrics response body", zap.Error(err))
		}
	}()

	for key, values := range resp.Header {
		if hopByHop[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if resp.Header.Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		observability.Warn("Failed to write metrics response", zap.Error(err))
	}
}

// exporterPort prefers the port the exporter actually bound.
func exporterPort() int {
	if port := observability.GetMetricsPort(); port != 0 {
		return port
	}
	if port := viper.GetInt("metrics.port"); port != 0 {
		return port
	}
	return 9090
}
