package integration

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlens/contextlens/internal/observability"
	"github.com/contextlens/contextlens/internal/server"
	"github.com/contextlens/contextlens/internal/server/handlers"
)

// sandboxDenied reports whether err means the environment refused a socket.
func sandboxDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "not permitted")
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if sandboxDenied(err) {
			t.Skipf("metrics exporter cannot bind here: %v", err)
		}
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
		}
		observability.PrometheusExporter = nil
		observability.TelemetrySystem = nil
	})
}

// newTestServer serves the full router on an IPv4 loopback listener. extra
// registers test-only routes before the listener starts.
func newTestServer(t *testing.T, deps server.Deps, extra func(chi.Router)) (*httptest.Server, *http.Client) {
	t.Helper()

	srv := server.New("127.0.0.1", 0, deps)
	if extra != nil {
		router, ok := srv.Handler().(chi.Router)
		require.True(t, ok, "server handler should be a chi router")
		extra(router)
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if sandboxDenied(err) {
		t.Skipf("loopback listener unavailable: %v", err)
	}
	require.NoError(t, err)

	ts := &httptest.Server{Listener: ln, Config: &http.Server{Handler: srv.Handler()}}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func scrape(t *testing.T, client *http.Client, url string) (int, string, string) {
	t.Helper()
	resp, err := client.Get(url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header.Get("Content-Type"), string(body)
}

func TestMetricsAfterGenerationTraffic_Integration(t *testing.T) {
	initMetricsOrSkip(t)
	handlers.InitHealthManager("test")

	ts, client, _ := newPipelineServer(t)

	const requests = 12
	var wg sync.WaitGroup
	errs := make(chan error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"prompt":"latest news on release %d","explicit_search_enable":%t}`, n, n%2 == 0)
			resp, err := client.Post(ts.URL+"/v1/generate", "application/json", strings.NewReader(body))
			if err != nil {
				errs <- err
				return
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs <- fmt.Errorf("request %d: status %d", n, resp.StatusCode)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	status, _, body := scrape(t, client, ts.URL)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, "contextlens_search_queries_total")
	assert.Contains(t, body, "contextlens_requests_total")
}

func TestMetricsExpositionFormat_Integration(t *testing.T) {
	initMetricsOrSkip(t)
	handlers.InitHealthManager("test")

	ts, client := newTestServer(t, server.Deps{}, func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	resp, err := client.Get(ts.URL + "/ping")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	status, contentType, body := scrape(t, client, ts.URL)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(contentType, "text/plain; version=0.0.4"), "content type %q", contentType)

	samples := 0
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		assert.GreaterOrEqual(t, len(strings.Fields(line)), 2, "sample line %q", line)
		samples++
	}
	assert.Positive(t, samples)
}

func TestMetricsUnavailableWithoutExporter_Integration(t *testing.T) {
	exporter, system := observability.PrometheusExporter, observability.TelemetrySystem
	observability.PrometheusExporter, observability.TelemetrySystem = nil, nil
	t.Cleanup(func() {
		observability.PrometheusExporter, observability.TelemetrySystem = exporter, system
	})
	t.Setenv("CONTEXTLENS_METRICS_ENABLED", "false")

	ts, client := newTestServer(t, server.Deps{}, nil)

	status, _, _ := scrape(t, client, ts.URL)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
