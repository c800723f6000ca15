package ailink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlens/contextlens/internal/ailink/prompt"
	"github.com/contextlens/contextlens/internal/core"
)

func openAIServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		handler(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func gatewayConfig(urls map[string]string) Config {
	cfg := Config{
		DefaultTimeout: 2 * time.Second,
		Retry:          RetryConfig{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Providers:      map[string]ProviderInstanceConfig{},
		Fallbacks:      map[string][]string{},
	}
	for id, url := range urls {
		cfg.Providers[id] = ProviderInstanceConfig{
			Enabled:     true,
			AIProvider:  "openai",
			BaseURL:     url,
			Models:      map[string]string{"default": id + "-model", "fast": id + "-fast"},
			Credentials: []CredentialConfig{{Enabled: true, APIKey: "k"}},
		}
	}
	return cfg
}

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	prompts, err := prompt.DefaultRegistry()
	require.NoError(t, err)
	return &Service{Providers: NewRegistry(cfg), Prompts: prompts}
}

func TestGenerateReturnsTextAndTokens(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		assert.Equal(t, "main-fast", body["model"])
		assert.EqualValues(t, 10, body["max_tokens"])
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" answer "}}],"usage":{"total_tokens":42}}`))
	})
	svc := newTestService(t, gatewayConfig(map[string]string{"main": server.URL}))

	gen, err := svc.Generate(context.Background(), core.ModelFast, "question", Options{MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "answer", gen.Text)
	require.NotNil(t, gen.TokensUsed)
	assert.Equal(t, 42, *gen.TokensUsed)
	assert.Equal(t, "main", gen.Provider)
	assert.Equal(t, core.ModelFast, gen.ModelID)
}

func TestGenerateUnknownModelFallsBackToQuality(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		assert.Equal(t, "main-model", body["model"])
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})
	svc := newTestService(t, gatewayConfig(map[string]string{"main": server.URL}))

	gen, err := svc.Generate(context.Background(), core.ModelID("gpt-banana"), "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, core.ModelQuality, gen.ModelID)
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := openAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"third time"}}]}`))
	})
	svc := newTestService(t, gatewayConfig(map[string]string{"main": server.URL}))

	gen, err := svc.Generate(context.Background(), core.ModelQuality, "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, "third time", gen.Text)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGenerateDoesNotRetryAuthFailures(t *testing.T) {
	var calls atomic.Int32
	server := openAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	svc := newTestService(t, gatewayConfig(map[string]string{"main": server.URL}))

	_, err := svc.Generate(context.Background(), core.ModelQuality, "q", Options{})
	var gerr *GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, CodeAuth, gerr.Code)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGenerateUsesFallbackProvider(t *testing.T) {
	down := openAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	up := openAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"from backup"}}]}`))
	})
	cfg := gatewayConfig(map[string]string{"main": down.URL, "backup": up.URL})
	cfg.DefaultProvider = "main"
	cfg.Fallbacks["default"] = []string{"backup"}
	svc := newTestService(t, cfg)

	gen, err := svc.Generate(context.Background(), core.ModelQuality, "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, "from backup", gen.Text)
	assert.Equal(t, "backup", gen.Provider)
}

func TestGenerateEmptyContentIsError(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
	})
	svc := newTestService(t, gatewayConfig(map[string]string{"main": server.URL}))

	_, err := svc.Generate(context.Background(), core.ModelQuality, "q", Options{})
	var gerr *GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, CodeEmpty, gerr.Code)
}

func TestGenerateTimesOut(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"late"}}]}`))
	})
	cfg := gatewayConfig(map[string]string{"main": server.URL})
	cfg.Retry.Attempts = 1
	svc := newTestService(t, cfg)

	_, err := svc.Generate(context.Background(), core.ModelQuality, "q", Options{Timeout: 20 * time.Millisecond})
	var gerr *GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, CodeTimeout, gerr.Code)
}

type recordingLimiter struct {
	acquired atomic.Int32
	limited  atomic.Int32
}

func (l *recordingLimiter) Acquire(ctx context.Context, endpoint string) error {
	l.acquired.Add(1)
	return nil
}

func (l *recordingLimiter) Record429(ctx context.Context, endpoint string, retryAfter time.Duration) error {
	l.limited.Add(1)
	return nil
}

func TestGenerateConsultsLimiter(t *testing.T) {
	var calls atomic.Int32
	server := openAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})
	svc := newTestService(t, gatewayConfig(map[string]string{"main": server.URL}))
	limiter := &recordingLimiter{}
	svc.Limiter = limiter

	_, err := svc.Generate(context.Background(), core.ModelQuality, "q", Options{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, limiter.acquired.Load())
	assert.EqualValues(t, 1, limiter.limited.Load())
}

func TestGeneratePromptAppliesPromptSettings(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		assert.Equal(t, "main-fast", body["model"], "health probe prefers the fast model id")
		assert.EqualValues(t, 5, body["max_tokens"])
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})
	svc := newTestService(t, gatewayConfig(map[string]string{"main": server.URL}))

	gen, err := svc.GeneratePrompt(context.Background(), "", prompt.SlugHealthProbe, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", gen.Text)
}

func TestCallTimeoutBounds(t *testing.T) {
	assert.Equal(t, defaultTimeout, callTimeout(0, 0))
	assert.Equal(t, 3*time.Second, callTimeout(3*time.Second, 0))
	assert.Equal(t, time.Second, callTimeout(3*time.Second, time.Second))
	assert.Equal(t, maxTimeout, callTimeout(time.Hour, 0))
}
