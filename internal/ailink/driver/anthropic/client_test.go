package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlens/contextlens/internal/ailink/content"
	"github.com/contextlens/contextlens/internal/ailink/driver"
)

func TestClientSendsMessagesRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))

		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "be brief", payload["system"])
		assert.EqualValues(t, 64, payload["max_tokens"])
		assert.Len(t, payload["messages"], 1)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"part one"},{"type":"tool_use"},{"type":"text","text":"part two"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	client.HTTPClient = server.Client()

	maxTokens := 64
	resp, err := client.Complete(context.Background(), &driver.Request{
		Model:     "claude-test",
		Messages:  []content.Message{content.Text("system", "be brief"), content.Text("user", "hello")},
		MaxTokens: &maxTokens,
	})
	require.NoError(t, err)
	assert.Equal(t, "part one\npart two", resp.Text())
	assert.Equal(t, "end_turn", resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestClientDefaultsMaxTokens(t *testing.T) {
	payload, err := buildMessagesRequest(&driver.Request{Model: "m", Messages: []content.Message{content.Text("user", "x")}})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxTokens, payload.MaxTokens)

	_, err = buildMessagesRequest(&driver.Request{Model: "m", Messages: []content.Message{content.Text("system", "only system")}})
	require.Error(t, err)
}

func TestClientMapsProviderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	client.HTTPClient = server.Client()

	_, err := client.Complete(context.Background(), &driver.Request{Model: "m", Messages: []content.Message{content.Text("user", "x")}})
	var perr *driver.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	assert.True(t, perr.Temporary())
}

func TestClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("", "").Complete(context.Background(), &driver.Request{Model: "m"})
	require.Error(t, err)
}
