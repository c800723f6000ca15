package driver

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracerWritesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	SetTracer(NewTracer(&buf))
	t.Cleanup(DisableTracing)

	require.True(t, IsTracingEnabled())
	Trace(TraceEntry{Driver: "openai", Endpoint: "/chat/completions", Method: "POST", Response: []byte(`{"ok":true}`)})
	Trace(TraceEntry{Driver: "anthropic", Endpoint: "/messages", Method: "POST", Response: []byte("upstream exploded")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "anthropic", second["driver"])
	assert.Equal(t, "upstream exploded", second["response"])
}

func TestTraceDisabledIsNoop(t *testing.T) {
	DisableTracing()
	assert.False(t, IsTracingEnabled())
	Trace(TraceEntry{Driver: "openai"})
}

type closeRecorder struct {
	bytes.Buffer
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestSetTracerClosesReplacedSink(t *testing.T) {
	first, second := &closeRecorder{}, &closeRecorder{}
	SetTracer(NewTracer(first))
	SetTracer(NewTracer(second))
	assert.Equal(t, 1, first.closed)
	assert.Zero(t, second.closed)

	DisableTracing()
	assert.Equal(t, 1, second.closed)
}
