package driver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TraceEntry is one provider round trip, written as a single NDJSON line.
type TraceEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Driver      string          `json:"driver"`
	Endpoint    string          `json:"endpoint"`
	Method      string          `json:"method"`
	Model       string          `json:"model,omitempty"`
	PromptSlug  string          `json:"prompt_slug,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// Tracer serializes entries onto one writer.
type Tracer struct {
	mu  sync.Mutex
	enc *json.Encoder
	w   io.Writer
}

func NewTracer(w io.Writer) *Tracer {
	return &Tracer{w: w, enc: json.NewEncoder(w)}
}

// active is the process-wide tracer; nil disables tracing.
var active atomic.Pointer[Tracer]

// EnableTracing appends traces to the file at path until the returned
// func (or DisableTracing) is called.
func EnableTracing(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- user-selected trace path
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	SetTracer(NewTracer(f))
	return DisableTracing, nil
}

// SetTracer swaps in t and closes the tracer it replaces.
func SetTracer(t *Tracer) {
	if prev := active.Swap(t); prev != nil {
		_ = prev.Close()
	}
}

func DisableTracing() { SetTracer(nil) }

func IsTracingEnabled() bool { return active.Load() != nil }

// Trace writes entry to the active tracer, if any.
func Trace(entry TraceEntry) {
	active.Load().Write(entry)
}

// Write encodes entry as one line. Bodies that are not JSON are kept as
// JSON strings so every line stays parseable.
func (t *Tracer) Write(entry TraceEntry) {
	if t == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.RequestBody = asJSON(entry.RequestBody)
	entry.Response = asJSON(entry.Response)

	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.enc.Encode(entry)
}

// Close closes the sink if it is an io.Closer.
func (t *Tracer) Close() error {
	if t == nil {
		return nil
	}
	c, ok := t.w.(io.Closer)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return c.Close()
}

func asJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(strings.TrimSpace(string(raw)))
	return quoted
}
