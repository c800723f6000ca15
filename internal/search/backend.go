package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// BackendError is a non-2xx backend response.
type BackendError struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s search failed: status %d: %s", e.Backend, e.StatusCode, e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *BackendError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// NewBackend builds the backend named by cfg.Backend.
func NewBackend(cfg Config, client *http.Client) (Backend, error) {
	if client == nil {
		client = &http.Client{}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "brave":
		return &Brave{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Country: cfg.Country, Client: client}, nil
	case "serpapi":
		return &SerpAPI{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Engine: cfg.Engine, Client: client}, nil
	case "exa":
		return &Exa{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Client: client}, nil
	default:
		return nil, fmt.Errorf("unsupported search backend %q", cfg.Backend)
	}
}

func doJSON(ctx context.Context, client *http.Client, backend string, req *http.Request) (gjson.Result, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s request failed: %w", backend, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s read response: %w", backend, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return gjson.Result{}, &BackendError{Backend: backend, StatusCode: resp.StatusCode, Message: msg}
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s returned malformed JSON", backend)
	}
	return gjson.ParseBytes(body), nil
}

// hits maps a result array; a missing or null array yields no hits.
func hits(arr gjson.Result, fn func(item gjson.Result) (Hit, bool)) []Hit {
	if !arr.Exists() || arr.Type == gjson.Null || !arr.IsArray() {
		return nil
	}
	out := make([]Hit, 0, len(arr.Array()))
	arr.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		if hit, ok := fn(item); ok {
			out = append(out, hit)
		}
		return true
	})
	return out
}

func scoreOf(item gjson.Result, path string) float64 {
	value := item.Get(path)
	if !value.Exists() || value.Type != gjson.Number {
		return -1
	}
	return value.Float()
}
