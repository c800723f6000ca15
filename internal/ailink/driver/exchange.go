package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Exchange describes one JSON POST to a provider.
type Exchange struct {
	Driver     string
	URL        string
	Header     http.Header
	Model      string
	PromptSlug string
	Client     *http.Client
	Timeout    time.Duration
}

// PostJSON encodes payload, posts it and returns the raw 2xx body. Every
// attempt is traced; non-2xx answers become a *ProviderError.
func PostJSON(ctx context.Context, x Exchange, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if x.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range x.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	client := x.Client
	if client == nil {
		client = http.DefaultClient
	}

	entry := TraceEntry{
		Driver:      x.Driver,
		Endpoint:    x.URL,
		Method:      http.MethodPost,
		Model:       x.Model,
		PromptSlug:  x.PromptSlug,
		RequestBody: body,
	}
	started := time.Now()
	defer func() {
		entry.DurationMs = time.Since(started).Milliseconds()
		Trace(entry)
	}()

	resp, err := client.Do(req)
	if err != nil {
		entry.Error = err.Error()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	entry.StatusCode = resp.StatusCode
	entry.Response = respBody
	if err != nil {
		entry.Error = err.Error()
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewProviderError(x.Driver, resp, respBody)
	}
	return respBody, nil
}
