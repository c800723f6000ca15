package driver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ProviderError is returned when a provider responds with a non-2xx status.
//
// RawResponse holds the provider body and must never include API keys.
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	RawResponse []byte
	RetryAfter  time.Duration
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *ProviderError) Temporary() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// NewProviderError builds a ProviderError from a non-2xx HTTP response.
func NewProviderError(provider string, resp *http.Response, body []byte) *ProviderError {
	perr := &ProviderError{
		Provider:    provider,
		Message:     strings.TrimSpace(string(body)),
		RawResponse: body,
	}
	if resp != nil {
		perr.StatusCode = resp.StatusCode
		perr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return perr
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
