package ailink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/contextlens/contextlens/internal/ailink/driver"
)

// Gateway error codes.
const (
	CodeTimeout     = "AILINK_PROVIDER_TIMEOUT"
	CodeAuth        = "AILINK_PROVIDER_AUTH"
	CodeRateLimit   = "AILINK_PROVIDER_RATE_LIMIT"
	CodeUnavailable = "AILINK_PROVIDER_UNAVAILABLE"
	CodeBadRequest  = "AILINK_PROVIDER_BAD_REQUEST"
	CodeEmpty       = "AILINK_PROVIDER_EMPTY"
	CodeError       = "AILINK_PROVIDER_ERROR"
)

// GatewayError is a classified Model Gateway failure.
type GatewayError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Provider string `json:"provider,omitempty"`
	Err      error  `json:"-"`
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Provider != "" {
		msg = fmt.Sprintf("%s: %s", e.Provider, msg)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *GatewayError) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case CodeTimeout, CodeRateLimit, CodeUnavailable, CodeError:
		return true
	}
	return false
}

// MapProviderError classifies a driver error.
func MapProviderError(provider string, err error) *GatewayError {
	if err == nil {
		return nil
	}
	var existing *GatewayError
	if errors.As(err, &existing) {
		return existing
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &GatewayError{Code: CodeTimeout, Message: "provider request timed out", Provider: provider, Err: err}
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		details := truncate(strings.TrimSpace(perr.Message), 512)
		gerr := &GatewayError{Provider: provider, Details: details, Err: err}
		switch {
		case status == 401 || status == 403:
			gerr.Code, gerr.Message = CodeAuth, "provider authentication failed"
		case status == 429:
			gerr.Code, gerr.Message = CodeRateLimit, "provider rate limited"
		case status >= 500 && status <= 599:
			gerr.Code, gerr.Message = CodeUnavailable, "provider unavailable"
		case status >= 400 && status <= 499:
			gerr.Code, gerr.Message = CodeBadRequest, "provider rejected request"
		default:
			gerr.Code, gerr.Message = CodeError, "provider request failed"
		}
		return gerr
	}

	return &GatewayError{Code: CodeError, Message: "provider request failed", Details: err.Error(), Provider: provider, Err: err}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
