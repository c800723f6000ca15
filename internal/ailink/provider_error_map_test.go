package ailink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlens/contextlens/internal/ailink/driver"
)

func TestMapProviderErrorStatusCodes(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		wantCode   string
		retryable  bool
	}{
		{"auth", 401, CodeAuth, false},
		{"forbidden", 403, CodeAuth, false},
		{"rate", 429, CodeRateLimit, true},
		{"bad", 400, CodeBadRequest, false},
		{"unavail", 503, CodeUnavailable, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := &driver.ProviderError{Provider: "openai", StatusCode: tc.statusCode, Message: "boom"}
			mapped := MapProviderError("main", fmt.Errorf("wrapped: %w", err))
			require.NotNil(t, mapped)
			assert.Equal(t, tc.wantCode, mapped.Code)
			assert.Equal(t, tc.retryable, mapped.Retryable())
			assert.Equal(t, "main", mapped.Provider)
			assert.True(t, errors.As(mapped, new(*driver.ProviderError)))
		})
	}
}

func TestMapProviderErrorTimeoutAndGeneric(t *testing.T) {
	mapped := MapProviderError("p", context.DeadlineExceeded)
	assert.Equal(t, CodeTimeout, mapped.Code)
	assert.True(t, mapped.Retryable())

	mapped = MapProviderError("p", errors.New("connection reset"))
	assert.Equal(t, CodeError, mapped.Code)
	assert.Contains(t, mapped.Error(), "connection reset")

	assert.Nil(t, MapProviderError("p", nil))

	long := &driver.ProviderError{StatusCode: 500, Message: strings.Repeat("x", 2000)}
	assert.Less(t, len(MapProviderError("p", long).Details), 600)
}
