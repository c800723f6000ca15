package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlens/contextlens/internal/ailink"
	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/core/engine"
	"github.com/contextlens/contextlens/internal/core/store"
)

func TestFromErrorClassifiesDomainErrors(t *testing.T) {
	ctx := context.Background()
	generation := &core.StageError{
		Stage:   core.StageGeneration,
		ModelID: core.ModelQuality,
		Err:     &ailink.GatewayError{Code: ailink.CodeRateLimit, Message: "slow down"},
	}

	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"empty prompt", engine.ErrEmptyPrompt, CodeInvalidInput, http.StatusBadRequest},
		{"missing task", fmt.Errorf("%w: task_1", store.ErrTaskNotFound), CodeNotFound, http.StatusNotFound},
		{"rate limited", &engine.RateLimitedError{Endpoint: "search:brave", Wait: time.Minute}, CodeRateLimited, http.StatusTooManyRequests},
		{"generation", generation, CodeGenerationFailed, http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, CodeTimeout, http.StatusGatewayTimeout},
		{"unknown", fmt.Errorf("boom"), CodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := FromError(ctx, tc.err)
			require.NotNil(t, env)
			assert.Equal(t, tc.code, env.Code)
			assert.Equal(t, tc.status, HTTPStatusFromEnvelope(env))
		})
	}
}

func TestWrapGenerationFailedCarriesGatewayCode(t *testing.T) {
	err := &core.StageError{Stage: core.StageGeneration, Err: &ailink.GatewayError{Code: ailink.CodeAuth, Message: "bad key"}}
	env := WrapGenerationFailed(context.Background(), err)
	assert.Equal(t, ailink.CodeAuth, env.Context["gateway_code"])
	assert.Contains(t, env.Context["wrapped_error"], "bad key")
}

func TestRespondWithErrorWritesEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, engine.ErrEmptyPrompt)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeInvalidInput, body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestEnsureEnvelopeNil(t *testing.T) {
	env := EnsureEnvelope(nil)
	assert.Equal(t, CodeInternal, env.Code)
}

func TestRespondWithEnvelopeMergesDetails(t *testing.T) {
	env := Wrap(context.Background(), CodeServiceUnavailable, fmt.Errorf("dial tcp: refused"), "search down").
		WithDetails(map[string]interface{}{"backend": "brave"})
	rec := httptest.NewRecorder()

	RespondWithEnvelope(rec, nil, env)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "brave", body.Error.Details["backend"])
	assert.Equal(t, "dial tcp: refused", body.Error.Details["wrapped_error"])
	assert.Equal(t, env.CorrelationID, body.Error.RequestID)
}

func TestEnsureEnvelopeUnwraps(t *testing.T) {
	inner := NewNotFoundError("gone")
	assert.Same(t, inner, EnsureEnvelope(fmt.Errorf("lookup: %w", inner)))
}

func TestHTTPStatusFromCodeDefaults(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusFromCode(CodeServiceUnavailable))
	assert.Equal(t, http.StatusConflict, HTTPStatusFromCode(CodeConflict))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("SOMETHING_ELSE"))
}
