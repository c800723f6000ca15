package errors

import (
	"context"
	stderrors "errors"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"

	"github.com/contextlens/contextlens/internal/ailink"
	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/core/engine"
	"github.com/contextlens/contextlens/internal/core/store"
	"github.com/contextlens/contextlens/internal/server/middleware"
)

// Wrap builds an envelope for code. The request id (or a fresh UUID) becomes
// the correlation and trace id; err's text is kept as wrapped_error.
func Wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	id := requestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	envelope := errors.NewErrorEnvelope(code, message).WithCorrelationID(id).WithTraceID(id)
	if err == nil {
		return envelope
	}
	return withContext(envelope, map[string]interface{}{"wrapped_error": err.Error()})
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInternal, err, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeConfigInvalid, err, message)
}

// WrapGenerationFailed reports a failed final model call. The gateway code,
// when known, is attached as gateway_code.
func WrapGenerationFailed(ctx context.Context, err error) *errors.ErrorEnvelope {
	envelope := Wrap(ctx, CodeGenerationFailed, err, "generation failed")
	var gwErr *ailink.GatewayError
	if stderrors.As(err, &gwErr) && gwErr.Code != "" {
		envelope = withContext(envelope, map[string]interface{}{
			"wrapped_error": err.Error(),
			"gateway_code":  gwErr.Code,
		})
	}
	return high(envelope)
}

// FromError classifies domain errors raised by the engine and the store.
// Unknown errors become INTERNAL_ERROR.
func FromError(ctx context.Context, err error) *errors.ErrorEnvelope {
	var (
		envelope    *errors.ErrorEnvelope
		rateLimited *engine.RateLimitedError
	)
	switch {
	case err == nil:
		return EnsureEnvelope(nil)
	case stderrors.As(err, &envelope) && envelope != nil:
		return envelope
	case stderrors.Is(err, engine.ErrEmptyPrompt):
		return Wrap(ctx, CodeInvalidInput, err, "prompt must not be empty")
	case stderrors.Is(err, store.ErrTaskNotFound):
		return Wrap(ctx, CodeNotFound, err, "task not found")
	case stderrors.Is(err, store.ErrTaskNotPending):
		return Wrap(ctx, CodeConflict, err, "only pending tasks can run")
	case stderrors.As(err, &rateLimited):
		return Wrap(ctx, CodeRateLimited, err, "rate limit exceeded")
	case core.IsGenerationError(err):
		return WrapGenerationFailed(ctx, err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return Wrap(ctx, CodeTimeout, err, "request timed out")
	default:
		return high(WrapInternal(ctx, err, "unexpected error"))
	}
}

// EnsureEnvelope returns err as an envelope without classifying it.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		return critical(env)
	}
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}
	env := withContext(errors.NewErrorEnvelope(CodeInternal, "unexpected error"),
		map[string]interface{}{"wrapped_error": err.Error()})
	return high(env)
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return middleware.GetRequestID(ctx)
}

// withContext, high and critical keep the original envelope when gofulmen
// rejects the update.
func withContext(env *errors.ErrorEnvelope, fields map[string]interface{}) *errors.ErrorEnvelope {
	if updated, err := env.WithContext(fields); err == nil {
		return updated
	}
	return env
}

func high(env *errors.ErrorEnvelope) *errors.ErrorEnvelope {
	if updated, err := env.WithSeverity(errors.SeverityHigh); err == nil {
		return updated
	}
	return env
}

func critical(env *errors.ErrorEnvelope) *errors.ErrorEnvelope {
	if updated, err := env.WithSeverity(errors.SeverityCritical); err == nil {
		return updated
	}
	return env
}
