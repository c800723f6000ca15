package server

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/contextlens/contextlens/internal/errors"
	"github.com/contextlens/contextlens/internal/observability"
)

// HandleError writes err as an error envelope. When the client has already
// gone away nothing is written.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if r != nil && errors.Is(r.Context().Err(), context.Canceled) {
		observability.Debug("Client disconnected before error response",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return
	}
	apperrors.RespondWithError(w, r, err)
}
