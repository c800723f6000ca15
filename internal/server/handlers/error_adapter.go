package handlers

import (
	"net/http"

	apperrors "github.com/contextlens/contextlens/internal/errors"
)

type errorResponder func(http.ResponseWriter, *http.Request, error)

var respond errorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder installs the responder used for handler errors.
// nil restores apperrors.RespondWithError.
func SetHTTPErrorResponder(fn func(http.ResponseWriter, *http.Request, error)) {
	if fn == nil {
		fn = apperrors.RespondWithError
	}
	respond = fn
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	respond(w, r, err)
}
