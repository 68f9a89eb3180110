package server

import (
	"net/http"

	apperrors "github.com/tradelens/tradelens/internal/errors"
)

// HandleError writes err as an API error envelope.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
