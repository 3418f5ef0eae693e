package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/settleflow/settleflow/internal/shared"
)

// RespondError maps the settlement error taxonomy to HTTP responses.
// Validation failures are client errors, state conflicts map to 409 and
// business rule rejections to 422 with the rule's reason in the detail.
// Errors outside the taxonomy are logged and answered with an opaque 500.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrStateConflict):
		Problem(w, http.StatusConflict, "State Conflict", err.Error())
	case errors.Is(err, shared.ErrBusinessRule):
		Problem(w, http.StatusUnprocessableEntity, "Business Rule Violation", err.Error())
	default:
		if logger != nil {
			logger.Error("unhandled error", slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
