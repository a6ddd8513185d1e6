package httpx

import (
	"errors"
	"net/http"

	"github.com/solera-erp/solera-erp/internal/shared"
)

// ProblemFromError maps the billing error taxonomy onto HTTP statuses.
// Sequencing failures are surfaced as 503 so callers know the whole
// request is safe to retry.
func ProblemFromError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrOverpayment):
		Problem(w, http.StatusConflict, "Overpayment Rejected", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrStateConflict):
		Problem(w, http.StatusConflict, "State Conflict", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrSequencing):
		Problem(w, http.StatusServiceUnavailable, "Sequencing Unavailable", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}
