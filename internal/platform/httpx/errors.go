package httpx

import (
	"errors"
	"net/http"

	"github.com/quillbooks/quillbooks/internal/shared"
)

// RespondError maps taxonomy errors to RFC7807 responses. Unknown errors
// collapse to a generic 500 so backend details never leak to clients.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrInvalidLineInput):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Line Input", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrInvalidAmount):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Amount", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrInsufficientSourceBalance):
		Problem(w, http.StatusUnprocessableEntity, "Insufficient Source Balance", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrExceedsInvoiceBalance):
		Problem(w, http.StatusUnprocessableEntity, "Exceeds Invoice Balance", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrInvalidStatus):
		Problem(w, http.StatusConflict, "Invalid Status", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrConcurrentUpdateConflict):
		Problem(w, http.StatusConflict, "Concurrent Update", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrRoundingOverflow):
		Problem(w, http.StatusUnprocessableEntity, "Rounding Overflow", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
