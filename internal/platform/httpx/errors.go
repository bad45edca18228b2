package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

var (
	ErrNotFound   = shared.ErrNotFound
	ErrValidation = shared.ErrInvalidInput
)

// StatusFor maps err onto an HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as a problem response. Internal errors carry no
// detail.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	Problem(w, status, detail)
}
