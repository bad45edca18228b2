package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("product 9: %w", ErrNotFound):                    http.StatusNotFound,
		fmt.Errorf("%w: warehouse must be positive", ErrValidation): http.StatusBadRequest,
		fmt.Errorf("trial balance: %w", context.DeadlineExceeded):   http.StatusGatewayTimeout,
		errors.New("connection reset"):                              http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, StatusFor(err), err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "Internal Server Error", body.Title)
	require.Empty(t, body.Detail)
}

func TestRespondErrorNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("sequence payroll: %w", ErrNotFound))

	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, http.StatusNotFound, body.Status)
	require.Equal(t, "Not Found", body.Title)
	require.Contains(t, body.Detail, "sequence payroll")
}
