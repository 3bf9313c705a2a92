package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ariya-Dice/tansoo/pkg/errors"
)

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseResponseError_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		code     int
	}{
		{"not found", http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"product 7"}}`, apperrors.ErrNotFound, http.StatusNotFound},
		{"bad request", http.StatusBadRequest, `{"error":{"code":"INVALID_INPUT","message":"bad"}}`, apperrors.ErrInvalidInput, http.StatusBadRequest},
		{"unprocessable", http.StatusUnprocessableEntity, `{"message":"nope"}`, apperrors.ErrInvalidInput, http.StatusBadRequest},
		{"conflict", http.StatusConflict, `{"error":{"message":"dup"}}`, apperrors.ErrConflict, http.StatusConflict},
		{"unavailable", http.StatusServiceUnavailable, `down`, apperrors.ErrServiceUnavail, http.StatusServiceUnavailable},
		{"gateway timeout", http.StatusGatewayTimeout, ``, apperrors.ErrServiceUnavail, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseResponseError(response(tt.status, tt.body), "catalog")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.code, apperrors.HTTPStatus(err))
		})
	}
}

func TestParseResponseError_FlatErrorBody(t *testing.T) {
	err := ParseResponseError(response(http.StatusBadRequest,
		`{"error":"Invalid request","message":"Customer info is required"}`), "order service")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "order service: Invalid request: Customer info is required", appErr.Message)
}

func TestParseResponseError_InternalServerError(t *testing.T) {
	err := ParseResponseError(response(http.StatusInternalServerError,
		`{"error":{"code":"INTERNAL_ERROR","message":"boom"}}`), "order service")

	require.Error(t, err)
	var appErr *apperrors.AppError
	assert.False(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
	assert.Contains(t, err.Error(), "500/INTERNAL_ERROR")
}

func TestParseResponseError_OtherClientError(t *testing.T) {
	err := ParseResponseError(response(http.StatusTooManyRequests, `slow down`), "catalog")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusTooManyRequests, appErr.Status)
	assert.Equal(t, "DOWNSTREAM_ERROR", appErr.Code)
	assert.Equal(t, "catalog: slow down", appErr.Message)
}

func TestParseResponseError_EmptyBodyUsesStatusText(t *testing.T) {
	err := ParseResponseError(response(http.StatusConflict, ``), "catalog")
	assert.Contains(t, err.Error(), "Conflict")
}
