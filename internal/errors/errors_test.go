package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		want     string
	}{
		{
			name:     "simple message",
			apiError: New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format"),
			want:     "Invalid request format",
		},
		{
			name:     "empty message",
			apiError: New(http.StatusInternalServerError, "INTERNAL_ERROR", ""),
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.apiError.Error())
		})
	}
}

func TestAPIError_Render(t *testing.T) {
	apiErr := NewWithDetails(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "slow down", "details")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, render.Render(w, r, apiErr))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["error_code"])
	assert.Equal(t, "slow down", body["message"])
}

func TestErrValidation_CopiesPredefined(t *testing.T) {
	apiErr := ErrValidation("email", "must be a valid email")

	assert.NotSame(t, ErrValidationFailed, apiErr)
	assert.Equal(t, ErrValidationFailed.ErrorCode, apiErr.ErrorCode)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, ValidationError{Field: "email", Message: "must be a valid email"}, apiErr.Details)
	assert.Nil(t, ErrValidationFailed.Details)
}

func TestNewValidationErrors(t *testing.T) {
	apiErr := NewValidationErrors([]ValidationError{
		{Field: "license_key", Message: "required"},
		{Field: "email", Message: "email"},
	})

	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	details, ok := apiErr.Details.(ValidationErrors)
	require.True(t, ok)
	assert.Len(t, details.Errors, 2)
}

func TestInvalidRequestWithError(t *testing.T) {
	apiErr := InvalidRequestWithError(errors.New("unexpected EOF"))
	assert.Equal(t, "unexpected EOF", apiErr.Details)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}
