package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := New(ErrCodeInvalidInput, "bad skills", http.StatusBadRequest)
	assert.Equal(t, "INVALID_INPUT: bad skills", err.Error())
}

func TestAppError_WithCause(t *testing.T) {
	cause := errors.New("redis: connection refused")
	err := Wrap(cause, ErrCodeInternal, "presence lookup failed", http.StatusInternalServerError)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAppError_WithContext(t *testing.T) {
	err := NewInvalidInput("bad skills").
		WithContext("user_id", "u1").
		WithContext("count", 3)

	assert.Equal(t, "u1", err.Context["user_id"])
	assert.Equal(t, 3, err.Context["count"])
}

func TestConstructors_MapToHTTPStatus(t *testing.T) {
	tests := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{NewInvalidInput("x"), ErrCodeInvalidInput, http.StatusBadRequest},
		{NewNotFound("call"), ErrCodeNotFound, http.StatusNotFound},
		{NewUnauthorized("x"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{NewForbidden("x"), ErrCodeForbidden, http.StatusForbidden},
		{NewConflict("x"), ErrCodeConflict, http.StatusConflict},
		{NewInternal("x"), ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, tt.err.Code)
		assert.Equal(t, tt.status, tt.err.HTTPStatus)
	}
}

func TestGetAppError_FindsWrappedError(t *testing.T) {
	inner := NewNotFound("call")
	outer := fmt.Errorf("handling message: %w", inner)

	assert.Equal(t, inner, GetAppError(outer))
	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}
