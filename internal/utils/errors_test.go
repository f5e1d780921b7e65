package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIsErrorCodeThroughWrapping(t *testing.T) {
	base := NewNotFoundError("post", uuid.New())
	wrapped := fmt.Errorf("loading post: %w", base)

	assert.True(t, IsErrorCode(wrapped, ErrNotFound))
	assert.False(t, IsErrorCode(wrapped, ErrValidation))
	assert.False(t, IsErrorCode(errors.New("plain"), ErrNotFound))
	assert.False(t, IsErrorCode(nil, ErrNotFound))
}

func TestAppErrorMessageIncludesOrigin(t *testing.T) {
	origin := errors.New("connection reset")
	err := NewAppError(ErrDatabase, "failed to save post", origin)

	assert.Equal(t, "failed to save post: connection reset", err.Error())
	assert.ErrorIs(t, err, origin)
	assert.Equal(t, "bad title", NewValidationError("bad title").Error())
}

func TestInvalidTransitionMessage(t *testing.T) {
	err := NewInvalidTransitionError("approve", stringer("DRAFT"))
	assert.Equal(t, ErrInvalidTransition, err.Code)
	assert.Equal(t, "cannot approve a post in status DRAFT", err.Message)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(NewUnauthorizedError("missing token")))
	assert.True(t, IsAuthError(NewForbiddenError("reviewer role required")))
	assert.True(t, IsAuthError(NewAppError(ErrInvalidCredentials, "bad password", nil)))
	assert.False(t, IsAuthError(NewValidationError("empty title")))
}

func TestAppErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrValidation, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrInvalidToken, http.StatusUnauthorized},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrInvalidTransition, http.StatusConflict},
		{ErrDuplicate, http.StatusConflict},
		{ErrActorTimeout, http.StatusGatewayTimeout},
		{ErrDatabase, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, AppErrorToHTTPStatus(tt.code))
		})
	}
}

type stringer string

func (s stringer) String() string { return string(s) }
