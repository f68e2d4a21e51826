package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_DerivesStatusFromCode(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeSchedulingConflict, http.StatusBadRequest},
		{CodeInvalidStatus, http.StatusBadRequest},
		{CodeInvalidProvider, http.StatusBadRequest},
		{CodeForbidden, http.StatusForbidden},
		{CodeForbiddenTransition, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeInvalidTransition, http.StatusConflict},
		{CodeConcurrentModification, http.StatusConflict},
		{CodeInternal, http.StatusInternalServerError},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.status, err.StatusCode())
		})
	}
}

func TestCodeOf_UnwrapsAppError(t *testing.T) {
	wrapped := fmt.Errorf("create appointment: %w", NewSchedulingConflict(nil))

	var appErr *AppError
	assert.True(t, stderrors.As(wrapped, &appErr))
	assert.Equal(t, CodeSchedulingConflict, CodeOf(wrapped))
	assert.Equal(t, CodeInternal, CodeOf(stderrors.New("boom")))
}

func TestAppError_ErrorIncludesCause(t *testing.T) {
	err := NewInternal(stderrors.New("connection refused"))
	assert.Equal(t, "internal server error: connection refused", err.Error())
	assert.Equal(t, "appointment not found", NewNotFound("appointment", nil).Error())
}
