package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is the stable, machine readable identifier returned to clients
type ErrorCode string

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Status  int       `json:"-"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode is picked up by the error handling middleware.
func (e *AppError) StatusCode() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// Error codes
const (
	CodeValidation             ErrorCode = "VALIDATION_ERROR"
	CodeUnauthorized           ErrorCode = "UNAUTHORIZED"
	CodeForbidden              ErrorCode = "FORBIDDEN"
	CodeNotFound               ErrorCode = "NOT_FOUND"
	CodeSchedulingConflict     ErrorCode = "SCHEDULING_CONFLICT"
	CodeInvalidStatus          ErrorCode = "INVALID_STATUS"
	CodeForbiddenTransition    ErrorCode = "FORBIDDEN_TRANSITION"
	CodeInvalidTransition      ErrorCode = "INVALID_TRANSITION"
	CodeNotTelehealth          ErrorCode = "NOT_TELEHEALTH"
	CodeNotConfirmed           ErrorCode = "NOT_CONFIRMED"
	CodeInvalidLink            ErrorCode = "INVALID_LINK"
	CodeInvalidProvider        ErrorCode = "INVALID_PROVIDER"
	CodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"
	CodeInternal               ErrorCode = "INTERNAL_ERROR"
)

var statusByCode = map[ErrorCode]int{
	CodeValidation:             http.StatusBadRequest,
	CodeUnauthorized:           http.StatusUnauthorized,
	CodeForbidden:              http.StatusForbidden,
	CodeNotFound:               http.StatusNotFound,
	CodeSchedulingConflict:     http.StatusBadRequest,
	CodeInvalidStatus:          http.StatusBadRequest,
	CodeForbiddenTransition:    http.StatusForbidden,
	CodeInvalidTransition:      http.StatusConflict,
	CodeNotTelehealth:          http.StatusBadRequest,
	CodeNotConfirmed:           http.StatusBadRequest,
	CodeInvalidLink:            http.StatusBadRequest,
	CodeInvalidProvider:        http.StatusBadRequest,
	CodeConcurrentModification: http.StatusConflict,
	CodeInternal:               http.StatusInternalServerError,
}

// New builds an AppError whose HTTP status is derived from the code.
func New(code ErrorCode, message string, err error) *AppError {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &AppError{
		Code:    code,
		Status:  status,
		Message: message,
		Err:     err,
	}
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), err)
}

func NewBadRequest(message string, err error) *AppError {
	return New(CodeValidation, message, err)
}

func NewForbidden(message string) *AppError {
	return New(CodeForbidden, message, nil)
}

func NewInternal(err error) *AppError {
	return New(CodeInternal, "internal server error", err)
}

func NewSchedulingConflict(err error) *AppError {
	return New(CodeSchedulingConflict, "the requested time overlaps an existing appointment", err)
}

func NewConcurrentModification(err error) *AppError {
	return New(CodeConcurrentModification, "appointment was modified by another request, reload and retry", err)
}

func Unauthorized(err error) *AppError {
	return New(CodeUnauthorized, "unauthorized", err)
}

// CodeOf returns the code of the first AppError in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}
