package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind represents the category of a pipeline failure
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindDecode            Kind = "decode"
	KindEncode            Kind = "encode"
	KindIO                Kind = "io"
	KindDimensionMismatch Kind = "dimension_mismatch"
	KindValue             Kind = "value"
	KindBusy              Kind = "busy"
	KindInvalidState      Kind = "invalid_state"
)

// AppError represents a typed pipeline error
type AppError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// StatusCode maps the error kind onto an HTTP status
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindDecode, KindDimensionMismatch:
		return http.StatusUnprocessableEntity
	case KindValue:
		return http.StatusBadRequest
	case KindBusy, KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WithPath returns a copy of the error annotated with a file path
func (e *AppError) WithPath(path string) *AppError {
	cp := *e
	cp.Path = path
	return &cp
}

func newError(kind Kind, message string, cause error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// NewNotFoundError creates an error for a missing or unreadable input
func NewNotFoundError(message string, cause error) *AppError {
	return newError(KindNotFound, message, cause)
}

// NewDecodeError creates an error for unparseable raster data
func NewDecodeError(message string, cause error) *AppError {
	return newError(KindDecode, message, cause)
}

// NewEncodeError creates an error for a codec failure
func NewEncodeError(message string, cause error) *AppError {
	return newError(KindEncode, message, cause)
}

// NewIOError creates an error for artifact write or directory failures
func NewIOError(message string, cause error) *AppError {
	return newError(KindIO, message, cause)
}

// NewDimensionMismatchError creates an error for images of different sizes
func NewDimensionMismatchError(message string, cause error) *AppError {
	return newError(KindDimensionMismatch, message, cause)
}

// NewValueError creates an error for invalid arguments such as channel counts
func NewValueError(message string, cause error) *AppError {
	return newError(KindValue, message, cause)
}

// NewBusyError creates an error for a rejected concurrent invocation
func NewBusyError(message string, cause error) *AppError {
	return newError(KindBusy, message, cause)
}

// NewInvalidStateError creates an error for an operation not allowed in the current state
func NewInvalidStateError(message string, cause error) *AppError {
	return newError(KindInvalidState, message, cause)
}

// IsKind checks if any error in the chain is an AppError of the given kind
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first AppError in the chain, or "" if there is none
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode()
	}
	return http.StatusInternalServerError
}
