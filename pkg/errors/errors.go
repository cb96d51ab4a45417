// Package errors provides the typed error taxonomy for the case lifecycle.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code for API responses.
type ErrorCode string

// Standard error codes
const (
	CodeUnknown              ErrorCode = "UNKNOWN"
	CodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeInsufficientAnalysis ErrorCode = "INSUFFICIENT_ANALYSIS"
	CodeIncomplete           ErrorCode = "INCOMPLETE"
	CodeConflict             ErrorCode = "CONFLICT"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeBadRequest           ErrorCode = "BAD_REQUEST"
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
)

// AppError represents a structured application error.
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail key-value pair to the error.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON returns the JSON representation of the error.
func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// New creates a new AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// InvalidTransition creates an error for an operation that is not legal
// from the case's current status.
func InvalidTransition(operation, status string) *AppError {
	return New(CodeInvalidTransition,
		fmt.Sprintf("operation %q is not valid from status %q", operation, status)).
		WithDetail("operation", operation).
		WithDetail("status", status)
}

// Validation creates a validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message)
}

// InsufficientAnalysis creates an error for an RCA whose depth falls below
// the severity policy minimum, carrying required vs. actual depth.
func InsufficientAnalysis(required, actual int) *AppError {
	return New(CodeInsufficientAnalysis,
		fmt.Sprintf("analysis depth %d is below the required minimum of %d", actual, required)).
		WithDetail("required", required).
		WithDetail("actual", actual)
}

// Incomplete creates an error for a missing required element, such as an
// empty RCA conclusion.
func Incomplete(message string) *AppError {
	return New(CodeIncomplete, message)
}

// Conflict creates a stale-version conflict error.
func Conflict(message string) *AppError {
	return New(CodeConflict, message)
}

// NotFound creates a not found error.
func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// BadRequest creates a bad request error.
func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message)
}

// Internal creates an internal server error.
func Internal(message string) *AppError {
	return New(CodeInternalError, message)
}

// codeToHTTPStatus maps error codes to HTTP status codes.
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition:
		return http.StatusConflict
	case CodeInsufficientAnalysis, CodeIncomplete:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Is checks if the target error is an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
