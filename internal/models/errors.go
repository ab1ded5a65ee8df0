package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes returned to clients in the "code" field.
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_ERROR"
	CodeDepthLimitExceeded  = "DEPTH_LIMIT_EXCEEDED"
	CodeConflict            = "CONFLICT"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
	internalFallbackMessage = "Internal server error"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
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

// Is matches any AppError carrying the same code, so errors.Is(err, ErrNotFound) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// Sentinels for errors.Is checks against a code.
var (
	ErrNotFound           = &AppError{Code: CodeNotFound}
	ErrValidation         = &AppError{Code: CodeValidation}
	ErrForbidden          = &AppError{Code: CodeForbidden}
	ErrUnauthorized       = &AppError{Code: CodeUnauthorized}
	ErrConflict           = &AppError{Code: CodeConflict}
	ErrDepthLimitExceeded = &AppError{Code: CodeDepthLimitExceeded}
	ErrUnavailable        = &AppError{Code: CodeServiceUnavailable}
	ErrInternal           = &AppError{Code: CodeInternal}
)

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

// NewDepthLimitError reports a branch attempt beneath a node already at the depth ceiling.
func NewDepthLimitError(maxDepth int) *AppError {
	return &AppError{
		Code:    CodeDepthLimitExceeded,
		Message: fmt.Sprintf("Maximum branch depth of %d reached", maxDepth),
	}
}

func NewUnavailableError(err error) *AppError {
	return &AppError{
		Code:    CodeServiceUnavailable,
		Message: "Service temporarily unavailable",
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: internalFallbackMessage,
		Err:     err,
	}
}

// StatusForCode maps an error code to its HTTP status.
func StatusForCode(code string) int {
	switch code {
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	case CodeForbidden:
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeValidation, CodeDepthLimitExceeded:
		return fiber.StatusBadRequest
	case CodeConflict:
		return fiber.StatusConflict
	case CodeServiceUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// StatusFor returns the HTTP status for any error, defaulting to 500.
func StatusFor(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return StatusForCode(appErr.Code)
	}
	return fiber.StatusInternalServerError
}

// RespondWithError creates a standardized error response. Causes of internal and
// unavailable errors are never written to the client.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
	} else {
		response = ErrorResponse{
			Error: internalFallbackMessage,
			Code:  CodeInternal,
		}
	}

	return c.Status(status).JSON(response)
}
