package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeInvalidToken       ErrorType = "invalid_token"
	ErrorTypeForbidden          ErrorType = "forbidden"
	ErrorTypeIntegrityViolation ErrorType = "integrity_violation"
	ErrorTypeConcurrentAppend   ErrorType = "concurrent_append_conflict"
	ErrorTypeRateLimit          ErrorType = "rate_limit"
	ErrorTypeInternal           ErrorType = "internal"
)

// Sentinel errors. Every MedChainError matches the sentinel of its type via errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrInvalidToken       = errors.New("invalid or expired access token")
	ErrTokenNotFound      = errors.New("access token not found")
	ErrForbidden          = errors.New("forbidden")
	ErrIntegrityViolation = errors.New("ledger integrity violation")
	ErrConcurrentAppend   = errors.New("concurrent append conflict")
	ErrRateLimited        = errors.New("rate limit exceeded")
)

// MedChainError represents a structured error in the MedChainX system
type MedChainError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *MedChainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *MedChainError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's type.
func (e *MedChainError) Is(target error) bool {
	return sentinelFor(e.Type) == target
}

func sentinelFor(t ErrorType) error {
	switch t {
	case ErrorTypeValidation:
		return ErrValidation
	case ErrorTypeNotFound:
		return ErrNotFound
	case ErrorTypeInvalidToken:
		return ErrInvalidToken
	case ErrorTypeForbidden:
		return ErrForbidden
	case ErrorTypeIntegrityViolation:
		return ErrIntegrityViolation
	case ErrorTypeConcurrentAppend:
		return ErrConcurrentAppend
	case ErrorTypeRateLimit:
		return ErrRateLimited
	}
	return nil
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *MedChainError {
	return &MedChainError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *MedChainError {
	return &MedChainError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewInvalidTokenError creates a new invalid token error
func NewInvalidTokenError(message string, cause error) *MedChainError {
	return &MedChainError{
		Type:    ErrorTypeInvalidToken,
		Code:    ErrCodeInvalidToken,
		Message: message,
		Cause:   cause,
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(code, message string) *MedChainError {
	return &MedChainError{
		Type:    ErrorTypeForbidden,
		Code:    code,
		Message: message,
	}
}

// NewIntegrityError creates a new integrity violation error for the block at index
func NewIntegrityError(index uint64, reason string) *MedChainError {
	return &MedChainError{
		Type:    ErrorTypeIntegrityViolation,
		Code:    ErrCodeIntegrityViolation,
		Message: fmt.Sprintf("block %d: %s", index, reason),
		Details: map[string]interface{}{
			"index":  index,
			"reason": reason,
		},
	}
}

// NewConcurrentAppendError creates a new concurrent append conflict error
func NewConcurrentAppendError(index uint64, cause error) *MedChainError {
	return &MedChainError{
		Type:    ErrorTypeConcurrentAppend,
		Code:    ErrCodeConcurrentAppend,
		Message: fmt.Sprintf("block index %d already committed", index),
		Details: map[string]interface{}{"index": index},
		Cause:   cause,
	}
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(message string) *MedChainError {
	return &MedChainError{
		Type:    ErrorTypeRateLimit,
		Code:    ErrCodeRateLimitExceeded,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *MedChainError {
	return &MedChainError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// HTTPStatus maps an error to the status code the API layer responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConcurrentAppend):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the code of a MedChainError, or ErrCodeInternalError.
func ErrorCode(err error) string {
	var mcErr *MedChainError
	if errors.As(err, &mcErr) {
		return mcErr.Code
	}
	switch {
	case errors.Is(err, ErrTokenNotFound):
		return ErrCodeTokenNotFound
	case errors.Is(err, ErrInvalidToken):
		return ErrCodeInvalidToken
	}
	return ErrCodeInternalError
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeRecordNotFound     = "RECORD_NOT_FOUND"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeTokenNotFound      = "TOKEN_NOT_FOUND"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeIntegrityViolation = "INTEGRITY_VIOLATION"
	ErrCodeConcurrentAppend   = "CONCURRENT_APPEND_CONFLICT"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)
