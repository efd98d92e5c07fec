package types

import (
	"errors"
	"time"
)

// ErrorBody is the error member of an API error response
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse is the JSON body returned for every failed API request
type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorResponse builds the API error body for err.
// Internal causes are never exposed; only the MedChainError message and details are.
func NewErrorResponse(err error, now time.Time) ErrorResponse {
	body := ErrorBody{
		Code:    ErrorCode(err),
		Message: "internal server error",
	}

	var mcErr *MedChainError
	switch {
	case errors.As(err, &mcErr):
		body.Message = mcErr.Message
		if mcErr.Type != ErrorTypeInternal {
			body.Details = mcErr.Details
		}
	case errors.Is(err, ErrTokenNotFound):
		body.Message = ErrTokenNotFound.Error()
	case errors.Is(err, ErrInvalidToken):
		body.Message = ErrInvalidToken.Error()
	}

	return ErrorResponse{Error: body, Timestamp: now.UTC()}
}
