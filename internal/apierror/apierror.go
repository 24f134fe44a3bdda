package apierror

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
)

// APIError is the typed failure returned by reconciliation operations.
// Conflicts (candidate already linked, transaction already matched) and
// not-found (including wrong-tenant, reported identically so existence does
// not leak across organizations) are logical failures and are never retried.
type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NotFound reports a missing record. Callers pass the same message for
// records that exist under a different organization.
func NotFound(message string) APIError {
	return APIError{Code: ErrNotFound, Message: message}
}

// Conflict reports a rejected state transition, e.g. matching a candidate
// that is already linked elsewhere.
func Conflict(message string) APIError {
	return APIError{Code: ErrConflict, Message: message}
}

// InvalidInput reports a validation failure on caller-supplied data.
func InvalidInput(message string, details interface{}) APIError {
	return APIError{Code: ErrInvalidInput, Message: message, Details: details}
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict:
			return http.StatusConflict
		case ErrInvalidInput:
			return http.StatusBadRequest
		case ErrBadRequest:
			return http.StatusBadRequest
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
