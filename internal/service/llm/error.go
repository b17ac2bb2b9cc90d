package llm

import (
	"fmt"

	"github.com/nkiryanov/courseadvisor/internal/apperrors"
)

const (
	CodeTransport = "transport"
	CodeStatus    = "status"
	CodeDecode    = "decode"
	CodeEmpty     = "empty"
)

// Error of the model backend
// Every code means the model is unavailable for the request
type Error struct {
	Code string

	// HTTP status of the backend, 0 when no response received
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, status_code: %d, error: %v", e.Code, e.StatusCode, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == apperrors.ErrModelUnavailable
}

func NewError(code string, statusCode int, err error) *Error {
	return &Error{
		Code:       code,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Transport errors and 5xx responses may go away on retry
func (e *Error) retryable() bool {
	return e.Code == CodeTransport || (e.Code == CodeStatus && e.StatusCode >= 500)
}
