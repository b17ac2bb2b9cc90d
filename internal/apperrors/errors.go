package apperrors

import (
	"errors"
)

var (
	ErrInvalidSecret       = errors.New("invalid secret")
	ErrServerMisconfigured = errors.New("server is not configured")

	ErrTokenMissing = errors.New("access token is missing")
	ErrTokenInvalid = errors.New("access token is invalid")
	ErrTokenExpired = errors.New("access token is expired")

	ErrModelUnavailable   = errors.New("language model is unavailable")
	ErrDatasetUnavailable = errors.New("course dataset is unavailable")

	ErrCourseAlreadyExists = errors.New("course already exists")
	ErrUnknownTool         = errors.New("unknown tool")

	ErrTooManyRequests = errors.New("too many requests")
)
