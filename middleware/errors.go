package middleware

import "errors"

var (
	// ErrInvalidMaxSize is returned when SizeLimitConfig.MaxBytes is not
	// greater than zero.
	ErrInvalidMaxSize = errors.New("middleware: max size must be greater than zero")

	// ErrWildcardCredentials is returned when AllowedOrigins contains "*"
	// and AllowCredentials is true.
	ErrWildcardCredentials = errors.New("middleware: wildcard origin cannot be used with credentials")

	// ErrInvalidRate is returned for a non-positive rate or burst.
	ErrInvalidRate = errors.New("middleware: rate and burst must be greater than zero")

	// ErrInvalidFrameOption is returned when FrameOption is not DENY,
	// SAMEORIGIN or empty.
	ErrInvalidFrameOption = errors.New("middleware: frame option must be DENY or SAMEORIGIN")
)
