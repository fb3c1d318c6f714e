package canonical

import "errors"

var (
	// ErrCanonicalization is returned when a value cannot be represented
	// in canonical form (NaN, infinities, invalid UTF-8, channels, ...).
	ErrCanonicalization = errors.New("canonical: value is not representable as JSON")

	// ErrInvalidJSON is returned by Decode when the input is not a single
	// well-formed JSON value.
	ErrInvalidJSON = errors.New("canonical: invalid JSON input")
)
