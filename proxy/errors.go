package proxy

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every client input error.
	ErrValidation = errors.New("proxy: invalid request")

	// ErrEndpointRequired is returned when the request names no endpoint.
	ErrEndpointRequired = fmt.Errorf("%w: endpoint is required", ErrValidation)

	// ErrInvalidEndpoint is returned when the endpoint is not an absolute
	// path on the backend host.
	ErrInvalidEndpoint = fmt.Errorf("%w: invalid endpoint", ErrValidation)

	// ErrTransport is returned when the backend cannot be reached.
	ErrTransport = errors.New("proxy: backend transport failed")

	// ErrBadGateway is returned when the backend response is not JSON.
	ErrBadGateway = errors.New("proxy: backend returned invalid JSON")

	// ErrInvalidBackendURL is returned by NewForwarder for a backend URL
	// that is not absolute http(s).
	ErrInvalidBackendURL = errors.New("proxy: backend URL must be absolute http(s)")

	// ErrNoSigner is returned by NewForwarder without a signer.
	ErrNoSigner = errors.New("proxy: signer is required")
)
