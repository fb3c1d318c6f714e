package signing

import "errors"

// Signing errors.
var (
	// ErrEmptySecret is returned when a signer or verifier is created
	// without key material.
	ErrEmptySecret = errors.New("signing: secret must not be empty")

	// ErrEmptyRequestID is returned when signing with an empty request id.
	ErrEmptyRequestID = errors.New("signing: request id must not be empty")

	// ErrSigningUnavailable is returned when HMAC-SHA256 is not available
	// in the running binary. It is a configuration-level failure.
	ErrSigningUnavailable = errors.New("signing: hmac-sha256 is unavailable")

	// ErrNoSigner is returned when a transport has no Signer configured.
	ErrNoSigner = errors.New("signing: signer must not be nil")
)

// Verification errors.
var (
	// ErrNoVerifier is returned when MiddlewareConfig has no Verifier.
	ErrNoVerifier = errors.New("signing: verifier must not be nil")

	// ErrSignatureNotFound is returned when the X-Signature header is absent.
	ErrSignatureNotFound = errors.New("signing: signature header not found")

	// ErrRequestIDNotFound is returned when the X-Request-Id header is absent.
	ErrRequestIDNotFound = errors.New("signing: request id header not found")

	// ErrInvalidRequestID is returned when a request id is required to be
	// a UUIDv4 and is not.
	ErrInvalidRequestID = errors.New("signing: request id is not a v4 uuid")

	// ErrMalformedSignature is returned when a signature is not 64 hex
	// characters.
	ErrMalformedSignature = errors.New("signing: malformed signature")

	// ErrSignatureInvalid is returned when signature verification fails.
	ErrSignatureInvalid = errors.New("signing: signature verification failed")
)

// Vector errors.
var (
	// ErrVectorMismatch is returned when a test vector's recorded output
	// differs from the computed one.
	ErrVectorMismatch = errors.New("signing: vector mismatch")
)
