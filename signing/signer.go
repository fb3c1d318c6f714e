package signing

import (
	"crypto"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/moddyapp/signproxy/canonical"
)

// SignatureLength is the length of a hex-encoded HMAC-SHA256 signature.
const SignatureLength = sha256.Size * 2

// Sign returns the lowercase hex HMAC-SHA256 of the canonical payload
// {"body": body, "request_id": requestID} keyed by secret.
func Sign(requestID string, body any, secret []byte) (string, error) {
	s, err := NewSigner(secret, canonical.Options{})
	if err != nil {
		return "", err
	}

	return s.Sign(requestID, body)
}

// Signer signs request payloads with a shared secret. A Signer is safe for
// concurrent use.
type Signer struct {
	key  []byte
	opts canonical.Options
}

// NewSigner creates a Signer. The secret is copied.
func NewSigner(secret []byte, opts canonical.Options) (*Signer, error) {
	key, err := copyKey(secret)
	if err != nil {
		return nil, err
	}

	return &Signer{key: key, opts: opts}, nil
}

// Sign returns the hex signature for the given request id and body.
func (s *Signer) Sign(requestID string, body any) (string, error) {
	mac, err := s.digest(requestID, body)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(mac), nil
}

func (s *Signer) digest(requestID string, body any) ([]byte, error) {
	if requestID == "" {
		return nil, ErrEmptyRequestID
	}

	message, err := canonical.Payload{RequestID: requestID, Body: body}.BytesWith(s.opts)
	if err != nil {
		return nil, err
	}

	return computeHMAC(s.key, message), nil
}

// String keeps the key out of formatted output.
func (s *Signer) String() string { return "signing.Signer{key: [REDACTED]}" }

// GoString keeps the key out of %#v output.
func (s *Signer) GoString() string { return s.String() }

// Verifier checks request signatures the way the backend does.
type Verifier struct {
	signer *Signer
}

// NewVerifier creates a Verifier. The secret is copied.
func NewVerifier(secret []byte, opts canonical.Options) (*Verifier, error) {
	s, err := NewSigner(secret, opts)
	if err != nil {
		return nil, err
	}

	return &Verifier{signer: s}, nil
}

// Verify recomputes the signature over requestID and body and compares it
// with signature in constant time.
func (v *Verifier) Verify(requestID string, body any, signature string) error {
	if len(signature) != SignatureLength {
		return fmt.Errorf("%w: expected %d hex characters, got %d", ErrMalformedSignature, SignatureLength, len(signature))
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	expected, err := v.signer.digest(requestID, body)
	if err != nil {
		return err
	}

	if !hmac.Equal(expected, provided) {
		return ErrSignatureInvalid
	}

	return nil
}

// String keeps the key out of formatted output.
func (v *Verifier) String() string { return "signing.Verifier{key: [REDACTED]}" }

func copyKey(secret []byte) ([]byte, error) {
	if !crypto.SHA256.Available() {
		return nil, ErrSigningUnavailable
	}

	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return key, nil
}

func computeHMAC(key, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)

	return h.Sum(nil)
}
