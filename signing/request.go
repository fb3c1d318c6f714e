package signing

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/moddyapp/signproxy/canonical"
	"github.com/moddyapp/signproxy/requestid"
)

// Transport headers carried by every signed request.
const (
	HeaderRequestID   = "X-Request-Id"
	HeaderSignature   = "X-Signature"
	HeaderContentType = "Content-Type"

	ContentTypeJSON = "application/json"
)

// SignRequest signs r in place: it generates a request id, signs the JSON
// body (an empty body is signed as {}), and sets X-Request-Id, X-Signature
// and Content-Type. The body is restored so it can be sent afterwards.
// It returns the generated request id.
func SignRequest(r *http.Request, signer *Signer, ids requestid.Generator) (string, error) {
	if signer == nil {
		return "", ErrNoSigner
	}

	if ids == nil {
		ids = requestid.Default
	}

	body, err := requestBody(r)
	if err != nil {
		return "", err
	}

	id := ids.Generate()

	sig, err := signer.Sign(id, body)
	if err != nil {
		return "", err
	}

	SetHeaders(r.Header, id, sig)

	return id, nil
}

// SetHeaders writes the signed request headers.
func SetHeaders(h http.Header, requestID, signature string) {
	h.Set(HeaderRequestID, requestID)
	h.Set(HeaderSignature, signature)
	h.Set(HeaderContentType, ContentTypeJSON)
}

// VerifyConfig configures request verification.
type VerifyConfig struct {
	// Verifier checks signatures. Required.
	Verifier *Verifier

	// RequireUUID rejects request ids that are not lowercase UUIDv4
	// strings.
	RequireUUID bool
}

// VerifyRequest checks the X-Request-Id and X-Signature headers of r
// against its JSON body. The body is restored for downstream handlers.
func VerifyRequest(r *http.Request, cfg VerifyConfig) error {
	if cfg.Verifier == nil {
		return ErrNoVerifier
	}

	id := r.Header.Get(HeaderRequestID)
	if id == "" {
		return ErrRequestIDNotFound
	}

	if cfg.RequireUUID && !requestid.Valid(id) {
		return ErrInvalidRequestID
	}

	sig := r.Header.Get(HeaderSignature)
	if sig == "" {
		return ErrSignatureNotFound
	}

	body, err := requestBody(r)
	if err != nil {
		return err
	}

	return cfg.Verifier.Verify(id, body, sig)
}

// requestBody decodes the JSON body of r, restoring it afterwards.
func requestBody(r *http.Request) (any, error) {
	raw, err := readAndRestoreBody(r)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	body, err := canonical.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", canonical.ErrCanonicalization, err)
	}

	return body, nil
}

// readAndRestoreBody reads the entire request body and replaces it with a
// new reader so the body can be consumed again.
func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	return body, nil
}
