package signing

import (
	"net/http"

	"github.com/moddyapp/signproxy/requestid"
)

// TransportConfig configures NewTransport.
type TransportConfig struct {
	// Signer is required; requests fail with ErrNoSigner without it.
	Signer *Signer

	// IDs defaults to requestid.Default.
	IDs requestid.Generator
}

// Transport adds X-Request-Id and X-Signature to every request it sends.
// The request passed to RoundTrip is left untouched; a signed copy goes
// out instead.
type Transport struct {
	next   http.RoundTripper
	signer *Signer
	ids    requestid.Generator
}

// NewTransport wraps next. A nil next gets its own copy of
// http.DefaultTransport so the signing client does not share a pool.
func NewTransport(next http.RoundTripper, cfg TransportConfig) *Transport {
	if next == nil {
		next = http.DefaultTransport.(*http.Transport).Clone()
	}

	ids := cfg.IDs
	if ids == nil {
		ids = requestid.Default
	}

	return &Transport{next: next, signer: cfg.Signer, ids: ids}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out, err := t.signedCopy(req)
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}

	return t.next.RoundTrip(out)
}

// signedCopy clones req and signs the clone. A replayable body is read
// from GetBody so the caller's reader stays unread.
func (t *Transport) signedCopy(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())

	if req.Body != nil && req.Body != http.NoBody && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}

	if _, err := SignRequest(out, t.signer, t.ids); err != nil {
		return nil, err
	}

	return out, nil
}
