package signing

import (
	"net/http"
)

// MiddlewareConfig configures Middleware.
type MiddlewareConfig struct {
	Verify VerifyConfig

	// OnError writes the rejection. Defaults to an empty 401, which is
	// what the backend answers for a bad signature.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware rejects requests whose X-Signature does not match the HMAC
// of {"body": <body>, "request_id": <X-Request-Id>}. It is the backend's
// side of the protocol and is used to test clients of this package.
func Middleware(cfg MiddlewareConfig) (func(http.Handler) http.Handler, error) {
	if cfg.Verify.Verifier == nil {
		return nil, ErrNoVerifier
	}

	reject := cfg.OnError
	if reject == nil {
		reject = unauthorized
	}

	verify := cfg.Verify

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := VerifyRequest(r, verify); err != nil {
				reject(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func unauthorized(w http.ResponseWriter, _ *http.Request, _ error) {
	w.WriteHeader(http.StatusUnauthorized)
}
