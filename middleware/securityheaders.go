package middleware

import (
	"fmt"
	"net/http"
)

// SecurityHeadersConfig configures SecurityHeaders.
type SecurityHeadersConfig struct {
	// FrameOption is "DENY" (default) or "SAMEORIGIN".
	FrameOption string

	// ReferrerPolicy defaults to "strict-origin-when-cross-origin".
	ReferrerPolicy string

	// HSTSMaxAge enables Strict-Transport-Security when positive.
	HSTSMaxAge int
}

// SecurityHeaders sets nosniff, frame and referrer headers on every
// response before calling the next handler.
func SecurityHeaders(cfg SecurityHeadersConfig) (Func, error) {
	switch cfg.FrameOption {
	case "":
		cfg.FrameOption = "DENY"
	case "DENY", "SAMEORIGIN":
	default:
		return nil, ErrInvalidFrameOption
	}

	if cfg.ReferrerPolicy == "" {
		cfg.ReferrerPolicy = "strict-origin-when-cross-origin"
	}

	var hsts string
	if cfg.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d; includeSubDomains", cfg.HSTSMaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", cfg.FrameOption)
			h.Set("Referrer-Policy", cfg.ReferrerPolicy)
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}
