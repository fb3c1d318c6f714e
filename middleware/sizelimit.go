package middleware

import "net/http"

// SizeLimitConfig configures the SizeLimit middleware.
type SizeLimitConfig struct {
	// MaxBytes is the largest accepted request body. Must be positive.
	MaxBytes int64
}

// SizeLimit wraps r.Body with http.MaxBytesReader so reading past
// MaxBytes fails with *http.MaxBytesError.
func SizeLimit(cfg SizeLimitConfig) (Func, error) {
	if cfg.MaxBytes <= 0 {
		return nil, ErrInvalidMaxSize
	}

	maxBytes := cfg.MaxBytes

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Connection", "close")
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}, nil
}
