package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/moddyapp/signproxy/internal/httpx"
)

// RecoveryConfig configures the Recovery middleware.
type RecoveryConfig struct {
	// Logger receives the panic value and stack. Nil disables logging.
	Logger *zerolog.Logger
}

// Recovery returns a middleware that turns a panic in a downstream
// handler into a 500 {"error":"Internal server error"} response.
func Recovery(cfg RecoveryConfig) Func {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					if cfg.Logger != nil {
						cfg.Logger.Error().
							Interface("panic", err).
							Str("method", r.Method).
							Str("path", r.URL.Path).
							Bytes("stack", debug.Stack()).
							Msg("recovered from panic")
					}

					httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
