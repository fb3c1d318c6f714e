// Package middleware provides the net/http middleware stacked in front
// of the proxy and debug routes: CORS, panic recovery, body size limit,
// per-client rate limiting and access logging.
//
// Every constructor returns a Func. Chain applies them outermost first:
//
//	h := middleware.Chain(router,
//		middleware.Recovery(middleware.RecoveryConfig{Logger: &log}),
//		middleware.AccessLog(&log),
//		limiter.Middleware(),
//	)
package middleware

import "net/http"

// Func is a standard net/http middleware.
type Func func(http.Handler) http.Handler

// Chain wraps h so that the first Func runs first.
func Chain(h http.Handler, funcs ...Func) http.Handler {
	for i := len(funcs) - 1; i >= 0; i-- {
		h = funcs[i](h)
	}

	return h
}
