package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/moddyapp/signproxy/debug"
	"github.com/moddyapp/signproxy/internal/config"
	"github.com/moddyapp/signproxy/internal/httpx"
	"github.com/moddyapp/signproxy/internal/metrics"
	"github.com/moddyapp/signproxy/middleware"
	"github.com/moddyapp/signproxy/proxy"
)

// Dependencies holds everything the router mounts. Debug, Maintenance
// and RateLimiter are optional.
type Dependencies struct {
	Config      *config.Config
	Proxy       http.Handler
	Debug       *debug.Handler
	Maintenance http.Handler
	RateLimiter *middleware.RateLimiter
	Registry    *prometheus.Registry
	HTTPMetrics *metrics.HTTPMetrics
	Logger      *zerolog.Logger
}

// proxyMethods are routed to the proxy handler, which answers 405 itself
// for anything but POST and OPTIONS.
var proxyMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// NewRouter builds the full handler tree.
func NewRouter(deps *Dependencies) (http.Handler, error) {
	router := httprouter.New()
	router.HandleMethodNotAllowed = false

	sizeLimit, err := middleware.SizeLimit(middleware.SizeLimitConfig{MaxBytes: deps.Config.Limits.MaxBodyBytes})
	if err != nil {
		return nil, err
	}

	proxyChain := []middleware.Func{sizeLimit}
	if deps.RateLimiter != nil {
		proxyChain = append([]middleware.Func{deps.RateLimiter.Middleware()}, proxyChain...)
	}

	proxyHandler := deps.HTTPMetrics.Instrument(proxy.Route, middleware.Chain(deps.Proxy, proxyChain...))
	for _, method := range proxyMethods {
		router.Handler(method, proxy.Route, proxyHandler)
	}

	if deps.Debug != nil {
		deps.Debug.MountProxy(proxyHandler)
	}

	router.GET("/healthz", health)
	router.Handler(http.MethodGet, "/metrics", metrics.Handler(deps.Registry))

	if deps.Debug != nil {
		cors, err := middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: deps.Config.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type"},
		})
		if err != nil {
			return nil, err
		}

		debugRouter := httprouter.New()
		deps.Debug.Register(debugRouter)

		debugHandler := cors(debugRouter)
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
			router.Handler(method, "/debug/*path", debugHandler)
		}
	}

	if deps.Maintenance != nil {
		router.NotFound = deps.Maintenance
	} else {
		router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			httpx.WriteError(w, http.StatusNotFound, "Not found")
		})
	}

	secure, err := middleware.SecurityHeaders(middleware.SecurityHeadersConfig{HSTSMaxAge: deps.Config.Server.HSTSMaxAge})
	if err != nil {
		return nil, err
	}

	return middleware.Chain(router,
		middleware.Recovery(middleware.RecoveryConfig{Logger: deps.Logger}),
		middleware.AccessLog(deps.Logger),
		secure,
	), nil
}

func health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
