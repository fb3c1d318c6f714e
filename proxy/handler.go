package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/moddyapp/signproxy/internal/httpx"
)

// Route is where browsers reach the proxy.
const Route = "/api/backend-proxy"

// Client-facing error messages.
const (
	msgMethodNotAllowed = "Method not allowed"
	msgEndpointRequired = "Endpoint is required"
	msgInvalidEndpoint  = "Invalid endpoint"
	msgTooLarge         = "Request entity too large"
	msgInternal         = "Internal server error"
)

// Request is the browser's call envelope.
type Request struct {
	Endpoint string          `json:"endpoint"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// Handler serves the proxy route.
type Handler struct {
	forwarder *Forwarder
	logger    zerolog.Logger
}

// NewHandler returns a Handler forwarding through f.
func NewHandler(f *Forwarder, logger *zerolog.Logger) *Handler {
	h := &Handler{forwarder: f, logger: zerolog.Nop()}
	if logger != nil {
		h.logger = *logger
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, r)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	var in Request
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}

		httpx.WriteError(w, http.StatusBadRequest, msgEndpointRequired)
		return
	}

	resp, err := h.forwarder.Forward(r.Context(), in.Endpoint, in.Body)
	if err != nil {
		h.writeForwardError(w, in.Endpoint, err)
		return
	}

	httpx.WriteRaw(w, resp.Status, resp.Body)
}

func (h *Handler) writeForwardError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, ErrEndpointRequired):
		httpx.WriteError(w, http.StatusBadRequest, msgEndpointRequired)
	case errors.Is(err, ErrInvalidEndpoint):
		h.logger.Warn().Str("endpoint", endpoint).Msg("rejected endpoint")
		httpx.WriteError(w, http.StatusBadRequest, msgInvalidEndpoint)
	case errors.Is(err, ErrValidation):
		httpx.WriteError(w, http.StatusBadRequest, msgEndpointRequired)
	default:
		h.logger.Error().Err(err).Str("endpoint", endpoint).Msg("proxy error")
		httpx.WriteError(w, http.StatusInternalServerError, msgInternal)
	}
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Add("Vary", "Origin")
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}
