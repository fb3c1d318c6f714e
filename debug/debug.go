// Package debug serves the operator diagnostics endpoints: process
// status, the in-memory log buffer (snapshot and live websocket stream)
// and connectivity checks against the backend and the proxy path.
//
// None of the responses include the shared signing secret.
package debug

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/moddyapp/signproxy/internal/httpx"
	"github.com/moddyapp/signproxy/logbuffer"
	"github.com/moddyapp/signproxy/proxy"
)

// Endpoints pinged by the connectivity checks.
const (
	BackendPingPath = "/auth/verify"
	ProxyPingPath   = "/api/website/ping"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pingTimeout   = 10 * time.Second
)

// Config configures a Handler.
type Config struct {
	Version string

	// Settings is echoed by the status endpoint. Callers must pass a
	// redacted view.
	Settings map[string]any

	Logs      *logbuffer.Buffer
	Forwarder *proxy.Forwarder

	// Client performs the backend ping. Defaults to a 10s timeout client.
	Client *http.Client

	// AllowedOrigins gates websocket upgrades. Empty means same host only.
	AllowedOrigins []string

	Clock  clockwork.Clock
	Logger *zerolog.Logger
}

// Handler serves the debug routes.
type Handler struct {
	version    string
	settings   map[string]any
	logs       *logbuffer.Buffer
	forwarder  *proxy.Forwarder
	proxyRoute http.Handler
	client     *http.Client
	clock      clockwork.Clock
	started    time.Time
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// New returns a Handler. Logs and Forwarder are required.
func New(cfg Config) *Handler {
	h := &Handler{
		version:   cfg.Version,
		settings:  cfg.Settings,
		logs:      cfg.Logs,
		forwarder: cfg.Forwarder,
		client:    cfg.Client,
		clock:     cfg.Clock,
		logger:    zerolog.Nop(),
	}

	if h.client == nil {
		h.client = &http.Client{Timeout: pingTimeout}
	}

	if h.clock == nil {
		h.clock = clockwork.NewRealClock()
	}

	if cfg.Logger != nil {
		h.logger = *cfg.Logger
	}

	h.started = h.clock.Now()
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}

	return h
}

// Register mounts the debug routes on router.
func (h *Handler) Register(router *httprouter.Router) {
	router.HandlerFunc(http.MethodGet, "/debug/status", h.Status)
	router.HandlerFunc(http.MethodGet, "/debug/logs", h.Logs)
	router.HandlerFunc(http.MethodDelete, "/debug/logs", h.ClearLogs)
	router.HandlerFunc(http.MethodGet, "/debug/logs/stream", h.Stream)
	router.HandlerFunc(http.MethodPost, "/debug/ping/backend", h.PingBackend)
	router.HandlerFunc(http.MethodPost, "/debug/ping/proxy", h.PingProxy)
}

// StatusResponse is the body of GET /debug/status.
type StatusResponse struct {
	Version       string         `json:"version"`
	StartedAt     time.Time      `json:"started_at"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	BackendURL    string         `json:"backend_url"`
	LogEntries    int            `json:"log_entries"`
	LogCapacity   int            `json:"log_capacity"`
	Subscribers   int            `json:"log_subscribers"`
	Settings      map[string]any `json:"settings,omitempty"`
}

// Status reports version, uptime and the redacted settings.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, StatusResponse{
		Version:       h.version,
		StartedAt:     h.started.UTC(),
		UptimeSeconds: int64(h.clock.Since(h.started).Seconds()),
		BackendURL:    h.forwarder.BackendURL(),
		LogEntries:    h.logs.Len(),
		LogCapacity:   h.logs.Capacity(),
		Subscribers:   h.logs.Subscribers(),
		Settings:      h.settings,
	})
}

// LogsResponse is the body of GET /debug/logs.
type LogsResponse struct {
	Count   int               `json:"count"`
	Entries []logbuffer.Entry `json:"entries"`
}

// Logs returns the buffered entries, oldest first.
func (h *Handler) Logs(w http.ResponseWriter, _ *http.Request) {
	entries := h.logs.Entries()
	httpx.WriteJSON(w, http.StatusOK, LogsResponse{Count: len(entries), Entries: entries})
}

// ClearLogs empties the buffer.
func (h *Handler) ClearLogs(w http.ResponseWriter, _ *http.Request) {
	h.logs.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// Stream upgrades to a websocket and sends the current buffer followed
// by every new entry, one JSON object per message.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("log stream upgrade failed")
		return
	}
	defer conn.Close()

	backlog, entries, cancel := h.logs.SubscribeWithSnapshot()
	defer cancel()

	// Reading is required for control frames; it ends when the peer goes.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for _, e := range backlog {
		if err := h.send(conn, e); err != nil {
			return
		}
	}

	ticker := h.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return
			}
			if err := h.send(conn, e); err != nil {
				return
			}
		case <-ticker.Chan():
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, e logbuffer.Entry) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteJSON(e)
}

// PingResult is the body of both ping endpoints.
type PingResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// PingBackend issues GET ${backend}/auth/verify.
func (h *Handler) PingBackend(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	start := h.clock.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.forwarder.BackendURL()+BackendPingPath, nil)
	if err != nil {
		httpx.WriteJSON(w, http.StatusOK, PingResult{Status: "error", Error: err.Error()})
		return
	}

	resp, err := h.client.Do(req)
	latency := h.clock.Since(start).Milliseconds()
	if err != nil {
		h.logger.Warn().Err(err).Msg("backend ping failed")
		httpx.WriteJSON(w, http.StatusOK, PingResult{Status: "error", LatencyMS: latency, Error: err.Error()})
		return
	}
	resp.Body.Close()

	httpx.WriteJSON(w, http.StatusOK, PingResult{Status: statusLabel(resp.StatusCode), LatencyMS: latency})
}

// MountProxy sends proxy pings through route, the handler mounted at
// proxy.Route, so they pass the same CORS, rate and size limits as
// browser traffic. Without it PingProxy calls the forwarder directly.
// Call it before serving.
func (h *Handler) MountProxy(route http.Handler) {
	h.proxyRoute = route
}

// PingProxy posts {"endpoint": "/api/website/ping", "body": {}} to the
// proxy route and reports the outcome.
func (h *Handler) PingProxy(w http.ResponseWriter, r *http.Request) {
	start := h.clock.Now()

	var result PingResult
	if h.proxyRoute != nil {
		result = h.pingRoute(r)
	} else {
		result = h.pingForwarder(r)
	}
	result.LatencyMS = h.clock.Since(start).Milliseconds()

	if result.Status != "ok" {
		h.logger.Warn().Str("status", result.Status).Str("error", result.Error).Msg("proxy ping failed")
	}

	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) pingRoute(r *http.Request) PingResult {
	body := `{"endpoint":"` + ProxyPingPath + `","body":{}}`

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, proxy.Route, strings.NewReader(body))
	if err != nil {
		return PingResult{Status: "error", Error: err.Error()}
	}

	// Charged to the operator's address like their own requests.
	req.RemoteAddr = r.RemoteAddr
	req.Host = r.Host
	req.Header.Set("Content-Type", httpx.ContentTypeJSON)
	if origin := r.Header.Get("Origin"); origin != "" {
		req.Header.Set("Origin", origin)
	}

	rec := &captureWriter{header: make(http.Header)}
	h.proxyRoute.ServeHTTP(rec, req)

	result := PingResult{Status: statusLabel(rec.status())}
	if rec.status() >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(rec.body.Bytes(), &e) == nil {
			result.Error = e.Error
		}
	}

	return result
}

func (h *Handler) pingForwarder(r *http.Request) PingResult {
	resp, err := h.forwarder.Forward(r.Context(), ProxyPingPath, []byte("{}"))
	if err != nil {
		return PingResult{Status: "error", Error: err.Error()}
	}

	return PingResult{Status: statusLabel(resp.Status)}
}

// captureWriter buffers an in-process response.
type captureWriter struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(code int) {
	if c.code == 0 {
		c.code = code
	}
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.WriteHeader(http.StatusOK)
	return c.body.Write(b)
}

func (c *captureWriter) status() int {
	if c.code == 0 {
		return http.StatusOK
	}

	return c.code
}

func statusLabel(code int) string {
	if code >= 200 && code < 300 {
		return "ok"
	}

	return "http " + strconv.Itoa(code)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}

	lower := make([]string, 0, len(allowed))
	for _, o := range allowed {
		lower = append(lower, strings.ToLower(o))
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		if slices.Contains(lower, strings.ToLower(origin)) {
			return true
		}

		// Same host as the request, e.g. the debug page served by us.
		host := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(origin), "https://"), "http://")
		return host == strings.ToLower(r.Host)
	}
}
