// Package maintenance serves the site's homepage with a 503 status so
// uptime monitors see the outage while visitors still get the usual page.
package maintenance

import (
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// RetryAfter is the retry hint sent with every response.
const RetryAfter = time.Hour

// FallbackHTML is served when the index file cannot be read.
const FallbackHTML = "<html><body><h1>503 Service Unavailable</h1></body></html>"

// Handler serves the built index.html with 503 Service Unavailable.
type Handler struct {
	fsys   fs.FS
	name   string
	logger zerolog.Logger
}

// NewHandler returns a Handler reading name from fsys on every request,
// so a redeployed index is picked up without a restart.
func NewHandler(fsys fs.FS, name string, logger *zerolog.Logger) *Handler {
	h := &Handler{fsys: fsys, name: name, logger: zerolog.Nop()}
	if logger != nil {
		h.logger = *logger
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	header := w.Header()
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	header.Set("Retry-After", strconv.Itoa(int(RetryAfter.Seconds())))

	html, err := h.read()
	if err != nil {
		h.logger.Error().Err(err).Str("file", h.name).Msg("serving maintenance fallback")
		html = []byte(FallbackHTML)
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write(html)
}

func (h *Handler) read() ([]byte, error) {
	if h.fsys == nil {
		return nil, fs.ErrNotExist
	}

	return fs.ReadFile(h.fsys, h.name)
}
