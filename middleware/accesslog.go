package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// StatusWriter captures the status code and size written by a handler.
type StatusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *StatusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *StatusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n

	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (s *StatusWriter) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack lets websocket upgrades pass through the wrapper.
func (s *StatusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("middleware: response writer does not support hijacking")
	}

	if s.status == 0 {
		s.status = http.StatusSwitchingProtocols
	}

	return hj.Hijack()
}

// Flush forwards to the underlying writer when it supports flushing.
func (s *StatusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// WrapWriter wraps w so the written status can be read back.
func WrapWriter(w http.ResponseWriter) *StatusWriter {
	return &StatusWriter{ResponseWriter: w}
}

// Bytes returns the number of body bytes written.
func (s *StatusWriter) Bytes() int {
	return s.bytes
}

// Status returns the written status, 200 if the handler wrote nothing.
func (s *StatusWriter) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}

	return s.status
}

// AccessLog logs one line per request at info level.
func AccessLog(logger *zerolog.Logger) Func {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := WrapWriter(w)

			next.ServeHTTP(rec, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.Status()).
				Int("bytes", rec.Bytes()).
				Str("remote_ip", RemoteIP(r)).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
