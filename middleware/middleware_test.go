package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func TestChain(t *testing.T) {
	var order []string

	mark := func(name string) Func {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler, mark("a"), mark("b"), mark("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestCORS(t *testing.T) {
	t.Run("wildcard with credentials rejected", func(t *testing.T) {
		_, err := CORS(CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true})
		assert.ErrorIs(t, err, ErrWildcardCredentials)
	})

	mw, err := CORS(CORSConfig{
		AllowedOrigins:   []string{"https://moddy.app"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	require.NoError(t, err)
	h := mw(okHandler)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/debug/status", nil)
		req.Header.Set("Origin", "https://MODDY.app")

		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://MODDY.app", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Contains(t, w.Header().Values("Vary"), "Origin")
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/debug/status", nil)
		req.Header.Set("Origin", "https://moddy.app")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
		assert.Empty(t, w.Body.String())
	})

	t.Run("disallowed origin passes without headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")

		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard", func(t *testing.T) {
		mw, err := CORS(CORSConfig{AllowedOrigins: []string{"*"}})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://anything.example")

		w := httptest.NewRecorder()
		mw(okHandler).ServeHTTP(w, req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRecovery(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode int
		wantLog  bool
	}{
		{
			name:     "no panic passes through",
			handler:  okHandler,
			wantCode: http.StatusOK,
		},
		{
			name: "panic returns 500",
			handler: func(_ http.ResponseWriter, _ *http.Request) {
				panic("something went wrong")
			},
			wantCode: http.StatusInternalServerError,
			wantLog:  true,
		},
		{
			name: "panic with integer value",
			handler: func(_ http.ResponseWriter, _ *http.Request) {
				panic(42)
			},
			wantCode: http.StatusInternalServerError,
			wantLog:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			h := Recovery(RecoveryConfig{Logger: &logger})(tt.handler)

			w := httptest.NewRecorder()
			require.NotPanics(t, func() {
				h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
			})

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantLog {
				assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
				assert.Contains(t, buf.String(), "recovered from panic")
				assert.Contains(t, buf.String(), `"path":"/boom"`)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}

	t.Run("nil logger", func(t *testing.T) {
		h := Recovery(RecoveryConfig{})(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			panic("quiet")
		}))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestSizeLimit(t *testing.T) {
	t.Run("invalid size", func(t *testing.T) {
		_, err := SizeLimit(SizeLimitConfig{})
		assert.ErrorIs(t, err, ErrInvalidMaxSize)
	})

	mw, err := SizeLimit(SizeLimitConfig{MaxBytes: 8})
	require.NoError(t, err)

	reader := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	t.Run("within limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		mw(reader).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("declared length over limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		mw(reader).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64))))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("streamed body over limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(strings.Repeat("x", 64))))
		req.ContentLength = -1

		w := httptest.NewRecorder()
		mw(reader).ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		_, err := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0, Burst: 1})
		assert.ErrorIs(t, err, ErrInvalidRate)

		_, err = NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 0})
		assert.ErrorIs(t, err, ErrInvalidRate)
	})

	t.Run("burst then 429", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		rl, err := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2, Clock: clock})
		require.NoError(t, err)

		h := rl.Middleware()(okHandler)

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = "203.0.113.7:5555"

			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			codes = append(codes, w.Code)

			if w.Code == http.StatusTooManyRequests {
				var body map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "rate limit exceeded", body["error"])
			}
		}

		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

		clock.Advance(time.Second)

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("clients are independent", func(t *testing.T) {
		rl, err := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Clock: clockwork.NewFakeClock()})
		require.NoError(t, err)

		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))
	})

	t.Run("idle clients evicted", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		rl, err := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Expiry: time.Minute, Clock: clock})
		require.NoError(t, err)

		rl.Allow("a")
		rl.Allow("b")
		assert.Equal(t, 2, rl.Len())

		clock.Advance(2 * time.Minute)
		rl.Allow("c")
		assert.Equal(t, 1, rl.Len())
	})
}

func TestRemoteIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	req.RemoteAddr = "198.51.100.2:1234"
	assert.Equal(t, "198.51.100.2", RemoteIP(req))

	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", RemoteIP(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", RemoteIP(req))
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := AccessLog(&logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/backend-proxy", nil)
	req.RemoteAddr = "192.0.2.1:9999"
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "request", entry["message"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/api/backend-proxy", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.EqualValues(t, 15, entry["bytes"])
	assert.Equal(t, "192.0.2.1", entry["remote_ip"])
}

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := WrapWriter(rec)

	assert.Equal(t, http.StatusOK, w.Status())

	_, _ = w.Write([]byte("abc"))
	w.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, w.Status())
	assert.Equal(t, 3, w.Bytes())
	assert.Same(t, rec, w.Unwrap())

	_, _, err := w.Hijack()
	assert.Error(t, err)
}

func TestSecurityHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	t.Run("defaults", func(t *testing.T) {
		mw, err := SecurityHeaders(SecurityHeadersConfig{})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		mw(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
		assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	})

	t.Run("hsts", func(t *testing.T) {
		mw, err := SecurityHeaders(SecurityHeadersConfig{FrameOption: "SAMEORIGIN", HSTSMaxAge: 3600})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		mw(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "max-age=3600; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	})

	t.Run("invalid frame option", func(t *testing.T) {
		_, err := SecurityHeaders(SecurityHeadersConfig{FrameOption: "ALLOW"})
		assert.ErrorIs(t, err, ErrInvalidFrameOption)
	})
}
