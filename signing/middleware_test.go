package signing

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	signer, verifier := newTestPair(t)

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("nil verifier returns error", func(t *testing.T) {
		_, err := Middleware(MiddlewareConfig{})
		assert.ErrorIs(t, err, ErrNoVerifier)
	})

	t.Run("valid signed request passes through", func(t *testing.T) {
		mw, err := Middleware(MiddlewareConfig{Verify: VerifyConfig{Verifier: verifier}})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/website/ping", strings.NewReader(`{}`))
		_, err = SignRequest(req, signer, nil)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		mw(ok).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unsigned request rejected", func(t *testing.T) {
		mw, err := Middleware(MiddlewareConfig{Verify: VerifyConfig{Verifier: verifier}})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/website/ping", strings.NewReader(`{}`))

		w := httptest.NewRecorder()
		mw(ok).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("body with differently spelled numbers still verifies", func(t *testing.T) {
		mw, err := Middleware(MiddlewareConfig{Verify: VerifyConfig{Verifier: verifier}})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/website/ping", strings.NewReader(`{"price":1.50,"n":1e2,"z":-0}`))
		_, err = SignRequest(req, signer, nil)
		require.NoError(t, err)

		// A verifier that re-serialises the body sees the normal form.
		req.Body = io.NopCloser(strings.NewReader(`{"n": 100, "price": 1.5, "z": 0}`))

		w := httptest.NewRecorder()
		mw(ok).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("custom error handler", func(t *testing.T) {
		var got error

		mw, err := Middleware(MiddlewareConfig{
			Verify: VerifyConfig{Verifier: verifier},
			OnError: func(w http.ResponseWriter, _ *http.Request, err error) {
				got = err
				w.WriteHeader(http.StatusForbidden)
			},
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
		_, err = SignRequest(req, signer, nil)
		require.NoError(t, err)
		req.Header.Set(HeaderSignature, strings.Repeat("0", SignatureLength))

		w := httptest.NewRecorder()
		mw(ok).ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.True(t, errors.Is(got, ErrSignatureInvalid))
	})
}
