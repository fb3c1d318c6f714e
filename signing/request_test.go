package signing

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moddyapp/signproxy/canonical"
	"github.com/moddyapp/signproxy/requestid"
)

func fixedID(id string) requestid.Generator {
	return requestid.Func(func() string { return id })
}

func newTestPair(t *testing.T) (*Signer, *Verifier) {
	t.Helper()

	s, err := NewSigner([]byte(testSecret), canonical.Options{})
	require.NoError(t, err)

	v, err := NewVerifier([]byte(testSecret), canonical.Options{})
	require.NoError(t, err)

	return s, v
}

func TestSignRequest(t *testing.T) {
	signer, verifier := newTestPair(t)

	t.Run("sets headers and restores body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/website/auth/init", strings.NewReader(`{"b":1,"a":2}`))

		id, err := SignRequest(req, signer, fixedID(testRequestID))
		require.NoError(t, err)

		assert.Equal(t, testRequestID, id)
		assert.Equal(t, testRequestID, req.Header.Get(HeaderRequestID))
		assert.Equal(t, testSignature, req.Header.Get(HeaderSignature))
		assert.Equal(t, ContentTypeJSON, req.Header.Get(HeaderContentType))

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, `{"b":1,"a":2}`, string(body))
	})

	t.Run("empty body signs empty object", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)

		_, err := SignRequest(req, signer, fixedID(testRequestID))
		require.NoError(t, err)

		want, err := Sign(testRequestID, map[string]any{}, []byte(testSecret))
		require.NoError(t, err)
		assert.Equal(t, want, req.Header.Get(HeaderSignature))
	})

	t.Run("default generator yields uuid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))

		id, err := SignRequest(req, signer, nil)
		require.NoError(t, err)
		assert.True(t, requestid.Valid(id))
		assert.NoError(t, VerifyRequest(req, VerifyConfig{Verifier: verifier, RequireUUID: true}))
	})

	t.Run("invalid json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":`))

		_, err := SignRequest(req, signer, fixedID(testRequestID))
		assert.ErrorIs(t, err, canonical.ErrCanonicalization)
		assert.Empty(t, req.Header.Get(HeaderSignature))
	})

	t.Run("nil signer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)

		_, err := SignRequest(req, nil, nil)
		assert.ErrorIs(t, err, ErrNoSigner)
	})
}

func TestVerifyRequest(t *testing.T) {
	signer, verifier := newTestPair(t)
	cfg := VerifyConfig{Verifier: verifier}

	signed := func(t *testing.T, body string) *http.Request {
		t.Helper()

		req := httptest.NewRequest(http.MethodPost, "/api/website/ping", strings.NewReader(body))
		_, err := SignRequest(req, signer, fixedID(testRequestID))
		require.NoError(t, err)

		return req
	}

	t.Run("valid", func(t *testing.T) {
		req := signed(t, `{"x": [1, {"b": 2, "a": 1}]}`)
		require.NoError(t, VerifyRequest(req, cfg))

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, `{"x": [1, {"b": 2, "a": 1}]}`, string(body))
	})

	t.Run("reformatted body still verifies", func(t *testing.T) {
		req := signed(t, `{"b":1,"a":2}`)
		sig := req.Header.Get(HeaderSignature)

		other := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{\n  \"a\": 2,\n  \"b\": 1\n}"))
		SetHeaders(other.Header, testRequestID, sig)

		assert.NoError(t, VerifyRequest(other, cfg))
	})

	t.Run("tampered body", func(t *testing.T) {
		req := signed(t, `{"amount": 1}`)
		req.Body = io.NopCloser(strings.NewReader(`{"amount": 100}`))

		assert.ErrorIs(t, VerifyRequest(req, cfg), ErrSignatureInvalid)
	})

	t.Run("missing request id", func(t *testing.T) {
		req := signed(t, `{}`)
		req.Header.Del(HeaderRequestID)

		assert.ErrorIs(t, VerifyRequest(req, cfg), ErrRequestIDNotFound)
	})

	t.Run("missing signature", func(t *testing.T) {
		req := signed(t, `{}`)
		req.Header.Del(HeaderSignature)

		assert.ErrorIs(t, VerifyRequest(req, cfg), ErrSignatureNotFound)
	})

	t.Run("require uuid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		_, err := SignRequest(req, signer, fixedID("not-a-uuid"))
		require.NoError(t, err)

		assert.NoError(t, VerifyRequest(req, cfg))
		assert.ErrorIs(t, VerifyRequest(req, VerifyConfig{Verifier: verifier, RequireUUID: true}), ErrInvalidRequestID)
	})

	t.Run("nil verifier", func(t *testing.T) {
		assert.ErrorIs(t, VerifyRequest(signed(t, `{}`), VerifyConfig{}), ErrNoVerifier)
	})
}
