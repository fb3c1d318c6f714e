package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, ContentTypeJSON, w.Header().Get("Content-Type"))
	assert.Equal(t, `{"error":"Method not allowed"}`, w.Body.String())
}

func TestWriteJSON(t *testing.T) {
	t.Run("no trailing newline", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("unencodable value", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]any{"c": make(chan int)})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, `{"error":"Internal server error"}`, w.Body.String())
	})
}

func TestWriteRaw(t *testing.T) {
	w := httptest.NewRecorder()
	WriteRaw(w, http.StatusTeapot, []byte(`{"a": 1}`))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, `{"a": 1}`, w.Body.String())
}
