package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProxyMetrics(reg)

	m.RecordForward("200", 20*time.Millisecond)
	m.RecordForward("200", 30*time.Millisecond)
	m.RecordForward("error", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ForwardTotal.WithLabelValues("200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForwardTotal.WithLabelValues("error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ForwardTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ForwardDuration))
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	h := m.Instrument("/api/backend-proxy", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/backend-proxy", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodPost, "/api/backend-proxy", "400")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := NewProxyMetrics(reg)
	m.RecordForward("502", time.Millisecond)

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `signproxy_proxy_forward_total{status="502"} 1`))
	assert.Contains(t, string(body), "go_goroutines")
}
