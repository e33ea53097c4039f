package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordExchange("keygen", "ok", time.Millisecond)
	RecordExchange("sign", "key_not_set", time.Millisecond)
	RecordHTTPRequest("/api/v1/sign", http.StatusOK)
	RecordHTTPRequest("/api/v1/sign", http.StatusConflict)
	RecordHTTPRequest("/api/v1/sign", 599)

	body := scrape(t)
	assert.Contains(t, body, `enclave_signer_exchanges_total{outcome="ok",request="keygen"} 1`)
	assert.Contains(t, body, `enclave_signer_exchanges_total{outcome="key_not_set",request="sign"} 1`)
	assert.Contains(t, body, `enclave_signer_exchange_duration_seconds_count{request="keygen"} 1`)
	assert.Contains(t, body, `enclave_signer_http_requests_total{code="200",route="/api/v1/sign"} 1`)
	assert.Contains(t, body, `enclave_signer_http_requests_total{code="409",route="/api/v1/sign"} 1`)
	assert.Contains(t, body, `enclave_signer_http_requests_total{code="599",route="/api/v1/sign"} 1`)
}

func TestNewMetricsServer(t *testing.T) {
	srv, err := New("127.0.0.1:0")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", srv.Addr)
}
