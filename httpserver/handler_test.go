package httpserver

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/enclave-signer/api"
	"github.com/ruteri/enclave-signer/backends"
	"github.com/ruteri/enclave-signer/cryptoutils"
	"github.com/ruteri/enclave-signer/enclave"
	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/ruteri/enclave-signer/protocol"
	"github.com/ruteri/enclave-signer/sgx"
	"github.com/ruteri/enclave-signer/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockSigner struct {
	mock.Mock
}

func (m *MockSigner) Algorithm() string {
	return interfaces.AlgorithmEd25519
}

func (m *MockSigner) PublicKeyBytes() ([]byte, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockSigner) TrySign(msg []byte) ([]byte, error) {
	args := m.Called(msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorResponse {
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandlePublicKeyAndSign(t *testing.T) {
	s, err := backends.GenerateEd25519()
	require.NoError(t, err)
	router := newRouter(NewHandler(s, nil, testLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, api.PublicKeyPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var pkResp api.PublicKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pkResp))
	assert.Equal(t, "ed25519", pkResp.Algorithm)
	pub, err := hex.DecodeString(pkResp.PublicKey)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, api.SignPath, strings.NewReader("hello")))
	require.Equal(t, http.StatusOK, rec.Code)

	var sigResp api.SignResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sigResp))
	sig, err := hex.DecodeString(sigResp.Signature)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, []byte("hello"), sig))
}

func TestHandleSignTooLarge(t *testing.T) {
	m := &MockSigner{}
	router := newRouter(NewHandler(m, nil, testLogger()))

	rec := httptest.NewRecorder()
	body := bytes.NewReader(make([]byte, api.MaxSignBodySize+1))
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, api.SignPath, body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	m.AssertNotCalled(t, "TrySign", mock.Anything)
}

func TestHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"key not set", protocol.KeyNotSet, http.StatusConflict, "key_not_set"},
		{"unseal failed", protocol.UnsealFailed, http.StatusInternalServerError, "unseal_failed"},
		{"transport", fmt.Errorf("%w: reading response: EOF", protocol.Unexpected), http.StatusBadGateway, "unexpected"},
		{"shut down", signer.ErrShutdown, http.StatusServiceUnavailable, "shut_down"},
		{"other", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockSigner{}
			m.On("PublicKeyBytes").Return(nil, tt.err)
			m.On("TrySign", []byte("msg")).Return(nil, tt.err)
			router := newRouter(NewHandler(m, cryptoutils.DummyAttestationProvider{}, testLogger()))

			for _, req := range []*http.Request{
				httptest.NewRequest(http.MethodGet, api.PublicKeyPath, nil),
				httptest.NewRequest(http.MethodPost, api.SignPath, strings.NewReader("msg")),
				httptest.NewRequest(http.MethodGet, api.AttestationPath, nil),
			} {
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, req)
				assert.Equal(t, tt.wantStatus, rec.Code, req.URL.Path)
				assert.Equal(t, tt.wantCode, decodeError(t, rec).Code, req.URL.Path)
			}
		})
	}
}

func TestHandleAttestation(t *testing.T) {
	m := &MockSigner{}
	pub := bytes.Repeat([]byte{7}, 32)
	m.On("PublicKeyBytes").Return(pub, nil)

	report := sgx.Report{}
	report.MREnclave[0] = 0x42
	router := newRouter(NewHandler(m, cryptoutils.SimulatedAttestationProvider{Report: report}, testLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, api.AttestationPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.AttestationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sgx-sim", resp.Type)
	assert.Equal(t, hex.EncodeToString(pub), resp.PublicKey)

	quote, err := hex.DecodeString(resp.Quote)
	require.NoError(t, err)
	measurements, err := cryptoutils.VerifyAttestation(cryptoutils.SimulatedAttestation, cryptoutils.ReportDataForPublicKey(pub), quote)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(report.MREnclave[:]), measurements["mrenclave"])
}

func TestHandleAttestationNotConfigured(t *testing.T) {
	router := newRouter(NewHandler(&MockSigner{}, nil, testLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, api.AttestationPath, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerOverEnclave(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "enclave.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("name: signer\nisv_prod_id: 1\nisv_svn: 1\nmr_signer: 5151515151515151515151515151515151515151515151515151515151515151\n"), 0644))

	platform, err := sgx.GeneratePlatform([16]byte{})
	require.NoError(t, err)
	controller, err := signer.Launch(manifest, enclave.NewSimLoader(platform, testLogger()), testLogger())
	require.NoError(t, err)
	defer controller.Shutdown()

	router := newRouter(NewHandler(controller, nil, testLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, api.PublicKeyPath, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, err = controller.KeyGen()
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, api.SignPath, strings.NewReader("hello")))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, controller.Shutdown())
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, api.SignPath, strings.NewReader("hello")))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
