package cryptoutils

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ruteri/enclave-signer/sgx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport() sgx.Report {
	var r sgx.Report
	r.MREnclave[0] = 0xaa
	r.MRSigner[0] = 0xbb
	r.ISVProdID = 7
	r.ISVSVN = 3
	r.CPUSVN[0] = 1
	return r
}

func TestReportDataForPublicKey(t *testing.T) {
	rd := ReportDataForPublicKey([]byte("pub"))
	assert.Equal(t, make([]byte, 32), rd[32:])
	assert.NotEqual(t, rd, ReportDataForPublicKey([]byte("other")))
}

func TestAttestationProviderFor(t *testing.T) {
	report := testReport()

	p, err := AttestationProviderFor("sgx-sim", "", report)
	require.NoError(t, err)
	assert.Equal(t, SimulatedAttestation, p.AttestationType())

	p, err = AttestationProviderFor("qemu-tdx", "http://localhost:1", report)
	require.NoError(t, err)
	assert.IsType(t, &RemoteAttestationProvider{}, p)

	p, err = AttestationProviderFor("qemu-tdx", "", report)
	require.NoError(t, err)
	assert.IsType(t, DCAPAttestationProvider{}, p)

	p, err = AttestationProviderFor("dummy", "", report)
	require.NoError(t, err)
	assert.Equal(t, DummyAttestation, p.AttestationType())

	_, err = AttestationProviderFor("azure-tdx", "", report)
	assert.Error(t, err)
}

func TestSimulatedAttestation(t *testing.T) {
	provider := SimulatedAttestationProvider{Report: testReport()}
	reportData := ReportDataForPublicKey([]byte("pub"))

	quote, err := provider.Attest(reportData)
	require.NoError(t, err)

	measurements, err := VerifyAttestation(SimulatedAttestation, reportData, quote)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(measurements["mrenclave"], "aa"))
	assert.True(t, strings.HasPrefix(measurements["mrsigner"], "bb"))
	assert.Equal(t, "7", measurements["isvprodid"])
	assert.Equal(t, "3", measurements["isvsvn"])

	_, err = VerifyAttestation(SimulatedAttestation, ReportDataForPublicKey([]byte("other")), quote)
	assert.ErrorIs(t, err, ErrReportDataMismatch)

	_, err = VerifyAttestation(SimulatedAttestation, reportData, []byte("garbage"))
	assert.Error(t, err)

	_, err = VerifyAttestation(DummyAttestation, reportData, quote)
	assert.Error(t, err)
}

func TestRemoteAttestationProvider(t *testing.T) {
	reportData := ReportDataForPublicKey([]byte("pub"))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/attest/"+hex.EncodeToString(reportData[:]) {
			http.Error(w, "bad report data", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("quote"))
	}))
	defer server.Close()

	provider := &RemoteAttestationProvider{Address: server.URL}
	quote, err := provider.Attest(reportData)
	require.NoError(t, err)
	assert.Equal(t, []byte("quote"), quote)

	_, err = provider.Attest(ReportDataForPublicKey([]byte("other")))
	assert.ErrorContains(t, err, "status 400")
}
