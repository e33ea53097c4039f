package cryptoutils

import (
	"context"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	tdx_client "github.com/google/go-tdx-guest/client"
	"github.com/ruteri/enclave-signer/sgx"
)

var (
	DCAPAttestation = AttestationType{
		OID:      asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 66704, 98645, 1},
		StringID: "qemu-tdx",
	}

	SimulatedAttestation = AttestationType{
		OID:      asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 66704, 98645, 3},
		StringID: "sgx-sim",
	}

	DummyAttestation = AttestationType{
		OID:      asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 66704, 98645, 404},
		StringID: "dummy",
	}
)

type AttestationType struct {
	OID      asn1.ObjectIdentifier
	StringID string
}

func AttestationTypeFromString(str string) (AttestationType, error) {
	switch str {
	case DCAPAttestation.StringID:
		return DCAPAttestation, nil
	case SimulatedAttestation.StringID:
		return SimulatedAttestation, nil
	case DummyAttestation.StringID:
		return DummyAttestation, nil
	default:
		return AttestationType{}, fmt.Errorf("%w: attestation type %q", errors.ErrUnsupported, str)
	}
}

type AttestationProvider interface {
	AttestationType() AttestationType
	Attest(reportData [64]byte) ([]byte, error)
}

// ReportDataForPublicKey binds a quote to a signing key: SHA-256 of the
// public key in the first 32 bytes, zero padded.
func ReportDataForPublicKey(publicKey []byte) [64]byte {
	var reportData [64]byte
	digest := sha256.Sum256(publicKey)
	copy(reportData[:], digest[:])
	return reportData
}

// RemoteAttestationProvider asks a quote service reachable over HTTP, as run
// next to a confidential VM, for a DCAP quote.
type RemoteAttestationProvider struct {
	Address string
	Client  *http.Client
}

func (*RemoteAttestationProvider) AttestationType() AttestationType { return DCAPAttestation }

func (p *RemoteAttestationProvider) Attest(reportData [64]byte) ([]byte, error) {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	url := fmt.Sprintf("%s/attest/%s", p.Address, hex.EncodeToString(reportData[:]))
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building quote request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	rawQuote, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote from response: %w", err)
	}
	return rawQuote, nil
}

// DCAPAttestationProvider produces TDX quotes from the local guest, preferring
// configfs-tsm and falling back to the TDX guest device.
type DCAPAttestationProvider struct{}

func (DCAPAttestationProvider) AttestationType() AttestationType { return DCAPAttestation }

func (DCAPAttestationProvider) Attest(reportData [64]byte) ([]byte, error) {
	qp := &tdx_client.LinuxConfigFsQuoteProvider{}
	if qp.IsSupported() == nil {
		return qp.GetRawQuote(reportData)
	}

	qd, err := tdx_client.OpenDevice()
	if err != nil {
		return nil, err
	}
	defer qd.Close()

	return tdx_client.GetRawQuote(qd, reportData)
}

// simulatedQuote is the body produced by SimulatedAttestationProvider.
type simulatedQuote struct {
	Type       string   `cbor:"1,keyasint"`
	MREnclave  []byte   `cbor:"2,keyasint"`
	MRSigner   []byte   `cbor:"3,keyasint"`
	ISVProdID  uint16   `cbor:"4,keyasint"`
	ISVSVN     uint16   `cbor:"5,keyasint"`
	Attributes []uint64 `cbor:"6,keyasint"`
	CPUSVN     []byte   `cbor:"7,keyasint"`
	ReportData []byte   `cbor:"8,keyasint"`
}

// SimulatedAttestationProvider reports the identity of a simulated enclave.
// The quote is not signed by anything and proves nothing about the host; it
// exists so clients can exercise the attestation flow in development.
type SimulatedAttestationProvider struct {
	Report sgx.Report
}

func (SimulatedAttestationProvider) AttestationType() AttestationType { return SimulatedAttestation }

func (p SimulatedAttestationProvider) Attest(reportData [64]byte) ([]byte, error) {
	id := p.Report.Identity
	return cbor.Marshal(simulatedQuote{
		Type:       SimulatedAttestation.StringID,
		MREnclave:  id.MREnclave[:],
		MRSigner:   id.MRSigner[:],
		ISVProdID:  id.ISVProdID,
		ISVSVN:     id.ISVSVN,
		Attributes: []uint64{id.Attributes.Flags, id.Attributes.Xfrm},
		CPUSVN:     p.Report.CPUSVN[:],
		ReportData: reportData[:],
	})
}

type DummyAttestationProvider struct{}

func (DummyAttestationProvider) AttestationType() AttestationType {
	return DummyAttestation
}

func (DummyAttestationProvider) Attest(reportData [64]byte) ([]byte, error) {
	return []byte(fmt.Sprintf("Attestation for signer %x", reportData)), nil
}

// AttestationProviderFor picks a provider by type name. A non-empty
// remoteAddress selects the remote quote service for qemu-tdx.
func AttestationProviderFor(typeID string, remoteAddress string, report sgx.Report) (AttestationProvider, error) {
	typ, err := AttestationTypeFromString(typeID)
	if err != nil {
		return nil, err
	}

	switch typ.StringID {
	case DCAPAttestation.StringID:
		if remoteAddress != "" {
			return &RemoteAttestationProvider{Address: remoteAddress}, nil
		}
		return DCAPAttestationProvider{}, nil
	case SimulatedAttestation.StringID:
		return SimulatedAttestationProvider{Report: report}, nil
	default:
		return DummyAttestationProvider{}, nil
	}
}
