package cryptoutils

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	tdx_abi "github.com/google/go-tdx-guest/abi"
	tdx_pb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/verify"
)

// ErrReportDataMismatch is returned when a quote is valid but bound to
// different report data than expected.
var ErrReportDataMismatch = errors.New("report data mismatch")

// VerifyAttestation checks quote against reportData and returns the
// measurements it carries, keyed by name.
func VerifyAttestation(typ AttestationType, reportData [64]byte, quote []byte) (map[string]string, error) {
	switch typ.StringID {
	case DCAPAttestation.StringID:
		measurements, err := VerifyDCAPAttestation(reportData, quote)
		if err != nil {
			return nil, err
		}
		named := make(map[string]string, len(measurements))
		for i, m := range measurements {
			named[dcapMeasurementName(i)] = m
		}
		return named, nil
	case SimulatedAttestation.StringID:
		return VerifySimulatedAttestation(reportData, quote)
	default:
		return nil, fmt.Errorf("%w: cannot verify %s attestations", errors.ErrUnsupported, typ.StringID)
	}
}

func dcapMeasurementName(i int) string {
	switch i {
	case 0:
		return "mrtd"
	case 5:
		return "mrconfigid"
	case 6:
		return "mrowner"
	case 7:
		return "mrownerconfig"
	default:
		return "rtmr" + strconv.Itoa(i-1)
	}
}

// VerifyDCAPAttestation verifies a TDX v4 quote including its collateral and
// returns MRTD, RTMR0-3, MRCONFIGID, MROWNER and MROWNERCONFIG by index.
func VerifyDCAPAttestation(reportData [64]byte, report []byte) (map[int]string, error) {
	protoQuote, err := tdx_abi.QuoteToProto(report)
	if err != nil {
		return nil, fmt.Errorf("could not parse quote: %w", err)
	}

	v4Quote, ok := protoQuote.(*tdx_pb.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("unsupported quote type: %T", protoQuote)
	}

	if err := verify.TdxQuote(protoQuote, verify.DefaultOptions()); err != nil {
		return nil, fmt.Errorf("quote verification failed: %w", err)
	}

	body := v4Quote.TdQuoteBody
	if !bytes.Equal(body.ReportData, reportData[:]) {
		return nil, fmt.Errorf("%w: got %x, expected %x", ErrReportDataMismatch, body.ReportData, reportData[:])
	}

	return map[int]string{
		0: hex.EncodeToString(body.MrTd),
		1: hex.EncodeToString(body.Rtmrs[0]),
		2: hex.EncodeToString(body.Rtmrs[1]),
		3: hex.EncodeToString(body.Rtmrs[2]),
		4: hex.EncodeToString(body.Rtmrs[3]),
		5: hex.EncodeToString(body.MrConfigId),
		6: hex.EncodeToString(body.MrOwner),
		7: hex.EncodeToString(body.MrOwnerConfig),
	}, nil
}

// VerifySimulatedAttestation decodes a simulated quote and checks its report
// data. Nothing else can be checked.
func VerifySimulatedAttestation(reportData [64]byte, quote []byte) (map[string]string, error) {
	var q simulatedQuote
	if err := cbor.Unmarshal(quote, &q); err != nil {
		return nil, fmt.Errorf("could not parse quote: %w", err)
	}
	if q.Type != SimulatedAttestation.StringID {
		return nil, fmt.Errorf("unexpected quote type %q", q.Type)
	}
	if !bytes.Equal(q.ReportData, reportData[:]) {
		return nil, fmt.Errorf("%w: got %x, expected %x", ErrReportDataMismatch, q.ReportData, reportData[:])
	}

	return map[string]string{
		"mrenclave": hex.EncodeToString(q.MREnclave),
		"mrsigner":  hex.EncodeToString(q.MRSigner),
		"isvprodid": strconv.Itoa(int(q.ISVProdID)),
		"isvsvn":    strconv.Itoa(int(q.ISVSVN)),
		"cpusvn":    hex.EncodeToString(q.CPUSVN),
	}, nil
}
