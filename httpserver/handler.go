package httpserver

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/enclave-signer/api"
	"github.com/ruteri/enclave-signer/cryptoutils"
	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/ruteri/enclave-signer/metrics"
	"github.com/ruteri/enclave-signer/protocol"
	"github.com/ruteri/enclave-signer/signer"
)

// RequestError carries the HTTP status for an error returned to a client.
type RequestError struct {
	StatusCode int
	Code       string
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Handler exposes a signer over HTTP.
type Handler struct {
	signer      interfaces.Signer
	attestation cryptoutils.AttestationProvider
	log         *slog.Logger
}

// NewHandler creates a handler. attestation may be nil, in which case the
// attestation endpoint answers 404.
func NewHandler(s interfaces.Signer, attestation cryptoutils.AttestationProvider, log *slog.Logger) *Handler {
	return &Handler{
		signer:      s,
		attestation: attestation,
		log:         log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get(api.PublicKeyPath, h.HandlePublicKey)
	r.Post(api.SignPath, h.HandleSign)
	r.Get(api.AttestationPath, h.HandleAttestation)
}

func (h *Handler) HandlePublicKey(w http.ResponseWriter, r *http.Request) {
	pub, err := h.signer.PublicKeyBytes()
	if err != nil {
		h.writeError(w, api.PublicKeyPath, classify(err))
		return
	}

	h.writeJSON(w, api.PublicKeyPath, api.PublicKeyResponse{
		Algorithm: h.signer.Algorithm(),
		PublicKey: hex.EncodeToString(pub),
	})
}

func (h *Handler) HandleSign(w http.ResponseWriter, r *http.Request) {
	msg, err := io.ReadAll(http.MaxBytesReader(w, r.Body, api.MaxSignBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, api.SignPath, &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Code: "too_large", Err: err})
			return
		}
		h.writeError(w, api.SignPath, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("reading body: %w", err)})
		return
	}

	sig, err := h.signer.TrySign(msg)
	if err != nil {
		h.writeError(w, api.SignPath, classify(err))
		return
	}

	h.log.Debug("Signed message", slog.Int("size", len(msg)))
	h.writeJSON(w, api.SignPath, api.SignResponse{
		Algorithm: h.signer.Algorithm(),
		Signature: hex.EncodeToString(sig),
	})
}

func (h *Handler) HandleAttestation(w http.ResponseWriter, r *http.Request) {
	if h.attestation == nil {
		h.writeError(w, api.AttestationPath, &RequestError{StatusCode: http.StatusNotFound, Code: "no_attestation", Err: errors.New("attestation not configured")})
		return
	}

	pub, err := h.signer.PublicKeyBytes()
	if err != nil {
		h.writeError(w, api.AttestationPath, classify(err))
		return
	}

	reportData := cryptoutils.ReportDataForPublicKey(pub)
	quote, err := h.attestation.Attest(reportData)
	if err != nil {
		h.writeError(w, api.AttestationPath, &RequestError{StatusCode: http.StatusInternalServerError, Code: "attestation_failed", Err: err})
		return
	}

	h.writeJSON(w, api.AttestationPath, api.AttestationResponse{
		Type:       h.attestation.AttestationType().StringID,
		PublicKey:  hex.EncodeToString(pub),
		ReportData: hex.EncodeToString(reportData[:]),
		Quote:      hex.EncodeToString(quote),
	})
}

// classify maps signer errors to responses. Enclave-reported conditions keep
// their protocol label as the error code.
func classify(err error) *RequestError {
	var kind protocol.ErrorKind
	switch {
	case errors.Is(err, signer.ErrShutdown):
		return &RequestError{StatusCode: http.StatusServiceUnavailable, Code: "shut_down", Err: err}
	case errors.As(err, &kind):
		switch kind {
		case protocol.KeyNotSet, protocol.KeyAlreadySet:
			return &RequestError{StatusCode: http.StatusConflict, Code: kind.Label(), Err: err}
		case protocol.Unexpected:
			return &RequestError{StatusCode: http.StatusBadGateway, Code: kind.Label(), Err: err}
		default:
			return &RequestError{StatusCode: http.StatusInternalServerError, Code: kind.Label(), Err: err}
		}
	default:
		return &RequestError{StatusCode: http.StatusInternalServerError, Err: err}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, route string, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to write response", "err", err)
	}
	metrics.RecordHTTPRequest(route, http.StatusOK)
}

func (h *Handler) writeError(w http.ResponseWriter, route string, reqErr *RequestError) {
	if reqErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error("Request failed", slog.String("route", route), "err", reqErr.Err)
	} else {
		h.log.Debug("Request rejected", slog.String("route", route), "err", reqErr.Err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reqErr.StatusCode)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: reqErr.Error(), Code: reqErr.Code})
	metrics.RecordHTTPRequest(route, reqErr.StatusCode)
}
