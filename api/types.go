package api

// Routes served by the signer daemon.
const (
	PublicKeyPath   = "/api/v1/public_key"
	SignPath        = "/api/v1/sign"
	AttestationPath = "/api/v1/attestation"
)

// MaxSignBodySize bounds the message accepted by the sign endpoint.
const MaxSignBodySize = 1024 * 1024

// PublicKeyResponse is returned by GET /api/v1/public_key.
type PublicKeyResponse struct {
	Algorithm string `json:"algorithm"`
	// PublicKey is hex encoded.
	PublicKey string `json:"public_key"`
}

// SignResponse is returned by POST /api/v1/sign. The request body is the raw
// message to sign.
type SignResponse struct {
	Algorithm string `json:"algorithm"`
	Signature string `json:"signature"`
}

// AttestationResponse is returned by GET /api/v1/attestation. ReportData is
// SHA-256 of the public key, zero padded to 64 bytes.
type AttestationResponse struct {
	Type       string `json:"type"`
	PublicKey  string `json:"public_key"`
	ReportData string `json:"report_data"`
	Quote      string `json:"quote"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	// Code is a stable machine-readable reason, e.g. "key_not_set".
	Code string `json:"code,omitempty"`
}
