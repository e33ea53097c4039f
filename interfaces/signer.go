package interfaces

import "errors"

// Signature algorithm identifiers shared by all signing backends.
const (
	AlgorithmEd25519   = "ed25519"
	AlgorithmECDSAP256 = "ecdsa-p256"
	AlgorithmECDSAP384 = "ecdsa-p384"
	AlgorithmSecp256k1 = "secp256k1"
)

var (
	// ErrInvalidSignature is returned by a Verifier when a signature does not match.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnsupportedAlgorithm is returned for unknown algorithm identifiers.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
)

// Signer produces signatures with a key it holds.
// The enclave-backed controller and the software backends all implement it,
// so callers can swap one for another.
type Signer interface {
	// Algorithm returns one of the Algorithm* identifiers.
	Algorithm() string

	// PublicKeyBytes returns the encoded public key.
	PublicKeyBytes() ([]byte, error)

	// TrySign signs msg, returning the encoded signature.
	TrySign(msg []byte) ([]byte, error)
}

// Verifier checks signatures against a single public key.
type Verifier interface {
	Algorithm() string

	// Verify returns nil if sig is a valid signature of msg, ErrInvalidSignature otherwise.
	Verify(msg, sig []byte) error
}
