package backends

import (
	"fmt"

	"github.com/ruteri/enclave-signer/interfaces"
)

// NewVerifier builds a verifier for a public key in the encoding the
// matching Signer's PublicKeyBytes returns.
func NewVerifier(algorithm string, publicKey []byte) (interfaces.Verifier, error) {
	switch algorithm {
	case interfaces.AlgorithmEd25519:
		return newEd25519Verifier(publicKey)
	case interfaces.AlgorithmECDSAP256, interfaces.AlgorithmECDSAP384:
		return newECDSAVerifier(algorithm, publicKey)
	case interfaces.AlgorithmSecp256k1:
		return newSecp256k1Verifier(publicKey)
	default:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnsupportedAlgorithm, algorithm)
	}
}

// VerifierFor builds a verifier for the current key of signer.
func VerifierFor(signer interfaces.Signer) (interfaces.Verifier, error) {
	pub, err := signer.PublicKeyBytes()
	if err != nil {
		return nil, err
	}
	return NewVerifier(signer.Algorithm(), pub)
}
