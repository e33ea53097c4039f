package backends

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/ruteri/enclave-signer/interfaces"
)

// Ed25519Signer holds an Ed25519 key in process memory.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

func GenerateEd25519() (*Ed25519Signer, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 key: %w", err)
	}
	return &Ed25519Signer{key: key}, nil
}

func NewEd25519FromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Signer{key: ed25519.NewKeyFromSeed(seed)}, nil
}

func (s *Ed25519Signer) Algorithm() string { return interfaces.AlgorithmEd25519 }

func (s *Ed25519Signer) PublicKeyBytes() ([]byte, error) {
	return []byte(s.key.Public().(ed25519.PublicKey)), nil
}

func (s *Ed25519Signer) TrySign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.key, msg), nil
}

type ed25519Verifier struct {
	pub ed25519.PublicKey
}

func newEd25519Verifier(pub []byte) (*ed25519Verifier, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	return &ed25519Verifier{pub: ed25519.PublicKey(append([]byte(nil), pub...))}, nil
}

func (v *ed25519Verifier) Algorithm() string { return interfaces.AlgorithmEd25519 }

func (v *ed25519Verifier) Verify(msg, sig []byte) error {
	if !ed25519.Verify(v.pub, msg, sig) {
		return interfaces.ErrInvalidSignature
	}
	return nil
}
