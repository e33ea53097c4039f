package backends

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/enclave-signer/interfaces"
)

// Secp256k1Signer signs SHA-256 digests with a secp256k1 key. Signatures
// are 64-byte r||s, public keys 33-byte compressed points.
type Secp256k1Signer struct {
	key *ecdsa.PrivateKey
}

func GenerateSecp256k1() (*Secp256k1Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating secp256k1 key: %w", err)
	}
	return &Secp256k1Signer{key: key}, nil
}

func NewSecp256k1FromHex(hexkey string) (*Secp256k1Signer, error) {
	key, err := crypto.HexToECDSA(hexkey)
	if err != nil {
		return nil, fmt.Errorf("parsing secp256k1 key: %w", err)
	}
	return &Secp256k1Signer{key: key}, nil
}

func (s *Secp256k1Signer) Algorithm() string { return interfaces.AlgorithmSecp256k1 }

func (s *Secp256k1Signer) PublicKeyBytes() ([]byte, error) {
	return crypto.CompressPubkey(&s.key.PublicKey), nil
}

func (s *Secp256k1Signer) TrySign(msg []byte) ([]byte, error) {
	hash := sha256.Sum256(msg)
	sig, err := crypto.Sign(hash[:], s.key)
	if err != nil {
		return nil, err
	}
	// drop the recovery id
	return sig[:crypto.RecoveryIDOffset], nil
}

type secp256k1Verifier struct {
	pub []byte
}

func newSecp256k1Verifier(pub []byte) (*secp256k1Verifier, error) {
	key, err := crypto.DecompressPubkey(pub)
	if err != nil {
		return nil, fmt.Errorf("parsing secp256k1 public key: %w", err)
	}
	return &secp256k1Verifier{pub: crypto.FromECDSAPub(key)}, nil
}

func (v *secp256k1Verifier) Algorithm() string { return interfaces.AlgorithmSecp256k1 }

func (v *secp256k1Verifier) Verify(msg, sig []byte) error {
	hash := sha256.Sum256(msg)
	if len(sig) != crypto.RecoveryIDOffset || !crypto.VerifySignature(v.pub, hash[:], sig) {
		return interfaces.ErrInvalidSignature
	}
	return nil
}
