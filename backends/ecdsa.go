package backends

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"fmt"

	"github.com/ruteri/enclave-signer/interfaces"
)

// ECDSASigner signs with a NIST curve key. P-256 hashes with SHA-256 and
// P-384 with SHA-384. Signatures are ASN.1 DER, public keys PKIX DER.
type ECDSASigner struct {
	key       *ecdsa.PrivateKey
	algorithm string
	hash      crypto.Hash
}

func GenerateECDSA(algorithm string) (*ECDSASigner, error) {
	curve, hash, err := curveFor(algorithm)
	if err != nil {
		return nil, err
	}
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating %s key: %w", algorithm, err)
	}
	return &ECDSASigner{key: key, algorithm: algorithm, hash: hash}, nil
}

func curveFor(algorithm string) (elliptic.Curve, crypto.Hash, error) {
	switch algorithm {
	case interfaces.AlgorithmECDSAP256:
		return elliptic.P256(), crypto.SHA256, nil
	case interfaces.AlgorithmECDSAP384:
		return elliptic.P384(), crypto.SHA384, nil
	default:
		return nil, 0, fmt.Errorf("%w: %s", interfaces.ErrUnsupportedAlgorithm, algorithm)
	}
}

func digest(hash crypto.Hash, msg []byte) []byte {
	h := hash.New()
	h.Write(msg)
	return h.Sum(nil)
}

func (s *ECDSASigner) Algorithm() string { return s.algorithm }

func (s *ECDSASigner) PublicKeyBytes() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(&s.key.PublicKey)
}

func (s *ECDSASigner) TrySign(msg []byte) ([]byte, error) {
	return ecdsa.SignASN1(rand.Reader, s.key, digest(s.hash, msg))
}

type ecdsaVerifier struct {
	pub       *ecdsa.PublicKey
	algorithm string
	hash      crypto.Hash
}

func newECDSAVerifier(algorithm string, der []byte) (*ecdsaVerifier, error) {
	curve, hash, err := curveFor(algorithm)
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing %s public key: %w", algorithm, err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok || pub.Curve != curve {
		return nil, fmt.Errorf("public key is not a %s key", algorithm)
	}
	return &ecdsaVerifier{pub: pub, algorithm: algorithm, hash: hash}, nil
}

func (v *ecdsaVerifier) Algorithm() string { return v.algorithm }

func (v *ecdsaVerifier) Verify(msg, sig []byte) error {
	if !ecdsa.VerifyASN1(v.pub, digest(v.hash, msg), sig) {
		return interfaces.ErrInvalidSignature
	}
	return nil
}
