package agent

import (
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/ruteri/enclave-signer/protocol"
	"github.com/ruteri/enclave-signer/sgx"
	siv "github.com/secure-io/siv-go"
)

// Seal requests bind to the exact enclave measurement. The masks keep the
// security-relevant attribute and misc bits in the derivation.
var (
	sealPolicy        = sgx.KeyPolicyMRENCLAVE
	sealAttributeMask = [2]uint64{0xFF0000000000000B, 0}
	sealMiscMask      = uint32(0xF0000000)
)

var errUnseal = errors.New("unseal")

// Seal encrypts the seed of key with AES-128-GCM-SIV under a seal key derived
// from the enclave identity. The public key is the key id of the request and,
// together with every other request field, is authenticated by the AEAD.
func Seal(hw Hardware, random io.Reader, key ed25519.PrivateKey) (protocol.SealedKeyData, error) {
	var sealed protocol.SealedKeyData

	report := hw.Report()
	req := sgx.KeyRequest{
		KeyName:       sgx.KeyNameSeal,
		KeyPolicy:     sealPolicy,
		ISVSVN:        report.ISVSVN,
		CPUSVN:        report.CPUSVN,
		AttributeMask: sealAttributeMask,
		MiscMask:      sealMiscMask,
	}
	copy(req.KeyID[:], key.Public().(ed25519.PublicKey))

	aad, err := req.MarshalBinary()
	if err != nil {
		return sealed, err
	}

	if _, err := io.ReadFull(random, sealed.Nonce[:]); err != nil {
		return sealed, fmt.Errorf("drawing nonce: %w", err)
	}

	seed := key.Seed()
	defer zeroize(seed)

	err = withSealCipher(hw, req, func(aead cipher.AEAD) error {
		sealed.SealedSecret = aead.Seal(nil, sealed.Nonce[:], seed, aad)
		return nil
	})
	if err != nil {
		return protocol.SealedKeyData{}, err
	}
	sealed.SealKeyRequest = protocol.KeyRequestFromHardware(req)
	return sealed, nil
}

// Unseal reverses Seal. It fails unless the seal key reproduced from the
// presented request opens the ciphertext and the recovered key matches the
// request's key id.
func Unseal(hw Hardware, sealed protocol.SealedKeyData) (ed25519.PrivateKey, error) {
	req, err := sealed.SealKeyRequest.Hardware()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnseal, err)
	}

	aad, err := req.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnseal, err)
	}

	var seed []byte
	err = withSealCipher(hw, req, func(aead cipher.AEAD) (err error) {
		seed, err = aead.Open(nil, sealed.Nonce[:], sealed.SealedSecret, aad)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnseal, err)
	}
	defer zeroize(seed)

	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: secret length %d", errUnseal, len(seed))
	}

	key := ed25519.NewKeyFromSeed(seed)
	if subtle.ConstantTimeCompare(key.Public().(ed25519.PublicKey), req.KeyID[:]) != 1 {
		zeroize(key)
		return nil, fmt.Errorf("%w: key id does not match sealed key", errUnseal)
	}
	return key, nil
}

// withSealCipher derives the seal key for req and runs fn with an
// AES-GCM-SIV AEAD under it. The key is wiped once fn returns.
func withSealCipher(hw Hardware, req sgx.KeyRequest, fn func(cipher.AEAD) error) error {
	sealKey, err := hw.GetKey(req)
	if err != nil {
		return fmt.Errorf("deriving seal key: %w", err)
	}
	defer zeroize(sealKey[:])

	aead, err := siv.NewGCM(sealKey[:])
	if err != nil {
		return err
	}
	return fn(aead)
}

func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
