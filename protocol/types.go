package protocol

import (
	"fmt"

	"github.com/ruteri/enclave-signer/sgx"
)

// SignerAddress is the destination an enclave agent connects to.
// It is the only name the host's stream provider resolves.
const SignerAddress = "signatory"

const (
	PublicKeySize = 32
	SignatureSize = 64
	NonceSize     = 12
)

// PublicKey is an Ed25519 public key. It doubles as the key id of a seal request.
type PublicKey [PublicKeySize]byte

// Signature is an Ed25519 signature.
type Signature [SignatureSize]byte

// KeyRequest is the serializable mirror of sgx.KeyRequest.
type KeyRequest struct {
	KeyName       uint16
	KeyPolicy     uint16
	ISVSVN        uint16
	CPUSVN        [16]byte
	AttributeMask [2]uint64
	KeyID         [32]byte
	MiscMask      uint32
}

// KeyRequestFromHardware mirrors a hardware key request.
func KeyRequestFromHardware(r sgx.KeyRequest) KeyRequest {
	return KeyRequest{
		KeyName:       uint16(r.KeyName),
		KeyPolicy:     uint16(r.KeyPolicy),
		ISVSVN:        r.ISVSVN,
		CPUSVN:        r.CPUSVN,
		AttributeMask: r.AttributeMask,
		KeyID:         r.KeyID,
		MiscMask:      r.MiscMask,
	}
}

// Hardware converts the mirror back into a hardware key request.
// It fails if the policy carries bits the hardware does not define.
func (r KeyRequest) Hardware() (sgx.KeyRequest, error) {
	policy := sgx.KeyPolicy(r.KeyPolicy)
	if !policy.Valid() {
		return sgx.KeyRequest{}, fmt.Errorf("%w: %#x", sgx.ErrInvalidKeyPolicy, r.KeyPolicy)
	}
	return sgx.KeyRequest{
		KeyName:       sgx.KeyName(r.KeyName),
		KeyPolicy:     policy,
		ISVSVN:        r.ISVSVN,
		CPUSVN:        r.CPUSVN,
		AttributeMask: r.AttributeMask,
		KeyID:         r.KeyID,
		MiscMask:      r.MiscMask,
	}, nil
}

// SealedKeyData is a signing key sealed to an enclave identity. It is stored
// by the host and replayed with an Import request after a restart.
type SealedKeyData struct {
	SealKeyRequest KeyRequest
	Nonce          [NonceSize]byte
	SealedSecret   []byte
}

// PublicKey returns the public key the sealed secret belongs to.
func (s SealedKeyData) PublicKey() PublicKey {
	return PublicKey(s.SealKeyRequest.KeyID)
}

// MarshalBinary returns the persisted form of s, the same encoding used on the wire.
func (s SealedKeyData) MarshalBinary() ([]byte, error) {
	return encMode.Marshal(sealedToWire(s))
}

// UnmarshalBinary decodes the form written by MarshalBinary. Decoding
// failures wrap ErrMalformed.
func (s *SealedKeyData) UnmarshalBinary(data []byte) error {
	var w sealedWire
	if err := decMode.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	sealed, err := w.sealed()
	if err != nil {
		return err
	}
	*s = sealed
	return nil
}

type RequestKind uint8

const (
	RequestKeyGen RequestKind = iota + 1
	RequestGetPublicKey
	RequestImport
	RequestSign
	RequestShutdown
)

func (k RequestKind) String() string {
	switch k {
	case RequestKeyGen:
		return "keygen"
	case RequestGetPublicKey:
		return "get_public_key"
	case RequestImport:
		return "import"
	case RequestSign:
		return "sign"
	case RequestShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("request(%d)", uint8(k))
	}
}

// Request is sent by the host to the agent. Sealed is set for RequestImport,
// Message for RequestSign.
type Request struct {
	Kind    RequestKind
	Sealed  *SealedKeyData
	Message []byte
}

type ResponseKind uint8

const (
	ResponseKeyPair ResponseKind = iota + 1
	ResponsePublicKey
	ResponseSigned
	ResponseError
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseKeyPair:
		return "keypair"
	case ResponsePublicKey:
		return "public_key"
	case ResponseSigned:
		return "signed"
	case ResponseError:
		return "error"
	default:
		return fmt.Sprintf("response(%d)", uint8(k))
	}
}

// Response is sent by the agent for every request except Shutdown and
// requests it could not decode. Exactly one payload field matching Kind is set.
type Response struct {
	Kind      ResponseKind
	Sealed    *SealedKeyData
	PublicKey PublicKey
	Signature Signature
	Err       ErrorKind
}

// ErrorResponse builds the Error variant carrying kind.
func ErrorResponse(kind ErrorKind) Response {
	return Response{Kind: ResponseError, Err: kind}
}
