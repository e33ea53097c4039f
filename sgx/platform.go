package sgx

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidKeyName   = errors.New("unsupported key name")
	ErrInvalidKeyPolicy = errors.New("invalid key policy bits")
	ErrInvalidISVSVN    = errors.New("requested ISVSVN exceeds enclave ISVSVN")
	ErrInvalidCPUSVN    = errors.New("requested CPUSVN exceeds platform CPUSVN")
)

const platformFileSize = 32 + 16

// Platform simulates the per-CPU root secret EGETKEY derives enclave keys from.
// Keys derived on one Platform cannot be reproduced on another.
type Platform struct {
	root   [32]byte
	cpusvn [16]byte
}

func NewPlatform(root [32]byte, cpusvn [16]byte) *Platform {
	return &Platform{root: root, cpusvn: cpusvn}
}

// GeneratePlatform creates a platform with a fresh random root secret.
func GeneratePlatform(cpusvn [16]byte) (*Platform, error) {
	p := &Platform{cpusvn: cpusvn}
	if _, err := io.ReadFull(rand.Reader, p.root[:]); err != nil {
		return nil, fmt.Errorf("generating platform root: %w", err)
	}
	return p, nil
}

// LoadOrCreatePlatform reads the platform state from path, creating it if the
// file does not exist. Sealed keys survive restarts only as long as this file does.
func LoadOrCreatePlatform(path string) (*Platform, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		p, err := GeneratePlatform([16]byte{})
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating platform directory: %w", err)
		}
		if err := os.WriteFile(path, p.marshal(), 0600); err != nil {
			return nil, fmt.Errorf("writing platform file: %w", err)
		}
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading platform file: %w", err)
	}
	if len(data) != platformFileSize {
		return nil, fmt.Errorf("platform file %s: expected %d bytes, got %d", path, platformFileSize, len(data))
	}

	p := &Platform{}
	copy(p.root[:], data[:32])
	copy(p.cpusvn[:], data[32:])
	return p, nil
}

func (p *Platform) marshal() []byte {
	return append(append(make([]byte, 0, platformFileSize), p.root[:]...), p.cpusvn[:]...)
}

func (p *Platform) CPUSVN() [16]byte {
	return p.cpusvn
}

// Enclave binds an enclave identity to the platform.
func (p *Platform) Enclave(id Identity) *Enclave {
	return &Enclave{platform: p, id: id}
}

// Enclave is the hardware view of one running enclave: it can report its own
// identity and derive keys bound to it.
type Enclave struct {
	platform *Platform
	id       Identity
}

func (e *Enclave) Report() Report {
	return Report{Identity: e.id, CPUSVN: e.platform.cpusvn}
}

// GetKey derives a 128-bit key for req the way EGETKEY does: the key depends
// on the request itself, the platform root, and the identity fields the key
// policy selects.
func (e *Enclave) GetKey(req KeyRequest) ([16]byte, error) {
	var key [16]byte

	if req.KeyName != KeyNameSeal {
		return key, fmt.Errorf("%w: %s", ErrInvalidKeyName, req.KeyName)
	}
	if !req.KeyPolicy.Valid() {
		return key, fmt.Errorf("%w: %#x", ErrInvalidKeyPolicy, uint16(req.KeyPolicy))
	}
	if req.ISVSVN > e.id.ISVSVN {
		return key, fmt.Errorf("%w: %d > %d", ErrInvalidISVSVN, req.ISVSVN, e.id.ISVSVN)
	}
	for i := range req.CPUSVN {
		if req.CPUSVN[i] > e.platform.cpusvn[i] {
			return key, ErrInvalidCPUSVN
		}
	}

	info, err := e.derivationContext(req)
	if err != nil {
		return key, err
	}

	kdf := hkdf.New(sha256.New, e.platform.root[:], nil, info)
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return key, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

func (e *Enclave) derivationContext(req KeyRequest) ([]byte, error) {
	info := []byte("sgx-sim egetkey v1")
	info, err := req.AppendBinary(info)
	if err != nil {
		return nil, err
	}

	var zero [32]byte
	if req.KeyPolicy.Has(KeyPolicyMRENCLAVE) {
		info = append(info, e.id.MREnclave[:]...)
	} else {
		info = append(info, zero[:]...)
	}
	if req.KeyPolicy.Has(KeyPolicyMRSIGNER) {
		info = append(info, e.id.MRSigner[:]...)
	} else {
		info = append(info, zero[:]...)
	}

	var prodID uint16
	if !req.KeyPolicy.Has(KeyPolicyNoISVProdID) {
		prodID = e.id.ISVProdID
	}
	info = binary.LittleEndian.AppendUint16(info, prodID)
	info = binary.LittleEndian.AppendUint64(info, e.id.Attributes.Flags&req.AttributeMask[0])
	info = binary.LittleEndian.AppendUint64(info, e.id.Attributes.Xfrm&req.AttributeMask[1])
	info = binary.LittleEndian.AppendUint32(info, e.id.MiscSelect&req.MiscMask)
	return info, nil
}
