package sgx

import (
	"encoding/binary"
	"fmt"
)

// KeyName selects the class of key EGETKEY derives.
type KeyName uint16

const (
	KeyNameEInitToken KeyName = iota
	KeyNameProvision
	KeyNameProvisionSeal
	KeyNameReport
	KeyNameSeal
)

func (n KeyName) String() string {
	switch n {
	case KeyNameEInitToken:
		return "einittoken"
	case KeyNameProvision:
		return "provision"
	case KeyNameProvisionSeal:
		return "provision-seal"
	case KeyNameReport:
		return "report"
	case KeyNameSeal:
		return "seal"
	default:
		return fmt.Sprintf("keyname(%d)", uint16(n))
	}
}

// KeyPolicy selects which identity measurements a derived key is bound to.
type KeyPolicy uint16

const (
	KeyPolicyMRENCLAVE KeyPolicy = 1 << iota
	KeyPolicyMRSIGNER
	KeyPolicyNoISVProdID
	KeyPolicyConfigID
	KeyPolicyNoISVFamilyID
	KeyPolicyNoISVExtProdID
)

const keyPolicyMask = KeyPolicyMRENCLAVE | KeyPolicyMRSIGNER | KeyPolicyNoISVProdID |
	KeyPolicyConfigID | KeyPolicyNoISVFamilyID | KeyPolicyNoISVExtProdID

// Valid reports whether only defined policy bits are set.
func (p KeyPolicy) Valid() bool {
	return p&^keyPolicyMask == 0
}

func (p KeyPolicy) Has(bit KeyPolicy) bool {
	return p&bit != 0
}

// Attributes mirrors the SECS ATTRIBUTES field.
type Attributes struct {
	Flags uint64
	Xfrm  uint64
}

const (
	AttributeInit          uint64 = 0x1
	AttributeDebug         uint64 = 0x2
	AttributeMode64Bit     uint64 = 0x4
	AttributeProvisionKey  uint64 = 0x10
	AttributeEInitTokenKey uint64 = 0x20
)

// Identity is the measured identity of an enclave as recorded in its SECS.
type Identity struct {
	MREnclave  [32]byte
	MRSigner   [32]byte
	ISVProdID  uint16
	ISVSVN     uint16
	Attributes Attributes
	MiscSelect uint32
}

// Report is what an enclave learns about itself and the platform it runs on.
type Report struct {
	Identity
	CPUSVN [16]byte
}

// KeyRequest holds the EGETKEY parameters.
type KeyRequest struct {
	KeyName       KeyName
	KeyPolicy     KeyPolicy
	ISVSVN        uint16
	CPUSVN        [16]byte
	AttributeMask [2]uint64
	KeyID         [32]byte
	MiscMask      uint32
}

// KeyRequestSize is the length of the MarshalBinary encoding.
const KeyRequestSize = 2 + 2 + 2 + 16 + 16 + 32 + 4

// MarshalBinary returns the canonical little-endian encoding of the request.
// The encoding is stable and is used as key derivation context and as
// authenticated data by sealing code.
func (r KeyRequest) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, KeyRequestSize))
}

func (r KeyRequest) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint16(b, uint16(r.KeyName))
	b = binary.LittleEndian.AppendUint16(b, uint16(r.KeyPolicy))
	b = binary.LittleEndian.AppendUint16(b, r.ISVSVN)
	b = append(b, r.CPUSVN[:]...)
	b = binary.LittleEndian.AppendUint64(b, r.AttributeMask[0])
	b = binary.LittleEndian.AppendUint64(b, r.AttributeMask[1])
	b = append(b, r.KeyID[:]...)
	b = binary.LittleEndian.AppendUint32(b, r.MiscMask)
	return b, nil
}
