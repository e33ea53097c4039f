package enclave

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ruteri/enclave-signer/protocol"
	"github.com/ruteri/enclave-signer/sgx"
	"gopkg.in/yaml.v3"
)

var ErrInvalidImage = errors.New("invalid enclave image")

// Manifest describes an enclave image.
//
//	name: signer
//	isv_prod_id: 1
//	isv_svn: 2
//	mr_signer: 5151...51
//	binary: enclave-agent
//	connect: [signatory]
type Manifest struct {
	Name      string   `yaml:"name"`
	ISVProdID uint16   `yaml:"isv_prod_id"`
	ISVSVN    uint16   `yaml:"isv_svn"`
	MRSigner  string   `yaml:"mr_signer"`
	Debug     bool     `yaml:"debug"`
	Binary    string   `yaml:"binary,omitempty"`
	Connect   []string `yaml:"connect,omitempty"`
}

// Image is a loaded manifest together with the identity it measures to.
type Image struct {
	Path     string
	Manifest Manifest
	Identity sgx.Identity
}

// LoadImage reads the manifest at path. MRENCLAVE is the SHA-256 of the
// manifest bytes followed by the binary bytes, so changing either yields a
// different enclave identity and a different seal key.
func LoadImage(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", ErrInvalidImage, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("%w: manifest has no name", ErrInvalidImage)
	}
	if len(m.Connect) == 0 {
		m.Connect = []string{protocol.SignerAddress}
	}

	img := &Image{Path: path, Manifest: m}

	signer, err := hex.DecodeString(m.MRSigner)
	if err != nil || len(signer) != len(img.Identity.MRSigner) {
		return nil, fmt.Errorf("%w: mr_signer must be 32 hex-encoded bytes", ErrInvalidImage)
	}
	copy(img.Identity.MRSigner[:], signer)

	h := sha256.New()
	h.Write(raw)
	if m.Binary != "" {
		bin, err := os.ReadFile(img.BinaryPath())
		if err != nil {
			return nil, fmt.Errorf("%w: reading binary: %v", ErrInvalidImage, err)
		}
		h.Write(bin)
	}
	copy(img.Identity.MREnclave[:], h.Sum(nil))

	img.Identity.ISVProdID = m.ISVProdID
	img.Identity.ISVSVN = m.ISVSVN
	img.Identity.Attributes = sgx.Attributes{Flags: sgx.AttributeInit | sgx.AttributeMode64Bit, Xfrm: 0x3}
	if m.Debug {
		img.Identity.Attributes.Flags |= sgx.AttributeDebug
	}
	return img, nil
}

// BinaryPath resolves the manifest's binary relative to the manifest directory.
func (img *Image) BinaryPath() string {
	if img.Manifest.Binary == "" || filepath.IsAbs(img.Manifest.Binary) {
		return img.Manifest.Binary
	}
	return filepath.Join(filepath.Dir(img.Path), img.Manifest.Binary)
}
