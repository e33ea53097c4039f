package interfaces

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrContentNotFound means every consulted backend answered and none holds the content.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable means a backend could not be reached or failed to answer.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI means a backend URI did not parse or names an unknown scheme.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// ContentID addresses a stored blob by the SHA-256 of its bytes.
type ContentID [32]byte

// ComputeID hashes data into its content address.
func ComputeID(data []byte) ContentID {
	return sha256.Sum256(data)
}

// NewContentIDFromHex parses a 64-digit hex id, with or without a 0x prefix.
func NewContentIDFromHex(s string) (ContentID, error) {
	var id ContentID
	digits := strings.TrimPrefix(s, "0x")
	if len(digits) != hex.EncodedLen(len(id)) {
		return id, fmt.Errorf("content id %q: want %d hex digits", s, hex.EncodedLen(len(id)))
	}
	if _, err := hex.Decode(id[:], []byte(digits)); err != nil {
		return ContentID{}, fmt.Errorf("content id %q: %w", s, err)
	}
	return id, nil
}

func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ContentID) Equal(other ContentID) bool {
	return bytes.Equal(id[:], other[:])
}

// ContentType selects the namespace a blob is stored under.
type ContentType int

const (
	// SealedKeyType holds encoded SealedKeyData records.
	SealedKeyType ContentType = iota
	// PublicKeyType holds the public half of a sealed key for operator lookup.
	PublicKeyType
)

func (ct ContentType) String() string {
	switch ct {
	case SealedKeyType:
		return "sealed"
	case PublicKeyType:
		return "pubkey"
	default:
		return "unknown"
	}
}

var locationSchemes = map[string]bool{
	"file":    true,
	"s3":      true,
	"ipfs":    true,
	"vault":   true,
	"keyring": true,
}

// StorageBackendLocation is a parsed backend URI of the form
// scheme://[auth@]host[:port][/path][?params].
type StorageBackendLocation struct {
	Raw    string
	Scheme string
	Host   string
	Path   string
	Query  url.Values
	// Auth is the userinfo part, e.g. an S3 key pair or a Vault token.
	Auth string
}

// NewStorageBackendLocation parses uri and rejects schemes no backend serves.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}
	if !locationSchemes[u.Scheme] {
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, u.Scheme)
	}

	loc := StorageBackendLocation{
		Raw:    uri,
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   u.Path,
		Query:  u.Query(),
	}
	if u.User != nil {
		loc.Auth = u.User.String()
	}
	return loc, nil
}

func (loc StorageBackendLocation) String() string { return loc.Raw }

func (loc StorageBackendLocation) IsFile() bool    { return loc.Scheme == "file" }
func (loc StorageBackendLocation) IsS3() bool      { return loc.Scheme == "s3" }
func (loc StorageBackendLocation) IsIPFS() bool    { return loc.Scheme == "ipfs" }
func (loc StorageBackendLocation) IsVault() bool   { return loc.Scheme == "vault" }
func (loc StorageBackendLocation) IsKeyring() bool { return loc.Scheme == "keyring" }

// GetParam returns the query parameter name, or "" if absent.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool reports whether the query parameter name is true, 1 or yes.
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	switch loc.Query.Get(name) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// StorageBackend stores blobs by content address. Implementations return
// ErrContentNotFound for a missing id and wrap ErrBackendUnavailable for
// transport or service failures.
type StorageBackend interface {
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)
	// Store writes data and returns ComputeID(data).
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)
	Available(ctx context.Context) bool
	// Name identifies the backend in logs.
	Name() string
	LocationURI() string
}
