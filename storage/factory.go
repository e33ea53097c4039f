package storage

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/enclave-signer/interfaces"
)

// StorageBackendFactory creates storage backends from parsed location URIs.
type StorageBackendFactory struct {
	log *slog.Logger
}

func NewStorageBackendFactory(log *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{log: log}
}

// StorageBackendFor creates a backend for location.
//
// Supported schemes:
//   - file:///abs/path or file://./rel/path
//   - s3://[ACCESS:SECRET@]bucket/prefix?region=us-east-1&endpoint=host
//   - ipfs://host:port/root?timeout=30s
//   - vault://[TOKEN@]host:port/mount/path?tls=true
//   - keyring://service
func (sf *StorageBackendFactory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating storage backend", slog.String("uri", location.String()))

	switch {
	case location.IsFile():
		return sf.createFileBackend(location)
	case location.IsS3():
		return sf.createS3Backend(location)
	case location.IsIPFS():
		return sf.createIPFSBackend(location)
	case location.IsVault():
		return sf.createVaultBackend(location)
	case location.IsKeyring():
		return sf.createKeyringBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a replicated backend over every location that
// yields a valid backend. The replica requirement is taken from the
// min_replicas query parameter of the first location, defaulting to one.
func (sf *StorageBackendFactory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locations))
	minReplicas := 1

	for i, location := range locations {
		backend, err := sf.StorageBackendFor(location)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", location.String()))
			continue
		}
		if i == 0 {
			if n, err := strconv.Atoi(location.GetParam("min_replicas")); err == nil {
				minReplicas = n
			}
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}

	return NewMultiStorageBackend(backends, sf.log).WithMinReplicas(minReplicas), nil
}

func (sf *StorageBackendFactory) createFileBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, location)
	}
	return NewFileBackend(path, sf.log)
}

func (sf *StorageBackendFactory) createS3Backend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	if location.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in %s", interfaces.ErrInvalidLocationURI, location)
	}

	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if location.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(location.Auth, ":")
		sf.log.Debug("Using embedded S3 credentials")
	}

	return NewS3Backend(location.Host, strings.TrimPrefix(location.Path, "/"), region,
		location.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

func (sf *StorageBackendFactory) createIPFSBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	host, port, ok := strings.Cut(location.Host, ":")
	if !ok || port == "" {
		port = "5001"
	}
	if host == "" {
		host = "localhost"
	}

	timeout := 30 * time.Second
	if raw := location.GetParam("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = parsed
	}

	return NewIPFSBackend(host, port, location.Path, timeout, sf.log)
}

func (sf *StorageBackendFactory) createVaultBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	mount, path, _ := strings.Cut(strings.Trim(location.Path, "/"), "/")
	if mount == "" {
		mount = "secret"
	}
	if path == "" {
		path = "enclave-signer"
	}

	scheme := "https"
	if raw := location.GetParam("tls"); raw != "" && !location.GetParamBool("tls") {
		scheme = "http"
	}

	return NewVaultBackend(fmt.Sprintf("%s://%s", scheme, location.Host), mount, path, location.Auth, sf.log)
}

func (sf *StorageBackendFactory) createKeyringBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	service := location.Host
	if service == "" {
		service = "enclave-signer"
	}
	return NewKeyringBackend(service, sf.log)
}
