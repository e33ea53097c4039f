package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/99designs/keyring"
	"github.com/ruteri/enclave-signer/interfaces"
)

// KeyringBackend stores content in the operating system keyring (Secret
// Service, keychain, or an encrypted file ring, whichever the platform offers).
type KeyringBackend struct {
	ring        keyring.Keyring
	service     string
	log         *slog.Logger
	locationURI string
}

// NewKeyringBackend opens the keyring for service.
func NewKeyringBackend(service string, log *slog.Logger) (*KeyringBackend, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return NewKeyringBackendWithRing(ring, service, log), nil
}

func NewKeyringBackendWithRing(ring keyring.Keyring, service string, log *slog.Logger) *KeyringBackend {
	return &KeyringBackend{
		ring:        ring,
		service:     service,
		log:         log,
		locationURI: fmt.Sprintf("keyring://%s", service),
	}
}

func keyringKey(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return contentType.String() + "/" + id.String()
}

func (b *KeyringBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	item, err := b.ring.Get(keyringKey(id, contentType))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item from keyring: %w", err)
	}
	return item.Data, nil
}

func (b *KeyringBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	err := b.ring.Set(keyring.Item{
		Key:         keyringKey(id, contentType),
		Data:        data,
		Label:       fmt.Sprintf("%s %s", b.service, contentType),
		Description: "enclave sealed signing key",
	})
	if err != nil {
		return id, fmt.Errorf("failed to store item in keyring: %w", err)
	}
	b.log.Debug("Stored content in keyring", slog.String("contentID", id.String()))
	return id, nil
}

// Available lists the ring's keys as a liveness probe.
func (b *KeyringBackend) Available(ctx context.Context) bool {
	if _, err := b.ring.Keys(); err != nil {
		b.log.Debug("Keyring unavailable", "err", err)
		return false
	}
	return true
}

func (b *KeyringBackend) Name() string {
	return fmt.Sprintf("keyring-%s", b.service)
}

func (b *KeyringBackend) LocationURI() string {
	return b.locationURI
}
