package signer

import (
	"context"
	"fmt"

	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/ruteri/enclave-signer/protocol"
)

// GenerateAndStore asks the enclave for a new key and stores the sealed
// record and its public key in backend. It returns the sealed record's
// content ID, which ImportStored takes on a later launch.
func (c *Controller) GenerateAndStore(ctx context.Context, backend interfaces.StorageBackend) (interfaces.ContentID, protocol.PublicKey, error) {
	sealed, err := c.KeyGen()
	if err != nil {
		return interfaces.ContentID{}, protocol.PublicKey{}, err
	}

	record, err := sealed.MarshalBinary()
	if err != nil {
		return interfaces.ContentID{}, protocol.PublicKey{}, fmt.Errorf("encoding sealed key: %w", err)
	}

	id, err := backend.Store(ctx, record, interfaces.SealedKeyType)
	if err != nil {
		return id, protocol.PublicKey{}, fmt.Errorf("storing sealed key: %w", err)
	}

	pub := sealed.PublicKey()
	if _, err := backend.Store(ctx, pub[:], interfaces.PublicKeyType); err != nil {
		// the sealed record is what matters; the public key is derivable from it
		c.log.Warn("Could not store public key", "err", err)
	}

	c.log.Info("Stored sealed key", "contentID", id.String(), "backend", backend.Name())
	return id, pub, nil
}

// ImportStored fetches the sealed record id from backend and imports it.
func (c *Controller) ImportStored(ctx context.Context, backend interfaces.StorageBackend, id interfaces.ContentID) (protocol.PublicKey, error) {
	record, err := backend.Fetch(ctx, id, interfaces.SealedKeyType)
	if err != nil {
		return protocol.PublicKey{}, fmt.Errorf("fetching sealed key %s: %w", id, err)
	}

	var sealed protocol.SealedKeyData
	if err := sealed.UnmarshalBinary(record); err != nil {
		return protocol.PublicKey{}, fmt.Errorf("decoding sealed key %s: %w", id, err)
	}

	pub, err := c.Import(sealed)
	if err != nil {
		return protocol.PublicKey{}, err
	}

	c.log.Info("Imported sealed key", "contentID", id.String(), "backend", backend.Name())
	return pub, nil
}
