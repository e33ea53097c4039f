package signer

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/ruteri/enclave-signer/protocol"
	"github.com/ruteri/enclave-signer/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndStoreThenImport(t *testing.T) {
	ctx := context.Background()
	path := testImage(t)
	loader := testLoader(t)

	backend, err := storage.NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	first := launch(t, path, loader)
	id, pub, err := first.GenerateAndStore(ctx, backend)
	require.NoError(t, err)
	require.NoError(t, first.Shutdown())

	storedPub, err := backend.Fetch(ctx, interfaces.ComputeID(pub[:]), interfaces.PublicKeyType)
	require.NoError(t, err)
	assert.Equal(t, pub[:], storedPub)

	second := launch(t, path, loader)
	got, err := second.ImportStored(ctx, backend, id)
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	sig, err := second.Sign([]byte("hello"))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub[:], []byte("hello"), sig[:]))
}

func TestImportStoredErrors(t *testing.T) {
	ctx := context.Background()
	backend, err := storage.NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	c := launch(t, testImage(t), testLoader(t))

	_, err = c.ImportStored(ctx, backend, interfaces.ComputeID([]byte("absent")))
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	id, err := backend.Store(ctx, []byte("not a sealed record"), interfaces.SealedKeyType)
	require.NoError(t, err)
	_, err = c.ImportStored(ctx, backend, id)
	assert.ErrorIs(t, err, protocol.ErrMalformed)

	// a record sealed by another platform does not unseal here
	other := launch(t, testImage(t), testLoader(t))
	foreign, _, err := other.GenerateAndStore(ctx, backend)
	require.NoError(t, err)
	_, err = c.ImportStored(ctx, backend, foreign)
	assert.ErrorIs(t, err, protocol.UnsealFailed)
}
