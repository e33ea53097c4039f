package signer

import (
	"crypto/ed25519"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ruteri/enclave-signer/backends"
	"github.com/ruteri/enclave-signer/enclave"
	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/ruteri/enclave-signer/protocol"
	"github.com/ruteri/enclave-signer/sgx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testImage(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "enclave.yaml")
	manifest := "name: signer\nisv_prod_id: 1\nisv_svn: 1\nmr_signer: 5151515151515151515151515151515151515151515151515151515151515151\n"
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))
	return path
}

func testLoader(t *testing.T) *enclave.SimLoader {
	platform, err := sgx.GeneratePlatform([16]byte{})
	require.NoError(t, err)
	return enclave.NewSimLoader(platform, testLogger())
}

func launch(t *testing.T, path string, loader interfaces.EnclaveLoader) *Controller {
	c, err := Launch(path, loader, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown() })
	return c
}

func TestEndToEndRelaunch(t *testing.T) {
	path := testImage(t)
	loader := testLoader(t)

	first := launch(t, path, loader)
	sealed, err := first.KeyGen()
	require.NoError(t, err)
	p1, err := first.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, sealed.PublicKey(), p1)
	require.NoError(t, first.Shutdown())

	// the sealed record survives persistence
	stored, err := sealed.MarshalBinary()
	require.NoError(t, err)
	var restored protocol.SealedKeyData
	require.NoError(t, restored.UnmarshalBinary(stored))

	second := launch(t, path, loader)
	p2, err := second.Import(restored)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	sig, err := second.Sign([]byte("hello"))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(p1[:], []byte("hello"), sig[:]))
	require.NoError(t, second.Shutdown())
}

func TestControllerPropagatesEnclaveErrors(t *testing.T) {
	c := launch(t, testImage(t), testLoader(t))

	_, err := c.PublicKey()
	assert.ErrorIs(t, err, protocol.KeyNotSet)
	_, err = c.Sign([]byte("m"))
	assert.ErrorIs(t, err, protocol.KeyNotSet)

	sealed, err := c.KeyGen()
	require.NoError(t, err)

	_, err = c.KeyGen()
	assert.ErrorIs(t, err, protocol.KeyAlreadySet)
	_, err = c.Import(sealed)
	assert.ErrorIs(t, err, protocol.KeyAlreadySet)

	pk1, err := c.PublicKey()
	require.NoError(t, err)
	pk2, err := c.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, pk1, pk2)
	assert.Equal(t, sealed.PublicKey(), pk1)
}

func TestControllerImportTampered(t *testing.T) {
	path := testImage(t)
	loader := testLoader(t)

	c := launch(t, path, loader)
	sealed, err := c.KeyGen()
	require.NoError(t, err)
	require.NoError(t, c.Shutdown())

	sealed.Nonce[0] ^= 0x80
	fresh := launch(t, path, loader)
	_, err = fresh.Import(sealed)
	assert.ErrorIs(t, err, protocol.UnsealFailed)

	_, err = fresh.PublicKey()
	assert.ErrorIs(t, err, protocol.KeyNotSet)
}

func TestControllerShutdown(t *testing.T) {
	c := launch(t, testImage(t), testLoader(t))
	_, err := c.KeyGen()
	require.NoError(t, err)

	require.NoError(t, c.Shutdown())
	<-c.Done()

	assert.ErrorIs(t, c.Shutdown(), ErrShutdown)
	_, err = c.Sign([]byte("late"))
	assert.ErrorIs(t, err, ErrShutdown)
	_, err = c.PublicKeyBytes()
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestControllerConcurrentSign(t *testing.T) {
	c := launch(t, testImage(t), testLoader(t))
	sealed, err := c.KeyGen()
	require.NoError(t, err)
	pub := sealed.PublicKey()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := []byte{byte(i)}
			sig, err := c.TrySign(msg)
			if err != nil {
				errs <- err
				return
			}
			if !ed25519.Verify(pub[:], msg, sig) {
				errs <- errors.New("signature does not verify")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestLaunchFailure(t *testing.T) {
	_, err := Launch(filepath.Join(t.TempDir(), "missing.yaml"), testLoader(t), testLogger())
	assert.ErrorIs(t, err, ErrLaunch)
}

// scriptedLoader runs fn as the enclave body.
type scriptedLoader struct {
	fn func(provider interfaces.StreamProvider) error
}

func (l scriptedLoader) Load(path string, provider interfaces.StreamProvider) (interfaces.Enclave, error) {
	return scriptedEnclave{fn: l.fn, provider: provider}, nil
}

type scriptedEnclave struct {
	fn       func(interfaces.StreamProvider) error
	provider interfaces.StreamProvider
}

func (e scriptedEnclave) Run() error { return e.fn(e.provider) }

func TestStreamProviderResolvesOnlySigner(t *testing.T) {
	results := make(chan error, 3)
	loader := scriptedLoader{fn: func(p interfaces.StreamProvider) error {
		_, err := p.ConnectStream("example.com:443")
		results <- err

		stream, err := p.ConnectStream(protocol.SignerAddress)
		results <- err
		if err != nil {
			return err
		}
		defer stream.Close()

		_, err = p.ConnectStream(protocol.SignerAddress)
		results <- err
		return nil
	}}

	c, err := Launch("ignored", loader, testLogger())
	require.NoError(t, err)
	<-c.Done()

	assert.ErrorIs(t, <-results, interfaces.ErrConnectionRefused)
	assert.NoError(t, <-results)
	assert.ErrorIs(t, <-results, interfaces.ErrConnectionRefused)
	assert.NoError(t, c.Shutdown())
}

func TestControllerUnexpectedResponses(t *testing.T) {
	// answers every request with a public key, then a garbage frame
	loader := scriptedLoader{fn: func(p interfaces.StreamProvider) error {
		stream, err := p.ConnectStream(protocol.SignerAddress)
		if err != nil {
			return err
		}
		defer stream.Close()

		codec := protocol.NewCodec(stream)
		if _, err := codec.ReadRequest(); err != nil {
			return err
		}
		if err := codec.WriteResponse(protocol.Response{Kind: protocol.ResponsePublicKey}); err != nil {
			return err
		}
		if _, err := codec.ReadRequest(); err != nil {
			return err
		}
		if err := codec.WriteFrame([]byte{0xff}); err != nil {
			return err
		}
		_, err = codec.ReadRequest()
		return err
	}}

	c := launch(t, "ignored", loader)

	_, err := c.KeyGen()
	assert.ErrorIs(t, err, protocol.Unexpected)
	_, err = c.Sign([]byte("m"))
	assert.ErrorIs(t, err, protocol.Unexpected)
	require.NoError(t, c.Shutdown())
}

func TestControllerEnclaveNeverConnects(t *testing.T) {
	c := launch(t, "ignored", scriptedLoader{fn: func(interfaces.StreamProvider) error {
		return nil
	}})
	<-c.Done()

	_, err := c.PublicKey()
	assert.ErrorIs(t, err, protocol.Unexpected)
}

func TestControllerAsSigner(t *testing.T) {
	c := launch(t, testImage(t), testLoader(t))
	_, err := c.KeyGen()
	require.NoError(t, err)

	software, err := backends.GenerateEd25519()
	require.NoError(t, err)

	for _, s := range []interfaces.Signer{c, software} {
		verifier, err := backends.VerifierFor(s)
		require.NoError(t, err)
		assert.Equal(t, interfaces.AlgorithmEd25519, verifier.Algorithm())

		sig, err := s.TrySign([]byte("payload"))
		require.NoError(t, err)
		assert.NoError(t, verifier.Verify([]byte("payload"), sig))
	}
}
