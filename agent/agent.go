package agent

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/ruteri/enclave-signer/protocol"
	"github.com/ruteri/enclave-signer/sgx"
)

// Hardware is the enclave's view of the processor.
type Hardware interface {
	Report() sgx.Report
	GetKey(req sgx.KeyRequest) ([16]byte, error)
}

// Agent holds at most one Ed25519 key and serves requests for it.
type Agent struct {
	hw     Hardware
	random io.Reader
	log    *slog.Logger
}

// New returns an Agent with no key that seals through hw.
func New(hw Hardware, log *slog.Logger) *Agent {
	return &Agent{hw: hw, random: rand.Reader, log: log}
}

// keyState is Empty while key is nil and Keyed otherwise.
type keyState struct {
	key ed25519.PrivateKey
}

func (s keyState) keyed() bool {
	return s.key != nil
}

// Run connects to the signer destination through provider and serves it
// until Shutdown or a transport error.
func Run(provider interfaces.StreamProvider, hw Hardware, log *slog.Logger) error {
	stream, err := provider.ConnectStream(protocol.SignerAddress)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", protocol.SignerAddress, err)
	}
	return New(hw, log).Serve(stream)
}

// Serve processes requests from stream one at a time until Shutdown, end of
// stream, or a transport error. Frames that do not decode are skipped without
// a response. The stream is closed on return.
func (a *Agent) Serve(stream io.ReadWriteCloser) error {
	defer stream.Close()

	codec := protocol.NewCodec(stream)
	var state keyState
	defer func() {
		zeroize(state.key)
	}()

	for {
		req, err := codec.ReadRequest()
		if errors.Is(err, protocol.ErrMalformed) {
			a.log.Warn("Skipping malformed request", "err", err)
			continue
		}
		if errors.Is(err, io.EOF) {
			a.log.Info("Host closed the stream")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading request: %w", err)
		}

		if req.Kind == protocol.RequestShutdown {
			a.log.Info("Shutdown requested")
			return nil
		}

		var resp protocol.Response
		state, resp = a.handle(state, req)
		if err := codec.WriteResponse(resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
}

func (a *Agent) handle(state keyState, req protocol.Request) (keyState, protocol.Response) {
	log := a.log.With("request", req.Kind.String())

	switch req.Kind {
	case protocol.RequestKeyGen:
		if state.keyed() {
			return state, protocol.ErrorResponse(protocol.KeyAlreadySet)
		}
		_, key, err := ed25519.GenerateKey(a.random)
		if err != nil {
			log.Error("Key generation failed", "err", err)
			return state, protocol.ErrorResponse(protocol.SealFailed)
		}
		sealed, err := Seal(a.hw, a.random, key)
		if err != nil {
			zeroize(key)
			log.Error("Sealing failed", "err", err)
			return state, protocol.ErrorResponse(protocol.SealFailed)
		}
		log.Info("Generated signing key", "publicKey", fmt.Sprintf("%x", sealed.PublicKey()))
		return keyState{key: key}, protocol.Response{Kind: protocol.ResponseKeyPair, Sealed: &sealed}

	case protocol.RequestGetPublicKey:
		if !state.keyed() {
			return state, protocol.ErrorResponse(protocol.KeyNotSet)
		}
		return state, publicKeyResponse(state.key)

	case protocol.RequestImport:
		if state.keyed() {
			return state, protocol.ErrorResponse(protocol.KeyAlreadySet)
		}
		key, err := Unseal(a.hw, *req.Sealed)
		if err != nil {
			log.Warn("Rejected sealed key", "err", err)
			return state, protocol.ErrorResponse(protocol.UnsealFailed)
		}
		log.Info("Imported signing key", "publicKey", fmt.Sprintf("%x", req.Sealed.PublicKey()))
		return keyState{key: key}, publicKeyResponse(key)

	case protocol.RequestSign:
		if !state.keyed() {
			return state, protocol.ErrorResponse(protocol.KeyNotSet)
		}
		resp := protocol.Response{Kind: protocol.ResponseSigned}
		copy(resp.Signature[:], ed25519.Sign(state.key, req.Message))
		log.Debug("Signed message", "size", len(req.Message))
		return state, resp
	}

	// The codec only yields the kinds above.
	log.Error("Unhandled request kind")
	return state, protocol.ErrorResponse(protocol.Unexpected)
}

func publicKeyResponse(key ed25519.PrivateKey) protocol.Response {
	resp := protocol.Response{Kind: protocol.ResponsePublicKey}
	copy(resp.PublicKey[:], key.Public().(ed25519.PublicKey))
	return resp
}
