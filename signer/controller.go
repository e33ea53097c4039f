package signer

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/ruteri/enclave-signer/metrics"
	"github.com/ruteri/enclave-signer/protocol"
)

var (
	// ErrLaunch wraps every failure to start an enclave.
	ErrLaunch = errors.New("enclave launch failed")

	// ErrShutdown is returned by every operation after Shutdown.
	ErrShutdown = errors.New("signer has been shut down")
)

// Controller drives one enclave agent over a private channel.
//
// Every operation is a single request/response exchange and blocks until the
// response arrives. Exchanges are serialized, so a Controller may be shared
// between goroutines. There is no timeout: a stuck enclave blocks the caller.
type Controller struct {
	mu     sync.Mutex
	conn   net.Conn
	codec  *protocol.Codec
	closed bool

	done   chan struct{}
	runErr error

	log *slog.Logger
}

// Launch loads the enclave image at path, wires its signer destination to a
// fresh private channel, and runs it on its own goroutine.
func Launch(path string, loader interfaces.EnclaveLoader, log *slog.Logger) (*Controller, error) {
	host, enclaveEnd, err := socketPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	provider := &streamProvider{stream: enclaveEnd}
	enc, err := loader.Load(path, provider)
	if err != nil {
		host.Close()
		enclaveEnd.Close()
		return nil, fmt.Errorf("%w: loading %s: %v", ErrLaunch, path, err)
	}

	c := &Controller{
		conn:  host,
		codec: protocol.NewCodec(host),
		done:  make(chan struct{}),
		log:   log,
	}

	go func() {
		defer close(c.done)
		c.runErr = enc.Run()
		provider.release()
		if c.runErr != nil {
			c.log.Error("Enclave exited with error", "err", c.runErr)
		}
	}()

	c.log.Info("Enclave launched", "path", path)
	return c, nil
}

// KeyGen asks the enclave to generate a key and returns it sealed.
func (c *Controller) KeyGen() (protocol.SealedKeyData, error) {
	resp, err := c.exchange(protocol.Request{Kind: protocol.RequestKeyGen}, protocol.ResponseKeyPair)
	if err != nil {
		return protocol.SealedKeyData{}, err
	}
	return *resp.Sealed, nil
}

// PublicKey returns the public half of the enclave's current key.
func (c *Controller) PublicKey() (protocol.PublicKey, error) {
	resp, err := c.exchange(protocol.Request{Kind: protocol.RequestGetPublicKey}, protocol.ResponsePublicKey)
	if err != nil {
		return protocol.PublicKey{}, err
	}
	return resp.PublicKey, nil
}

// Import restores a previously sealed key and returns its public key.
func (c *Controller) Import(sealed protocol.SealedKeyData) (protocol.PublicKey, error) {
	resp, err := c.exchange(protocol.Request{Kind: protocol.RequestImport, Sealed: &sealed}, protocol.ResponsePublicKey)
	if err != nil {
		return protocol.PublicKey{}, err
	}
	return resp.PublicKey, nil
}

// Sign returns the enclave's Ed25519 signature over msg.
func (c *Controller) Sign(msg []byte) (protocol.Signature, error) {
	resp, err := c.exchange(protocol.Request{Kind: protocol.RequestSign, Message: msg}, protocol.ResponseSigned)
	if err != nil {
		return protocol.Signature{}, err
	}
	return resp.Signature, nil
}

// Shutdown stops the enclave and waits for it to exit. It returns the
// enclave's exit error. The controller is unusable afterwards.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrShutdown
	}
	c.closed = true

	if err := c.codec.WriteRequest(protocol.Request{Kind: protocol.RequestShutdown}); err != nil {
		c.log.Warn("Could not deliver shutdown request", "err", err)
		// the agent exits on end of stream
		c.conn.Close()
	}

	<-c.done
	c.conn.Close()
	c.log.Info("Enclave stopped")
	return c.runErr
}

// Done is closed once the enclave has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) exchange(req protocol.Request, want protocol.ResponseKind) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return protocol.Response{}, ErrShutdown
	}

	start := time.Now()
	resp, err := c.roundTrip(req, want)

	outcome := "ok"
	var kind protocol.ErrorKind
	if errors.As(err, &kind) {
		outcome = kind.Label()
	}
	metrics.RecordExchange(req.Kind.String(), outcome, time.Since(start))

	if err != nil {
		c.log.Debug("Enclave exchange failed", "request", req.Kind.String(), "err", err)
	}
	return resp, err
}

func (c *Controller) roundTrip(req protocol.Request, want protocol.ResponseKind) (protocol.Response, error) {
	if err := c.codec.WriteRequest(req); err != nil {
		return protocol.Response{}, fmt.Errorf("%w: sending %s: %v", protocol.Unexpected, req.Kind, err)
	}

	resp, err := c.codec.ReadResponse()
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%w: reading %s response: %v", protocol.Unexpected, req.Kind, err)
	}

	if resp.Kind == protocol.ResponseError {
		return protocol.Response{}, resp.Err
	}
	if resp.Kind != want {
		return protocol.Response{}, fmt.Errorf("%w: got %s response to %s", protocol.Unexpected, resp.Kind, req.Kind)
	}
	return resp, nil
}
