package interfaces

import (
	"errors"
	"io"
)

// ErrConnectionRefused is returned by a StreamProvider for destinations it does not serve.
var ErrConnectionRefused = errors.New("connection refused")

// StreamProvider resolves the named connection requests an enclave makes.
// A host wires one of these into the enclave runtime so that an enclave's
// "connect to X" call lands on a channel the host controls instead of the network.
type StreamProvider interface {
	// ConnectStream returns a connected duplex stream for addr or refuses
	// with ErrConnectionRefused.
	ConnectStream(addr string) (io.ReadWriteCloser, error)
}

// Enclave is a loaded enclave image ready to execute.
type Enclave interface {
	// Run executes the enclave to completion. It blocks until the enclave exits.
	Run() error
}

// EnclaveLoader loads an enclave image and binds it to a stream provider.
type EnclaveLoader interface {
	Load(path string, provider StreamProvider) (Enclave, error)
}
