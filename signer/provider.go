package signer

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/ruteri/enclave-signer/protocol"
	"golang.org/x/sys/unix"
)

// streamProvider hands the enclave end of the controller's channel to the
// first request for SignerAddress. Every other request is refused.
type streamProvider struct {
	mu     sync.Mutex
	stream net.Conn
}

func (p *streamProvider) ConnectStream(addr string) (io.ReadWriteCloser, error) {
	if addr != protocol.SignerAddress {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrConnectionRefused, addr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil, fmt.Errorf("%w: %s already connected", interfaces.ErrConnectionRefused, addr)
	}
	s := p.stream
	p.stream = nil
	return s, nil
}

// release closes the enclave end if the enclave never claimed it, so the
// controller's reads see end of stream instead of blocking.
func (p *streamProvider) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
}

// socketPair returns the two connected ends of a private AF_UNIX stream socket.
func socketPair() (host, enclave net.Conn, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}

	host, err = fileConn(fds[0], "signer-host")
	if err != nil {
		unix.Close(fds[1])
		return nil, nil, err
	}
	enclave, err = fileConn(fds[1], "signer-enclave")
	if err != nil {
		host.Close()
		return nil, nil, err
	}
	return host, enclave, nil
}

func fileConn(fd int, name string) (net.Conn, error) {
	f := os.NewFile(uintptr(fd), name)
	defer f.Close()

	conn, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("wrapping %s: %w", name, err)
	}
	return conn, nil
}
