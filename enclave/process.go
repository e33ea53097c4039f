package enclave

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ruteri/enclave-signer/interfaces"
)

// Environment handed to enclave processes.
const (
	EnvStreams  = "ENCLAVE_STREAMS"
	EnvManifest = "ENCLAVE_MANIFEST"
	EnvPlatform = "ENCLAVE_PLATFORM"
)

// ProcessLoader runs an image's binary as a child process. Every destination
// the manifest connects to is resolved through the provider before the child
// starts and handed over as an inherited socket.
type ProcessLoader struct {
	PlatformPath string
	Stdout       io.Writer
	Stderr       io.Writer
	Log          *slog.Logger
}

func (l *ProcessLoader) Load(path string, provider interfaces.StreamProvider) (interfaces.Enclave, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	if img.Manifest.Binary == "" {
		return nil, fmt.Errorf("%w: manifest %s has no binary", ErrInvalidImage, path)
	}
	if _, err := os.Stat(img.BinaryPath()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return &processEnclave{
		img:      img,
		loader:   l,
		provider: provider,
		log:      l.Log.With("enclave", img.Manifest.Name, "mrenclave", shortHex(img.Identity.MREnclave[:])),
	}, nil
}

type processEnclave struct {
	img      *Image
	loader   *ProcessLoader
	provider interfaces.StreamProvider
	log      *slog.Logger
}

// filer is implemented by *net.UnixConn and *os.File.
type filer interface {
	File() (*os.File, error)
}

func (e *processEnclave) Run() error {
	var (
		files   []*os.File
		streams []string
	)
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	for _, addr := range e.img.Manifest.Connect {
		stream, err := e.provider.ConnectStream(addr)
		if errors.Is(err, interfaces.ErrConnectionRefused) {
			e.log.Warn("Destination refused", "addr", addr)
			continue
		}
		if err != nil {
			return fmt.Errorf("connecting %s: %w", addr, err)
		}

		f, err := streamFile(stream)
		stream.Close()
		if err != nil {
			return fmt.Errorf("passing %s to enclave: %w", addr, err)
		}
		// ExtraFiles start at descriptor 3
		streams = append(streams, fmt.Sprintf("%s=%d", addr, 3+len(files)))
		files = append(files, f)
	}

	cmd := exec.Command(e.img.BinaryPath())
	cmd.Stdout = e.loader.Stdout
	cmd.Stderr = e.loader.Stderr
	cmd.ExtraFiles = files
	cmd.Env = append(os.Environ(),
		EnvStreams+"="+strings.Join(streams, ","),
		EnvManifest+"="+e.img.Path,
		EnvPlatform+"="+e.loader.PlatformPath,
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting enclave process: %w", err)
	}
	e.log.Info("Started enclave process", "pid", cmd.Process.Pid)

	// the child holds its own copies now
	for _, f := range files {
		f.Close()
	}
	files = nil

	err := cmd.Wait()
	e.log.Info("Enclave process exited", "err", err)
	return err
}

func streamFile(stream io.ReadWriteCloser) (*os.File, error) {
	f, ok := stream.(filer)
	if !ok {
		return nil, fmt.Errorf("stream of type %T cannot be inherited", stream)
	}
	return f.File()
}

// InheritedStreams resolves destinations to sockets inherited from the
// parent. It is the stream provider of an enclave process.
type InheritedStreams struct {
	fds map[string]int
}

// StreamsFromEnv parses EnvStreams ("name=fd,name=fd").
func StreamsFromEnv() (*InheritedStreams, error) {
	s := &InheritedStreams{fds: make(map[string]int)}
	value := os.Getenv(EnvStreams)
	if value == "" {
		return s, nil
	}
	for _, entry := range strings.Split(value, ",") {
		name, fdStr, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid %s entry %q", EnvStreams, entry)
		}
		fd, err := strconv.Atoi(fdStr)
		if err != nil || fd < 3 {
			return nil, fmt.Errorf("invalid descriptor in %s entry %q", EnvStreams, entry)
		}
		s.fds[name] = fd
	}
	return s, nil
}

// ConnectStream hands out each inherited stream once.
func (s *InheritedStreams) ConnectStream(addr string) (io.ReadWriteCloser, error) {
	fd, ok := s.fds[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrConnectionRefused, addr)
	}
	delete(s.fds, addr)
	return os.NewFile(uintptr(fd), addr), nil
}

func shortHex(b []byte) string {
	return hex.EncodeToString(b[:8])
}
