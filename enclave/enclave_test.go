package enclave

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/ruteri/enclave-signer/protocol"
	"github.com/ruteri/enclave-signer/sgx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const testSigner = "5151515151515151515151515151515151515151515151515151515151515151"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeManifest(t *testing.T, dir, body string) string {
	path := filepath.Join(dir, "enclave.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "name: signer\nisv_prod_id: 3\nisv_svn: 2\nmr_signer: "+testSigner+"\n")

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, "signer", img.Manifest.Name)
	assert.Equal(t, []string{protocol.SignerAddress}, img.Manifest.Connect)
	assert.Equal(t, uint16(3), img.Identity.ISVProdID)
	assert.Equal(t, uint16(2), img.Identity.ISVSVN)
	assert.Equal(t, byte(0x51), img.Identity.MRSigner[0])
	assert.Zero(t, img.Identity.Attributes.Flags&sgx.AttributeDebug)

	again, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, img.Identity, again.Identity)

	debug := writeManifest(t, t.TempDir(), "name: signer\nisv_prod_id: 3\nisv_svn: 2\ndebug: true\nmr_signer: "+testSigner+"\n")
	debugImg, err := LoadImage(debug)
	require.NoError(t, err)
	assert.NotZero(t, debugImg.Identity.Attributes.Flags&sgx.AttributeDebug)
	assert.NotEqual(t, img.Identity.MREnclave, debugImg.Identity.MREnclave)
}

func TestLoadImageMeasuresBinary(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "agent.bin")
	require.NoError(t, os.WriteFile(bin, []byte("v1"), 0755))
	path := writeManifest(t, dir, "name: signer\nbinary: agent.bin\nmr_signer: "+testSigner+"\n")

	v1, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, bin, v1.BinaryPath())

	require.NoError(t, os.WriteFile(bin, []byte("v2"), 0755))
	v2, err := LoadImage(path)
	require.NoError(t, err)
	assert.NotEqual(t, v1.Identity.MREnclave, v2.Identity.MREnclave)
}

func TestLoadImageErrors(t *testing.T) {
	tests := map[string]string{
		"no name":         "mr_signer: " + testSigner + "\n",
		"short mr_signer": "name: x\nmr_signer: 5151\n",
		"bad yaml":        "name: [unterminated\n",
		"missing binary":  "name: x\nbinary: nope\nmr_signer: " + testSigner + "\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadImage(writeManifest(t, t.TempDir(), body))
			assert.ErrorIs(t, err, ErrInvalidImage)
		})
	}

	_, err := LoadImage(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

type pipeProvider struct {
	stream io.ReadWriteCloser
}

func (p *pipeProvider) ConnectStream(addr string) (io.ReadWriteCloser, error) {
	if addr != protocol.SignerAddress || p.stream == nil {
		return nil, interfaces.ErrConnectionRefused
	}
	s := p.stream
	p.stream = nil
	return s, nil
}

func TestSimLoaderRunsAgent(t *testing.T) {
	platform, err := sgx.GeneratePlatform([16]byte{})
	require.NoError(t, err)
	path := writeManifest(t, t.TempDir(), "name: signer\nisv_svn: 1\nmr_signer: "+testSigner+"\n")

	host, guest := net.Pipe()
	defer host.Close()

	enc, err := NewSimLoader(platform, testLogger()).Load(path, &pipeProvider{stream: guest})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- enc.Run() }()

	codec := protocol.NewCodec(host)
	require.NoError(t, codec.WriteRequest(protocol.Request{Kind: protocol.RequestKeyGen}))
	resp, err := codec.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, protocol.ResponseKeyPair, resp.Kind)

	require.NoError(t, codec.WriteRequest(protocol.Request{Kind: protocol.RequestShutdown}))
	assert.NoError(t, <-done)
}

func TestSimLoaderRunWithoutStream(t *testing.T) {
	platform, err := sgx.GeneratePlatform([16]byte{})
	require.NoError(t, err)
	path := writeManifest(t, t.TempDir(), "name: signer\nmr_signer: "+testSigner+"\n")

	enc, err := NewSimLoader(platform, testLogger()).Load(path, &pipeProvider{})
	require.NoError(t, err)
	assert.ErrorIs(t, enc.Run(), interfaces.ErrConnectionRefused)
}

func TestStreamsFromEnv(t *testing.T) {
	t.Setenv(EnvStreams, "signatory=3,metrics=4")
	streams, err := StreamsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"signatory": 3, "metrics": 4}, streams.fds)

	_, err = streams.ConnectStream("network")
	assert.ErrorIs(t, err, interfaces.ErrConnectionRefused)

	for _, bad := range []string{"signatory", "signatory=x", "signatory=1"} {
		t.Setenv(EnvStreams, bad)
		_, err := StreamsFromEnv()
		assert.Error(t, err, bad)
	}
}

func socketPair(t *testing.T) (net.Conn, net.Conn) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	conns := make([]net.Conn, 2)
	for i, fd := range fds {
		f := os.NewFile(uintptr(fd), "test-socket")
		conns[i], err = net.FileConn(f)
		f.Close()
		require.NoError(t, err)
	}
	return conns[0], conns[1]
}

func TestProcessLoaderPassesStreams(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	dir := t.TempDir()
	script := "#!/bin/sh\nfd=${ENCLAVE_STREAMS#signatory=}\necho \"hello from $fd\" >&3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.sh"), []byte(script), 0755))
	path := writeManifest(t, dir, "name: signer\nbinary: agent.sh\nmr_signer: "+testSigner+"\n")

	host, guest := socketPair(t)
	defer host.Close()

	loader := &ProcessLoader{PlatformPath: filepath.Join(dir, "platform.bin"), Log: testLogger()}
	enc, err := loader.Load(path, &pipeProvider{stream: guest})
	require.NoError(t, err)
	require.NoError(t, enc.Run())

	line, err := bufio.NewReader(host).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello from 3", strings.TrimSpace(line))
}

func TestProcessLoaderRequiresBinary(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "name: signer\nmr_signer: "+testSigner+"\n")
	_, err := (&ProcessLoader{Log: testLogger()}).Load(path, &pipeProvider{})
	assert.ErrorIs(t, err, ErrInvalidImage)
}
