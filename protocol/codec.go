package protocol

import (
	"fmt"
	"io"

	"github.com/libp2p/go-msgio"
)

// MaxFrameSize bounds a single message on the wire. A larger length prefix
// cannot be skipped safely, so it is reported as a transport error.
const MaxFrameSize = 4 << 20

// Codec reads and writes protocol messages on a duplex stream. Each message
// is a CBOR body in its own length-delimited frame, so a body that fails to
// decode is dropped without losing track of the next message.
//
// A Codec is not safe for concurrent use.
type Codec struct {
	r msgio.Reader
	w msgio.Writer
}

// NewCodec frames messages on rw. Frames above MaxFrameSize are rejected.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{
		r: msgio.NewReaderSize(rw, MaxFrameSize),
		w: msgio.NewWriter(rw),
	}
}

// WriteRequest encodes req as one frame.
func (c *Codec) WriteRequest(req Request) error {
	w, err := requestToWire(req)
	if err != nil {
		return err
	}
	return c.writeFrame(w)
}

// ReadRequest returns the next request. Errors wrapping ErrMalformed leave the
// stream positioned at the following frame; any other error is fatal.
func (c *Codec) ReadRequest() (Request, error) {
	var w requestWire
	if err := c.readFrame(&w); err != nil {
		return Request{}, err
	}
	return w.request()
}

// WriteResponse encodes resp as one frame.
func (c *Codec) WriteResponse(resp Response) error {
	w, err := responseToWire(resp)
	if err != nil {
		return err
	}
	return c.writeFrame(w)
}

// ReadResponse returns the next response, with the same error contract as
// ReadRequest.
func (c *Codec) ReadResponse() (Response, error) {
	var w responseWire
	if err := c.readFrame(&w); err != nil {
		return Response{}, err
	}
	return w.response()
}

// WriteFrame writes a raw frame body. It exists for tests and tools that
// need to put arbitrary bytes on the wire.
func (c *Codec) WriteFrame(body []byte) error {
	return c.w.WriteMsg(body)
}

func (c *Codec) writeFrame(v any) error {
	body, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return c.w.WriteMsg(body)
}

func (c *Codec) readFrame(v any) error {
	body, err := c.r.ReadMsg()
	if err != nil {
		return err
	}
	defer c.r.ReleaseMsg(body)

	if len(body) == 0 {
		return fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	if err := decMode.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
