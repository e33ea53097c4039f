package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/libp2p/go-msgio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealed() SealedKeyData {
	return SealedKeyData{
		SealKeyRequest: KeyRequest{
			KeyName:       4,
			KeyPolicy:     1,
			ISVSVN:        2,
			CPUSVN:        [16]byte{9},
			AttributeMask: [2]uint64{0xFF0000000000000B, 0},
			KeyID:         [32]byte{0xde, 0xad},
			MiscMask:      0xF0000000,
		},
		Nonce:        [NonceSize]byte{1, 2, 3},
		SealedSecret: []byte("ciphertext"),
	}
}

func TestCodecRequests(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf)
	sealed := testSealed()

	requests := []Request{
		{Kind: RequestKeyGen},
		{Kind: RequestGetPublicKey},
		{Kind: RequestImport, Sealed: &sealed},
		{Kind: RequestSign, Message: []byte("hello")},
		{Kind: RequestSign, Message: []byte{}},
		{Kind: RequestShutdown},
	}
	for _, req := range requests {
		require.NoError(t, codec.WriteRequest(req))
	}
	for _, want := range requests {
		got, err := codec.ReadRequest()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := codec.ReadRequest()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCodecResponses(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf)
	sealed := testSealed()

	responses := []Response{
		{Kind: ResponseKeyPair, Sealed: &sealed},
		{Kind: ResponsePublicKey, PublicKey: PublicKey{1, 2, 3}},
		{Kind: ResponseSigned, Signature: Signature{4, 5, 6}},
		ErrorResponse(KeyNotSet),
	}
	for _, resp := range responses {
		require.NoError(t, codec.WriteResponse(resp))
	}
	for _, want := range responses {
		got, err := codec.ReadResponse()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestCodecRejectsInvalidOutgoing(t *testing.T) {
	codec := NewCodec(&bytes.Buffer{})
	assert.Error(t, codec.WriteRequest(Request{Kind: RequestImport}))
	assert.Error(t, codec.WriteRequest(Request{Kind: 42}))
	assert.Error(t, codec.WriteResponse(Response{Kind: ResponseKeyPair}))
	assert.Error(t, codec.WriteResponse(ErrorResponse(0)))
}

func TestCodecMalformedRequests(t *testing.T) {
	mustMarshal := func(v any) []byte {
		b, err := cbor.Marshal(v)
		require.NoError(t, err)
		return b
	}
	shortNonce := sealedToWire(testSealed())
	shortNonce.Nonce = shortNonce.Nonce[:11]
	longKeyID := sealedToWire(testSealed())
	longKeyID.Request.KeyID = make([]byte, 33)
	shortMask := sealedToWire(testSealed())
	shortMask.Request.AttributeMask = []uint64{1}

	bodies := map[string][]byte{
		"empty frame":        {},
		"garbage":            {0xff, 0x00, 0x13, 0x37},
		"not a map":          mustMarshal(17),
		"unknown kind":       mustMarshal(map[int]any{1: 99}),
		"unknown field":      mustMarshal(map[int]any{1: uint8(RequestKeyGen), 9: "x"}),
		"import without key": mustMarshal(map[int]any{1: uint8(RequestImport)}),
		"short nonce":        mustMarshal(&requestWire{Kind: RequestImport, Sealed: shortNonce}),
		"long keyid":         mustMarshal(&requestWire{Kind: RequestImport, Sealed: longKeyID}),
		"short mask":         mustMarshal(&requestWire{Kind: RequestImport, Sealed: shortMask}),
		"trailing bytes":     append(mustMarshal(&requestWire{Kind: RequestKeyGen}), 0x01),
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			codec := NewCodec(&buf)
			require.NoError(t, codec.WriteFrame(body))
			require.NoError(t, codec.WriteRequest(Request{Kind: RequestGetPublicKey}))

			_, err := codec.ReadRequest()
			require.ErrorIs(t, err, ErrMalformed)

			// the next frame is still readable
			req, err := codec.ReadRequest()
			require.NoError(t, err)
			assert.Equal(t, RequestGetPublicKey, req.Kind)
		})
	}
}

func TestCodecMalformedResponses(t *testing.T) {
	bodies := map[string]any{
		"short public key": &responseWire{Kind: ResponsePublicKey, PublicKey: []byte{1}},
		"short signature":  &responseWire{Kind: ResponseSigned, Signature: make([]byte, 63)},
		"bad error kind":   &responseWire{Kind: ResponseError, Err: 77},
		"missing sealed":   &responseWire{Kind: ResponseKeyPair},
		"unknown kind":     &responseWire{Kind: 9},
	}
	for name, v := range bodies {
		t.Run(name, func(t *testing.T) {
			body, err := cbor.Marshal(v)
			require.NoError(t, err)

			var buf bytes.Buffer
			codec := NewCodec(&buf)
			require.NoError(t, codec.WriteFrame(body))
			_, err = codec.ReadResponse()
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestCodecOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(MaxFrameSize+1)))

	_, err := NewCodec(&buf).ReadRequest()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformed))
	assert.ErrorIs(t, err, msgio.ErrMsgTooLarge)
}

func TestSealedKeyDataBinary(t *testing.T) {
	sealed := testSealed()
	data, err := sealed.MarshalBinary()
	require.NoError(t, err)

	var decoded SealedKeyData
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, sealed, decoded)
	assert.Equal(t, PublicKey(sealed.SealKeyRequest.KeyID), decoded.PublicKey())

	again, err := decoded.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding must be deterministic")

	assert.ErrorIs(t, decoded.UnmarshalBinary([]byte("junk")), ErrMalformed)
}

func TestKeyRequestHardwareMapping(t *testing.T) {
	req := testSealed().SealKeyRequest
	hw, err := req.Hardware()
	require.NoError(t, err)
	assert.Equal(t, req, KeyRequestFromHardware(hw))

	req.KeyPolicy |= 0x8000
	_, err = req.Hardware()
	assert.Error(t, err)
}

func TestErrorKindMatching(t *testing.T) {
	var err error = KeyNotSet
	assert.ErrorIs(t, err, KeyNotSet)
	assert.NotErrorIs(t, err, KeyAlreadySet)
	assert.Equal(t, "sealing of the signing key failed", SealFailed.Error())
}
