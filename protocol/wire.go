package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

type keyRequestWire struct {
	KeyName       uint16   `cbor:"1,keyasint"`
	KeyPolicy     uint16   `cbor:"2,keyasint"`
	ISVSVN        uint16   `cbor:"3,keyasint"`
	CPUSVN        []byte   `cbor:"4,keyasint"`
	AttributeMask []uint64 `cbor:"5,keyasint"`
	KeyID         []byte   `cbor:"6,keyasint"`
	MiscMask      uint32   `cbor:"7,keyasint"`
}

type sealedWire struct {
	Request      keyRequestWire `cbor:"1,keyasint"`
	Nonce        []byte         `cbor:"2,keyasint"`
	SealedSecret []byte         `cbor:"3,keyasint"`
}

type requestWire struct {
	Kind    RequestKind `cbor:"1,keyasint"`
	Sealed  *sealedWire `cbor:"2,keyasint,omitempty"`
	Message []byte      `cbor:"3,keyasint,omitempty"`
}

type responseWire struct {
	Kind      ResponseKind `cbor:"1,keyasint"`
	Sealed    *sealedWire  `cbor:"2,keyasint,omitempty"`
	PublicKey []byte       `cbor:"3,keyasint,omitempty"`
	Signature []byte       `cbor:"4,keyasint,omitempty"`
	Err       ErrorKind    `cbor:"5,keyasint,omitempty"`
}

func sealedToWire(s SealedKeyData) *sealedWire {
	r := s.SealKeyRequest
	return &sealedWire{
		Request: keyRequestWire{
			KeyName:       r.KeyName,
			KeyPolicy:     r.KeyPolicy,
			ISVSVN:        r.ISVSVN,
			CPUSVN:        r.CPUSVN[:],
			AttributeMask: r.AttributeMask[:],
			KeyID:         r.KeyID[:],
			MiscMask:      r.MiscMask,
		},
		Nonce:        s.Nonce[:],
		SealedSecret: s.SealedSecret,
	}
}

func (w *sealedWire) sealed() (SealedKeyData, error) {
	var s SealedKeyData
	r := w.Request
	if len(r.CPUSVN) != len(s.SealKeyRequest.CPUSVN) {
		return s, fmt.Errorf("%w: cpusvn length %d", ErrMalformed, len(r.CPUSVN))
	}
	if len(r.AttributeMask) != len(s.SealKeyRequest.AttributeMask) {
		return s, fmt.Errorf("%w: attribute mask length %d", ErrMalformed, len(r.AttributeMask))
	}
	if len(r.KeyID) != len(s.SealKeyRequest.KeyID) {
		return s, fmt.Errorf("%w: keyid length %d", ErrMalformed, len(r.KeyID))
	}
	if len(w.Nonce) != NonceSize {
		return s, fmt.Errorf("%w: nonce length %d", ErrMalformed, len(w.Nonce))
	}

	s.SealKeyRequest = KeyRequest{
		KeyName:   r.KeyName,
		KeyPolicy: r.KeyPolicy,
		ISVSVN:    r.ISVSVN,
		MiscMask:  r.MiscMask,
	}
	copy(s.SealKeyRequest.CPUSVN[:], r.CPUSVN)
	copy(s.SealKeyRequest.AttributeMask[:], r.AttributeMask)
	copy(s.SealKeyRequest.KeyID[:], r.KeyID)
	copy(s.Nonce[:], w.Nonce)
	s.SealedSecret = w.SealedSecret
	return s, nil
}

func requestToWire(req Request) (*requestWire, error) {
	w := &requestWire{Kind: req.Kind}
	switch req.Kind {
	case RequestKeyGen, RequestGetPublicKey, RequestShutdown:
	case RequestImport:
		if req.Sealed == nil {
			return nil, fmt.Errorf("import request without sealed key")
		}
		w.Sealed = sealedToWire(*req.Sealed)
	case RequestSign:
		w.Message = req.Message
	default:
		return nil, fmt.Errorf("unknown request kind %d", uint8(req.Kind))
	}
	return w, nil
}

func (w *requestWire) request() (Request, error) {
	req := Request{Kind: w.Kind}
	switch w.Kind {
	case RequestKeyGen, RequestGetPublicKey, RequestShutdown:
	case RequestImport:
		if w.Sealed == nil {
			return req, fmt.Errorf("%w: import without sealed key", ErrMalformed)
		}
		sealed, err := w.Sealed.sealed()
		if err != nil {
			return req, err
		}
		req.Sealed = &sealed
	case RequestSign:
		req.Message = w.Message
		if req.Message == nil {
			req.Message = []byte{}
		}
	default:
		return req, fmt.Errorf("%w: %s", ErrMalformed, w.Kind)
	}
	return req, nil
}

func responseToWire(resp Response) (*responseWire, error) {
	w := &responseWire{Kind: resp.Kind}
	switch resp.Kind {
	case ResponseKeyPair:
		if resp.Sealed == nil {
			return nil, fmt.Errorf("keypair response without sealed key")
		}
		w.Sealed = sealedToWire(*resp.Sealed)
	case ResponsePublicKey:
		w.PublicKey = resp.PublicKey[:]
	case ResponseSigned:
		w.Signature = resp.Signature[:]
	case ResponseError:
		if !resp.Err.valid() {
			return nil, fmt.Errorf("invalid error kind %d", uint8(resp.Err))
		}
		w.Err = resp.Err
	default:
		return nil, fmt.Errorf("unknown response kind %d", uint8(resp.Kind))
	}
	return w, nil
}

func (w *responseWire) response() (Response, error) {
	resp := Response{Kind: w.Kind}
	switch w.Kind {
	case ResponseKeyPair:
		if w.Sealed == nil {
			return resp, fmt.Errorf("%w: keypair without sealed key", ErrMalformed)
		}
		sealed, err := w.Sealed.sealed()
		if err != nil {
			return resp, err
		}
		resp.Sealed = &sealed
	case ResponsePublicKey:
		if len(w.PublicKey) != PublicKeySize {
			return resp, fmt.Errorf("%w: public key length %d", ErrMalformed, len(w.PublicKey))
		}
		copy(resp.PublicKey[:], w.PublicKey)
	case ResponseSigned:
		if len(w.Signature) != SignatureSize {
			return resp, fmt.Errorf("%w: signature length %d", ErrMalformed, len(w.Signature))
		}
		copy(resp.Signature[:], w.Signature)
	case ResponseError:
		if !w.Err.valid() {
			return resp, fmt.Errorf("%w: error kind %d", ErrMalformed, uint8(w.Err))
		}
		resp.Err = w.Err
	default:
		return resp, fmt.Errorf("%w: %s", ErrMalformed, w.Kind)
	}
	return resp, nil
}
