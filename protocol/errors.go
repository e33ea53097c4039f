package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind is an error reported across the enclave boundary.
// The values are comparable, so callers match them with errors.Is.
type ErrorKind uint8

const (
	KeyAlreadySet ErrorKind = iota + 1
	KeyNotSet
	SealFailed
	UnsealFailed
	// Unexpected is produced on the host for responses that fail to decode or
	// do not match the request.
	Unexpected
)

func (e ErrorKind) Error() string {
	switch e {
	case KeyAlreadySet:
		return "the signing key is already set in the enclave"
	case KeyNotSet:
		return "the signing key is not set in the enclave"
	case SealFailed:
		return "sealing of the signing key failed"
	case UnsealFailed:
		return "unsealing of the signing key failed"
	case Unexpected:
		return "unexpected error (wrong or malformed response)"
	default:
		return fmt.Sprintf("unknown enclave error %d", uint8(e))
	}
}

func (e ErrorKind) valid() bool {
	return e >= KeyAlreadySet && e <= Unexpected
}

// ErrMalformed is returned when a frame was read intact but its body does not
// decode to a valid message. The stream stays usable.
var ErrMalformed = errors.New("malformed message")

// Label returns a short identifier for metrics and logs.
func (e ErrorKind) Label() string {
	switch e {
	case KeyAlreadySet:
		return "key_already_set"
	case KeyNotSet:
		return "key_not_set"
	case SealFailed:
		return "seal_failed"
	case UnsealFailed:
		return "unseal_failed"
	case Unexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}
