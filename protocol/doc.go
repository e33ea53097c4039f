// Package protocol defines the messages exchanged between the host controller
// and the enclave agent, and the sealed key record the host persists.
//
// Requests: KeyGen, GetPublicKey, Import(SealedKeyData), Sign(message), Shutdown.
// Responses: KeyPair(SealedKeyData), PublicKey, Signed, Error(ErrorKind).
//
// On the wire every message is one frame: a 4-byte big-endian length followed
// by a deterministic CBOR map keyed by small integers. The exchange is
// strictly alternating. The agent answers every request except Shutdown and
// frames it cannot decode, which it drops.
//
// SealedKeyData.MarshalBinary produces the same CBOR encoding for storage.
package protocol
