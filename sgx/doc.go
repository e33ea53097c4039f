// Package sgx models the parts of an SGX platform an enclave signer relies on:
// the measured enclave identity, the EGETKEY key request, and seal key
// derivation.
//
// Platform stands in for the processor. It owns a root secret that never
// leaves it and derives keys with HKDF-SHA256 over that secret, the key
// request, and the identity fields the key policy selects. An enclave with a
// different MRENCLAVE (under an MRENCLAVE policy) or a different platform
// root gets an unrelated key, which is the property sealing depends on.
//
// The platform root is persisted with LoadOrCreatePlatform so that sealed
// keys stay usable across host restarts.
package sgx
