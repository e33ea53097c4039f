// Package backends contains software signing backends that implement
// interfaces.Signer: Ed25519, ECDSA over P-256 and P-384, and secp256k1.
// NewVerifier builds the matching interfaces.Verifier from a public key.
//
// Keys live in process memory. They are meant for development, tests, and
// deployments where the enclave signer is not available; callers written
// against interfaces.Signer can switch to the enclave-backed signer.Controller
// without changes.
package backends
