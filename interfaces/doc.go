// Package interfaces defines the contracts shared between the enclave signer
// components, separating interface definitions from implementations.
//
// # Enclave Interfaces
//
// StreamProvider: resolves an enclave's named connection requests to host
// controlled duplex streams. The host controller injects one that serves only
// the signer destination and refuses everything else.
//
// Enclave and EnclaveLoader: abstract the runtime that executes an enclave
// image, so the controller can drive an in-process simulation or a separate
// process the same way.
//
// # Signer Interfaces
//
// Signer and Verifier: the minimal capability every signing backend exposes.
// The enclave-backed controller and the software backends are interchangeable
// through them.
//
// # Storage Interfaces
//
// StorageBackend: content-addressed storage for sealed keys across multiple
// backend types (file, S3, IPFS, Vault, OS keyring), addressed by
// StorageBackendLocation URIs.
package interfaces
