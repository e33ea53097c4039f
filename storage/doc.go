// Package storage persists sealed key records and their public keys in
// content-addressed backends.
//
// Every record is identified by the SHA-256 of its bytes, so a sealed key can
// be fetched by id from any backend holding a copy and checked for integrity
// before it is handed to the enclave. Sealed records and public keys live in
// separate namespaces ("sealed" and "pubkey").
//
// # Backends
//
//   - file:///var/lib/enclave-signer          local directory, owner-only files
//   - s3://[KEY:SECRET@]bucket/prefix?region=eu-west-1&endpoint=minio:9000
//   - ipfs://localhost:5001/enclave-signer?timeout=30s  node MFS tree
//   - vault://[TOKEN@]vault:8200/secret/enclave-signer?tls=false  KV v2
//   - keyring://service                       operating system keyring
//
// # Replication
//
// MultiStorageBackend writes to every available backend and fails unless at
// least min_replicas of them accepted the record. Reads try backends in order
// and skip copies whose hash does not match the requested id.
//
//	factory := storage.NewStorageBackendFactory(log)
//	backend, err := factory.CreateMultiBackend(locations)
//	id, err := backend.Store(ctx, sealedBytes, interfaces.SealedKeyType)
//
// A sealed record is only useful to the enclave that produced it, so losing
// the storage copy means losing the key. Use more than one backend.
package storage
