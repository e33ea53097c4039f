// Package cryptoutils produces and checks attestation quotes that bind the
// signer's public key to the environment holding it.
//
// Quotes carry ReportDataForPublicKey(pub) as their report data. Three
// providers are available:
//
//   - qemu-tdx: a TDX DCAP quote from the local guest, or from a remote quote
//     service when an address is configured
//   - sgx-sim: an unsigned CBOR document carrying the simulated enclave's
//     identity, for development
//   - dummy: a fixed string, for tests
//
// VerifyAttestation checks a quote for a given report data and returns its
// measurements.
package cryptoutils
