// Package enclave loads enclave images and runs them.
//
// An image is a YAML manifest (name, ISV product id and SVN, MRSIGNER, an
// optional binary, and the destinations the enclave connects to). Its
// MRENCLAVE is measured over the manifest and binary bytes.
//
// Two runtimes implement interfaces.EnclaveLoader:
//
//   - SimLoader runs the key custody agent in-process against an
//     sgx.Platform. It is what tests and single-binary deployments use.
//   - ProcessLoader starts the image binary (cmd/enclave-agent) as a child
//     process. Destinations are resolved through the host's stream provider
//     before start and inherited by the child, which resolves them again with
//     StreamsFromEnv.
package enclave
