// Package signer is the host side of the enclave signer.
//
// Launch starts an enclave image through an interfaces.EnclaveLoader and
// connects it to the Controller over a private socket pair. The enclave's
// request to connect to protocol.SignerAddress resolves to that socket; any
// other destination is refused. The enclave runs on its own goroutine, which
// Shutdown joins.
//
// The Controller exposes KeyGen, PublicKey, Import, Sign and Shutdown. Errors
// reported by the enclave come back as protocol.ErrorKind values. A response
// that does not decode or does not fit the request becomes protocol.Unexpected.
// Nothing is retried.
//
// Controller also implements interfaces.Signer, so it can stand in for any of
// the software backends.
//
// Example:
//
//	loader := enclave.NewSimLoader(platform, log)
//	ctl, err := signer.Launch("enclave.yaml", loader, log)
//	if err != nil {
//	    return err
//	}
//	defer ctl.Shutdown()
//
//	sealed, err := ctl.KeyGen()
//	// persist sealed, later: ctl.Import(sealed)
//	sig, err := ctl.Sign([]byte("hello"))
package signer
