// Package agent implements the key custody agent that runs inside the enclave.
//
// The agent is a loop over a single duplex stream to the host. Its state is
// either Empty or Keyed (one Ed25519 key) and is owned by the loop; requests
// are handled strictly one at a time:
//
//	Empty + KeyGen       -> Keyed, KeyPair(sealed)     (SealFailed leaves it Empty)
//	Keyed + KeyGen       -> KeyAlreadySet
//	Empty + Import       -> Keyed, PublicKey           (UnsealFailed leaves it Empty)
//	Keyed + Import       -> KeyAlreadySet
//	Keyed + GetPublicKey -> PublicKey
//	Keyed + Sign         -> Signed
//	Empty + GetPublicKey/Sign -> KeyNotSet
//	Shutdown             -> exit, no response
//
// Requests that fail to decode are dropped without a response.
//
// Sealing encrypts the 32-byte key seed with AES-128-GCM under a seal key the
// hardware derives from the enclave identity (MRENCLAVE policy). The public
// key is the key id of the seal request and the whole request is bound as
// additional data, so a change to any field, the nonce, or the ciphertext
// makes Unseal fail. Private key material is never logged.
package agent
