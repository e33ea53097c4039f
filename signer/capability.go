package signer

import "github.com/ruteri/enclave-signer/interfaces"

var _ interfaces.Signer = (*Controller)(nil)

func (c *Controller) Algorithm() string {
	return interfaces.AlgorithmEd25519
}

func (c *Controller) PublicKeyBytes() ([]byte, error) {
	pk, err := c.PublicKey()
	if err != nil {
		return nil, err
	}
	return pk[:], nil
}

func (c *Controller) TrySign(msg []byte) ([]byte, error) {
	sig, err := c.Sign(msg)
	if err != nil {
		return nil, err
	}
	return sig[:], nil
}
