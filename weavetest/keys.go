package weavetest

import (
	"github.com/gagliardetto/solana-go"
)

// NewKey returns a new random ed25519 private key. It panics if the
// system source of randomness fails.
func NewKey() solana.PrivateKey {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		panic(err)
	}
	return key
}

// NewAddress returns the public key of a new random private key.
func NewAddress() solana.PublicKey {
	return NewKey().PublicKey()
}
