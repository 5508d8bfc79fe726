package sigs

import (
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow/errors"
)

// SignedTx represents a transaction that contains signatures, which can be
// verified by the Decorator.
type SignedTx interface {
	// GetSignBytes returns the canonical byte representation of the
	// signed content, usually the serialized message.
	GetSignBytes() ([]byte, error)

	// GetSignatures returns the signatures of everyone who signed.
	GetSignatures() []*Signature
}

// Signature is a single ed25519 signature over the sign bytes of a
// transaction, bound to the signer's sequence.
type Signature struct {
	PubKey    solana.PublicKey
	Signature solana.Signature
	Sequence  uint64
}

// Validate ensures the signature is complete. It does not verify it.
func (s *Signature) Validate() error {
	if s == nil {
		return errors.Wrap(errors.ErrUnauthorized, "missing signature")
	}
	if s.PubKey.IsZero() {
		return errors.Wrap(errors.ErrUnauthorized, "missing public key")
	}
	if s.Signature.IsZero() {
		return errors.Wrap(errors.ErrUnauthorized, "missing signature")
	}
	return nil
}
