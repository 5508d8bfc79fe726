package sigs

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/x"
)

type contextKey int // local to the sigs module

const (
	contextKeySigners contextKey = iota
)

// withSigners is private, only this module can add a signer.
func withSigners(ctx weave.Context, signers []solana.PublicKey) weave.Context {
	return context.WithValue(ctx, contextKeySigners, signers)
}

// Authenticate exposes the verified signers to the handlers.
type Authenticate struct{}

var _ x.Authenticator = Authenticate{}

// GetSigners returns who signed the current Context. May be empty.
func (Authenticate) GetSigners(ctx weave.Context) []solana.PublicKey {
	val, _ := ctx.Value(contextKeySigners).([]solana.PublicKey)
	return val
}

// HasAddress returns true if addr signed the current Context.
func (a Authenticate) HasAddress(ctx weave.Context, addr solana.PublicKey) bool {
	for _, s := range a.GetSigners(ctx) {
		if s.Equals(addr) {
			return true
		}
	}
	return false
}
