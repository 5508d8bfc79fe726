package weavetest

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
)

// Auth is a mock implementing x.Authenticator interface.
//
// Signer and Signers are both considered, Signer is only a shortcut for
// the common single signer case.
type Auth struct {
	Signer  solana.PublicKey
	Signers []solana.PublicKey
}

func (a *Auth) GetSigners(weave.Context) []solana.PublicKey {
	if a.Signer.IsZero() {
		return a.Signers
	}
	return append([]solana.PublicKey{a.Signer}, a.Signers...)
}

func (a *Auth) HasAddress(ctx weave.Context, addr solana.PublicKey) bool {
	for _, s := range a.GetSigners(ctx) {
		if s.Equals(addr) {
			return true
		}
	}
	return false
}

// CtxAuth is a mock implementing x.Authenticator interface that keeps the
// signers in the context.
type CtxAuth struct {
	// Key used to set and retrieve signers from the context.
	Key string
}

func (a *CtxAuth) SetSigners(ctx weave.Context, signers ...solana.PublicKey) weave.Context {
	return context.WithValue(ctx, ctxAuthKey(a.Key), signers)
}

func (a *CtxAuth) GetSigners(ctx weave.Context) []solana.PublicKey {
	val := ctx.Value(ctxAuthKey(a.Key))
	if val == nil {
		return nil
	}
	signers, ok := val.([]solana.PublicKey)
	if !ok {
		panic(fmt.Sprintf("instead of []solana.PublicKey got %T", val))
	}
	return signers
}

func (a *CtxAuth) HasAddress(ctx weave.Context, addr solana.PublicKey) bool {
	for _, s := range a.GetSigners(ctx) {
		if s.Equals(addr) {
			return true
		}
	}
	return false
}

type ctxAuthKey string
