package x

import (
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
)

// Authenticator extracts authentication info from the context. Handlers
// take it in their constructor, so the signature scheme can be swapped
// without touching the extensions.
type Authenticator interface {
	// GetSigners returns every identity that authorized the current
	// transaction.
	GetSigners(weave.Context) []solana.PublicKey
	// HasAddress checks if addr authorized the current transaction.
	HasAddress(weave.Context, solana.PublicKey) bool
}

// MultiAuth chains together many Authenticators into one.
type MultiAuth struct {
	impls []Authenticator
}

var _ Authenticator = MultiAuth{}

// ChainAuth groups together a series of Authenticator.
func ChainAuth(impls ...Authenticator) MultiAuth {
	return MultiAuth{impls}
}

// GetSigners combines the signers of all Authenticators, without
// duplicates, in the order they were first seen.
func (m MultiAuth) GetSigners(ctx weave.Context) []solana.PublicKey {
	var res []solana.PublicKey
	seen := make(map[solana.PublicKey]struct{})
	for _, impl := range m.impls {
		for _, s := range impl.GetSigners(ctx) {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			res = append(res, s)
		}
	}
	return res
}

// HasAddress returns true iff any Authenticator supports this.
func (m MultiAuth) HasAddress(ctx weave.Context, addr solana.PublicKey) bool {
	for _, impl := range m.impls {
		if impl.HasAddress(ctx, addr) {
			return true
		}
	}
	return false
}

// MainSigner returns the first signer, if any.
func MainSigner(ctx weave.Context, auth Authenticator) (solana.PublicKey, bool) {
	signers := auth.GetSigners(ctx)
	if len(signers) == 0 {
		return solana.PublicKey{}, false
	}
	return signers[0], true
}

// HasAllAddresses returns true if every required identity signed.
func HasAllAddresses(ctx weave.Context, auth Authenticator, required ...solana.PublicKey) bool {
	for _, r := range required {
		if !auth.HasAddress(ctx, r) {
			return false
		}
	}
	return true
}
