package token

import (
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/x"
)

// Authority is the capability to move funds of accounts owned by Owner.
// The zero value authorizes nothing.
type Authority struct {
	owner solana.PublicKey
}

// Owner returns the identity this authority acts for.
func (a Authority) Owner() solana.PublicKey {
	return a.owner
}

func (a Authority) authorizes(owner solana.PublicKey) bool {
	return !a.owner.IsZero() && a.owner.Equals(owner)
}

// SignedBy returns the authority of owner if owner signed the current
// transaction.
func SignedBy(ctx weave.Context, auth x.Authenticator, owner solana.PublicKey) (Authority, error) {
	if owner.IsZero() || !auth.HasAddress(ctx, owner) {
		return Authority{}, errors.Wrapf(errors.ErrUnauthorized, "%s did not sign", owner)
	}
	return Authority{owner: owner}, nil
}

// ProgramSigner returns the authority of a program derived owner. The
// condition together with the bump must re-derive to owner.
func ProgramSigner(cond weave.Condition, bump uint8, owner solana.PublicKey) (Authority, error) {
	addr, err := cond.AddressWithBump(bump)
	if err != nil {
		return Authority{}, errors.Wrap(errors.ErrUnauthorized, err.Error())
	}
	if !addr.Equals(owner) {
		return Authority{}, errors.Wrapf(errors.ErrUnauthorized, "%s derives to %s, not %s", cond, addr, owner)
	}
	return Authority{owner: owner}, nil
}
