package sigs

import (
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
)

// Decorator verifies the signatures and adds the signers to the context.
type Decorator struct {
	allowMissingSigs bool
}

var _ weave.Decorator = Decorator{}

// NewDecorator returns a decorator that requires at least one signature.
func NewDecorator() Decorator {
	return Decorator{}
}

// AllowMissingSigs lets transactions without signatures through.
func (d Decorator) AllowMissingSigs() Decorator {
	d.allowMissingSigs = true
	return d
}

func (d Decorator) Check(ctx weave.Context, store weave.KVStore, tx weave.Tx, next weave.Checker) (*weave.CheckResult, error) {
	ctx, err := d.authenticate(ctx, store, tx)
	if err != nil {
		return nil, err
	}
	return next.Check(ctx, store, tx)
}

func (d Decorator) Deliver(ctx weave.Context, store weave.KVStore, tx weave.Tx, next weave.Deliverer) (*weave.DeliverResult, error) {
	ctx, err := d.authenticate(ctx, store, tx)
	if err != nil {
		return nil, err
	}
	return next.Deliver(ctx, store, tx)
}

func (d Decorator) authenticate(ctx weave.Context, store weave.KVStore, tx weave.Tx) (weave.Context, error) {
	stx, ok := tx.(SignedTx)
	if !ok {
		if d.allowMissingSigs {
			return ctx, nil
		}
		return nil, errors.Wrap(errors.ErrUnauthorized, "transaction cannot be signed")
	}
	signers, err := VerifyTxSignatures(store, stx, weave.GetChainID(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "cannot verify signatures")
	}
	if len(signers) == 0 && !d.allowMissingSigs {
		return nil, errors.Wrap(errors.ErrUnauthorized, "missing signature")
	}
	return withSigners(ctx, signers), nil
}
