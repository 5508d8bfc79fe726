package utils

import (
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
)

// Savepoint isolates all writes done by the wrapped handler. They are
// written to the parent store only if the handler succeeds, otherwise they
// are dropped as a whole.
type Savepoint struct {
	onCheck   bool
	onDeliver bool
}

var _ weave.Decorator = Savepoint{}

// NewSavepoint creates a Savepoint decorator. It is a noop until
// OnCheck or OnDeliver is called.
func NewSavepoint() Savepoint {
	return Savepoint{}
}

// OnCheck returns a savepoint that also triggers on Check.
func (s Savepoint) OnCheck() Savepoint {
	s.onCheck = true
	return s
}

// OnDeliver returns a savepoint that also triggers on Deliver.
func (s Savepoint) OnDeliver() Savepoint {
	s.onDeliver = true
	return s
}

func (s Savepoint) Check(ctx weave.Context, store weave.KVStore, tx weave.Tx, next weave.Checker) (*weave.CheckResult, error) {
	if !s.onCheck {
		return next.Check(ctx, store, tx)
	}
	var res *weave.CheckResult
	err := inSavepoint(store, func(db weave.KVStore) error {
		var err error
		res, err = next.Check(ctx, db, tx)
		return err
	})
	return res, err
}

func (s Savepoint) Deliver(ctx weave.Context, store weave.KVStore, tx weave.Tx, next weave.Deliverer) (*weave.DeliverResult, error) {
	if !s.onDeliver {
		return next.Deliver(ctx, store, tx)
	}
	var res *weave.DeliverResult
	err := inSavepoint(store, func(db weave.KVStore) error {
		var err error
		res, err = next.Deliver(ctx, db, tx)
		return err
	})
	return res, err
}

// inSavepoint runs fn on a cache wrap of store. Stores that cannot be
// cache wrapped are passed through as they are.
func inSavepoint(store weave.KVStore, fn func(weave.KVStore) error) error {
	cstore, ok := store.(weave.CacheableKVStore)
	if !ok {
		return fn(store)
	}
	cache := cstore.CacheWrap()
	if err := fn(cache); err != nil {
		cache.Discard()
		return err
	}
	if err := cache.Write(); err != nil {
		return errors.Wrap(err, "writing savepoint")
	}
	return nil
}
