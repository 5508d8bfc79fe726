package app

import (
	"reflect"

	"github.com/iov-one/weave-escrow"
)

// Decorators holds a chain of decorators, not yet resolved by a Handler
type Decorators []weave.Decorator

/*
ChainDecorators takes a chain of decorators,
and upon adding a final Handler (often a Router),
returns a Handler that will execute this whole stack.

	app.ChainDecorators(
		utils.NewLogging(),
		utils.NewRecovery(),
		sigs.NewDecorator(),
		utils.NewSavepoint().OnDeliver(),
	).WithHandler(
		router,
	)

nil decorators are skipped, so optional ones can be passed inline.
*/
func ChainDecorators(chain ...weave.Decorator) Decorators {
	return Decorators(nil).Chain(chain...)
}

// Chain returns a new chain with more decorators appended.
func (d Decorators) Chain(chain ...weave.Decorator) Decorators {
	res := make(Decorators, 0, len(d)+len(chain))
	res = append(res, d...)
	for _, dec := range chain {
		if !isNilDecorator(dec) {
			res = append(res, dec)
		}
	}
	return res
}

func isNilDecorator(d weave.Decorator) bool {
	if d == nil {
		return true
	}
	v := reflect.ValueOf(d)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// WithHandler resolves the stack and returns a concrete Handler
// that will pass through the chain of decorators before calling
// the final Handler. The first decorator is the outermost one.
func (d Decorators) WithHandler(h weave.Handler) weave.Handler {
	for i := len(d) - 1; i >= 0; i-- {
		h = step{d: d[i], next: h}
	}
	return h
}

// step executes a decorator around a specific Handler.
type step struct {
	d    weave.Decorator
	next weave.Handler
}

var _ weave.Handler = step{}

func (s step) Check(ctx weave.Context, store weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	return s.d.Check(ctx, store, tx, s.next)
}

func (s step) Deliver(ctx weave.Context, store weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	return s.d.Deliver(ctx, store, tx, s.next)
}
