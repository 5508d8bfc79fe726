package weavetest

import (
	"sync"

	"github.com/iov-one/weave-escrow"
)

// Decorator is a mock implementation of the weave.Decorator interface.
//
// Set CheckErr or DeliverErr to fail before the wrapped handler is
// called. Every call is counted, whatever the result.
type Decorator struct {
	mu          sync.Mutex
	checkCall   int
	deliverCall int

	CheckErr   error
	DeliverErr error
}

var _ weave.Decorator = (*Decorator)(nil)

func (d *Decorator) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx, next weave.Checker) (*weave.CheckResult, error) {
	d.mu.Lock()
	d.checkCall++
	d.mu.Unlock()
	if d.CheckErr != nil {
		return nil, d.CheckErr
	}
	return next.Check(ctx, db, tx)
}

func (d *Decorator) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx, next weave.Deliverer) (*weave.DeliverResult, error) {
	d.mu.Lock()
	d.deliverCall++
	d.mu.Unlock()
	if d.DeliverErr != nil {
		return nil, d.DeliverErr
	}
	return next.Deliver(ctx, db, tx)
}

func (d *Decorator) CheckCallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checkCall
}

func (d *Decorator) DeliverCallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deliverCall
}

// Decorate wraps h with d.
func Decorate(h weave.Handler, d weave.Decorator) weave.Handler {
	return &decoratedHandler{hn: h, dc: d}
}

type decoratedHandler struct {
	hn weave.Handler
	dc weave.Decorator
}

var _ weave.Handler = (*decoratedHandler)(nil)

func (d *decoratedHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	return d.dc.Check(ctx, db, tx, d.hn)
}

func (d *decoratedHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	return d.dc.Deliver(ctx, db, tx, d.hn)
}
