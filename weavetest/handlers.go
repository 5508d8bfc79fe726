package weavetest

import (
	"sync"

	"github.com/iov-one/weave-escrow"
)

// Handler is a mock weave.Handler returning preset results. Calls are
// counted and safe for concurrent use.
type Handler struct {
	mu          sync.Mutex
	checkCall   int
	deliverCall int

	CheckResult weave.CheckResult
	CheckErr    error

	DeliverResult weave.DeliverResult
	DeliverErr    error
}

var _ weave.Handler = (*Handler)(nil)

func (h *Handler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	h.mu.Lock()
	h.checkCall++
	h.mu.Unlock()
	if h.CheckErr != nil {
		return nil, h.CheckErr
	}
	res := h.CheckResult
	return &res, nil
}

func (h *Handler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	h.mu.Lock()
	h.deliverCall++
	h.mu.Unlock()
	if h.DeliverErr != nil {
		return nil, h.DeliverErr
	}
	res := h.DeliverResult
	return &res, nil
}

func (h *Handler) CheckCallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.checkCall
}

func (h *Handler) DeliverCallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deliverCall
}

func (h *Handler) CallCount() int {
	return h.CheckCallCount() + h.DeliverCallCount()
}

// WriteHandler sets Key to Value in the store on every call, then fails
// with Err if set. It exercises rollback of partial writes.
type WriteHandler struct {
	Key   []byte
	Value []byte
	Err   error
}

var _ weave.Handler = (*WriteHandler)(nil)

func (h *WriteHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if err := db.Set(h.Key, h.Value); err != nil {
		return nil, err
	}
	if h.Err != nil {
		return nil, h.Err
	}
	return &weave.CheckResult{}, nil
}

func (h *WriteHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	if err := db.Set(h.Key, h.Value); err != nil {
		return nil, err
	}
	if h.Err != nil {
		return nil, h.Err
	}
	return &weave.DeliverResult{}, nil
}

// PanicHandler panics on every call.
type PanicHandler struct {
	Msg string
}

var _ weave.Handler = PanicHandler{}

func (h PanicHandler) Check(weave.Context, weave.KVStore, weave.Tx) (*weave.CheckResult, error) {
	panic(h.Msg)
}

func (h PanicHandler) Deliver(weave.Context, weave.KVStore, weave.Tx) (*weave.DeliverResult, error) {
	panic(h.Msg)
}
