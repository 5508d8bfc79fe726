package app

import (
	"fmt"
	"regexp"

	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
)

// isPath is the RegExp to ensure the routes make sense
var isPath = regexp.MustCompile(`^[a-zA-Z0-9_/]+$`).MatchString

// Router allows us to register many handlers with different paths and then
// direct each message to the proper handler.
//
// Minimal interface modeled after net/http.ServeMux
type Router struct {
	routes map[string]weave.Handler
}

var _ weave.Registry = (*Router)(nil)
var _ weave.Handler = (*Router)(nil)

// NewRouter returns a new empty router instance.
func NewRouter() *Router {
	return &Router{
		routes: make(map[string]weave.Handler, 10),
	}
}

// Handle adds a new Handler for the given message type.
// panics if another Handler was already registered or the path is invalid
func (r *Router) Handle(msg weave.Msg, h weave.Handler) {
	path := msg.Path()
	if !isPath(path) {
		panic(fmt.Sprintf("invalid path: %s", path))
	}
	if _, ok := r.routes[path]; ok {
		panic(fmt.Sprintf("re-registering route: %s", path))
	}
	r.routes[path] = h
}

// handler returns the registered Handler for this path.
func (r *Router) handler(tx weave.Tx) (weave.Handler, error) {
	msg, err := tx.GetMsg()
	if err != nil {
		return nil, errors.Wrap(err, "cannot load msg")
	}
	if msg == nil {
		return nil, errors.Wrap(errors.ErrMsg, "transaction carries no message")
	}
	h, ok := r.routes[msg.Path()]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "no handler for message path %q", msg.Path())
	}
	return h, nil
}

// Check dispatches to the proper handler based on path
func (r *Router) Check(ctx weave.Context, store weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	h, err := r.handler(tx)
	if err != nil {
		return nil, err
	}
	return h.Check(ctx, store, tx)
}

// Deliver dispatches to the proper handler based on path
func (r *Router) Deliver(ctx weave.Context, store weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	h, err := r.handler(tx)
	if err != nil {
		return nil, err
	}
	return h.Deliver(ctx, store, tx)
}
