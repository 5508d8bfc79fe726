package utils

import (
	"time"

	"github.com/iov-one/weave-escrow"
)

// Logging is a decorator to log messages as they pass through.
type Logging struct{}

var _ weave.Decorator = Logging{}

// NewLogging creates a Logging decorator.
func NewLogging() Logging {
	return Logging{}
}

// Check logs error -> error, success -> debug.
func (Logging) Check(ctx weave.Context, store weave.KVStore, tx weave.Tx, next weave.Checker) (*weave.CheckResult, error) {
	start := time.Now()
	res, err := next.Check(ctx, store, tx)
	var msg string
	if err == nil && res != nil {
		msg = res.Log
	}
	logDuration(ctx, tx, start, msg, err, true)
	return res, err
}

// Deliver logs error -> error, success -> info.
func (Logging) Deliver(ctx weave.Context, store weave.KVStore, tx weave.Tx, next weave.Deliverer) (*weave.DeliverResult, error) {
	start := time.Now()
	res, err := next.Deliver(ctx, store, tx)
	var msg string
	if err == nil && res != nil {
		msg = res.Log
	}
	logDuration(ctx, tx, start, msg, err, false)
	return res, err
}

// logDuration writes the result and the execution time of a transaction.
// An entry is emitted even for an empty message, the other fields are
// still relevant.
func logDuration(ctx weave.Context, tx weave.Tx, start time.Time, msg string, err error, lowPrio bool) {
	logger := weave.GetLogger(ctx).With(
		"path", weave.GetPath(tx),
		"duration", time.Since(start)/time.Microsecond,
	)
	switch {
	case err != nil:
		logger.Error(msg, "err", err)
	case lowPrio:
		logger.Debug(msg)
	default:
		logger.Info(msg)
	}
}
