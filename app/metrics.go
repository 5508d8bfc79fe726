package app

import (
	"strconv"
	"time"

	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a decorator that counts transactions and measures how long
// they take, labelled by phase, message path and result code.
type Metrics struct {
	txs      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ weave.Decorator = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		txs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swapd",
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Total transactions processed, by phase, message path and result code.",
		}, []string{"phase", "path", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "swapd",
			Subsystem: "ledger",
			Name:      "transaction_duration_seconds",
			Help:      "Time spent processing a transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"phase", "path"}),
	}
	for _, c := range []prometheus.Collector{m.txs, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrapf(errors.ErrInput, "register metrics: %s", err)
		}
	}
	return m, nil
}

// TxCounter exposes the transaction counter.
func (m *Metrics) TxCounter() *prometheus.CounterVec {
	return m.txs
}

func (m *Metrics) Check(ctx weave.Context, store weave.KVStore, tx weave.Tx, next weave.Checker) (*weave.CheckResult, error) {
	start := time.Now()
	res, err := next.Check(ctx, store, tx)
	m.observe("check", tx, start, err)
	return res, err
}

func (m *Metrics) Deliver(ctx weave.Context, store weave.KVStore, tx weave.Tx, next weave.Deliverer) (*weave.DeliverResult, error) {
	start := time.Now()
	res, err := next.Deliver(ctx, store, tx)
	m.observe("deliver", tx, start, err)
	return res, err
}

func (m *Metrics) observe(phase string, tx weave.Tx, start time.Time, err error) {
	path := weave.GetPath(tx)
	code, _ := errors.Info(err, false)
	m.txs.WithLabelValues(phase, path, strconv.FormatUint(uint64(code), 10)).Inc()
	m.duration.WithLabelValues(phase, path).Observe(time.Since(start).Seconds())
}
