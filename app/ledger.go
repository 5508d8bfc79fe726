package app

import (
	"context"
	"sync"

	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/tendermint/tendermint/libs/log"
)

// chainIDKey is where the chain id is stored once InitChain succeeded.
const chainIDKey = "_wv:chainID"

// Ledger executes transactions against a persistent store.
//
// Transactions are serialized. Each one runs on a fresh cache wrap of the
// committed store. The cache is written only if both check and deliver
// succeed, otherwise it is discarded. Queries read the committed state and
// may run concurrently with each other.
type Ledger struct {
	mu sync.RWMutex

	store   weave.CommitKVStore
	handler weave.Handler
	decoder weave.TxDecoder
	queries weave.QueryRouter
	logger  log.Logger

	// chainID is loaded from the store, saved once by InitChain
	chainID string
}

// NewLedger loads the ledger state from store.
func NewLedger(store weave.CommitKVStore, handler weave.Handler, decoder weave.TxDecoder, queries weave.QueryRouter) (*Ledger, error) {
	raw, err := store.Get([]byte(chainIDKey))
	if err != nil {
		return nil, errors.Wrap(err, "load chain id")
	}
	return &Ledger{
		store:   store,
		handler: handler,
		decoder: decoder,
		queries: queries,
		logger:  log.NewNopLogger(),
		chainID: string(raw),
	}, nil
}

// WithLogger sets the logger installed in the context of every
// transaction.
func (l *Ledger) WithLogger(logger log.Logger) *Ledger {
	l.logger = logger
	return l
}

// ChainID returns the chain id or an empty string if the ledger was not
// initialized yet.
func (l *Ledger) ChainID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chainID
}

// InitChain stores the chain id and runs init over the application state
// of the genesis. It can succeed only once for a given store.
func (l *Ledger) InitChain(gen Genesis, init weave.Initializer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.chainID != "" {
		return errors.Wrapf(errors.ErrState, "already initialized for chain %q", l.chainID)
	}
	if !weave.IsValidChainID(gen.ChainID) {
		return errors.Wrapf(errors.ErrInput, "invalid chain id %q", gen.ChainID)
	}

	cache := l.store.CacheWrap()
	if err := cache.Set([]byte(chainIDKey), []byte(gen.ChainID)); err != nil {
		cache.Discard()
		return errors.Wrap(err, "save chain id")
	}
	if init != nil {
		if err := init.FromGenesis(gen.AppState, cache); err != nil {
			cache.Discard()
			return errors.Wrap(err, "genesis")
		}
	}
	if err := cache.Write(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	l.chainID = gen.ChainID
	l.logger.Info("chain initialized", "chain_id", gen.ChainID)
	return nil
}

// context returns the base context of every transaction.
func (l *Ledger) context() (weave.Context, error) {
	if l.chainID == "" {
		return nil, errors.Wrap(errors.ErrState, "ledger not initialized")
	}
	ctx := weave.WithLogger(context.Background(), l.logger)
	return weave.WithChainID(ctx, l.chainID), nil
}

// CheckTx decodes and checks a transaction without changing the state.
func (l *Ledger) CheckTx(raw []byte) (*weave.CheckResult, error) {
	tx, err := l.decode(raw)
	if err != nil {
		return nil, err
	}
	return l.Check(tx)
}

// Check runs tx through the check phase of the stack. All writes are
// dropped.
func (l *Ledger) Check(tx weave.Tx) (*weave.CheckResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ctx, err := l.context()
	if err != nil {
		return nil, err
	}
	cache := l.store.CacheWrap()
	defer cache.Discard()
	return l.handler.Check(ctx, cache, tx)
}

// DeliverTx decodes and executes a transaction.
func (l *Ledger) DeliverTx(raw []byte) (*weave.DeliverResult, error) {
	tx, err := l.decode(raw)
	if err != nil {
		return nil, err
	}
	return l.Execute(tx)
}

// Execute checks and delivers tx as a single unit. Either all changes of
// the transaction are persisted or none.
func (l *Ledger) Execute(tx weave.Tx) (*weave.DeliverResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, err := l.context()
	if err != nil {
		return nil, err
	}

	check := l.store.CacheWrap()
	_, err = l.handler.Check(ctx, check, tx)
	check.Discard()
	if err != nil {
		return nil, err
	}

	cache := l.store.CacheWrap()
	res, err := l.handler.Deliver(ctx, cache, tx)
	if err != nil {
		cache.Discard()
		return nil, err
	}
	if err := cache.Write(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return res, nil
}

// Query runs the query registered under path against the committed
// state.
func (l *Ledger) Query(path, mod string, data []byte) ([]weave.Model, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	h := l.queries.Handler(path)
	if h == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "no query handler for %q", path)
	}
	return h.Query(l.store, mod, data)
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Close()
}

func (l *Ledger) decode(raw []byte) (weave.Tx, error) {
	tx, err := l.decoder(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return tx, nil
}
