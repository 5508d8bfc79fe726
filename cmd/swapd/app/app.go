/*
Package app links together all the various components
to construct the swapd ledger.
*/
package app

import (
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/app"
	"github.com/iov-one/weave-escrow/store"
	"github.com/iov-one/weave-escrow/x"
	"github.com/iov-one/weave-escrow/x/escrow"
	"github.com/iov-one/weave-escrow/x/sigs"
	"github.com/iov-one/weave-escrow/x/token"
	"github.com/iov-one/weave-escrow/x/utils"
	"github.com/tendermint/tendermint/libs/log"
)

// Authenticator returns the typical authentication,
// just using public key signatures
func Authenticator() x.Authenticator {
	return x.ChainAuth(sigs.Authenticate{})
}

// Chain returns a chain of decorators, to handle authentication,
// metrics, logging, and recovery. metrics is optional.
func Chain(metrics *app.Metrics) app.Decorators {
	var m weave.Decorator
	if metrics != nil {
		m = metrics
	}
	return app.ChainDecorators(
		utils.NewLogging(),
		utils.NewRecovery(),
		m,
		sigs.NewDecorator(),
		// on DeliverTx, a failed message still consumes the signer
		// sequence
		utils.NewSavepoint().OnDeliver(),
	)
}

// Router dispatches to the token and escrow handlers.
func Router(authFn x.Authenticator) *app.Router {
	r := app.NewRouter()
	control := token.NewController()
	token.RegisterRoutes(r, authFn, control)
	escrow.RegisterRoutes(r, authFn, control)
	return r
}

// QueryRouter returns a default query router,
// allowing access to "/tokens/mints", "/tokens/accounts", "/escrows"
// and "/auth"
func QueryRouter() weave.QueryRouter {
	r := weave.NewQueryRouter()
	r.RegisterAll(
		token.RegisterQuery,
		escrow.RegisterQuery,
		sigs.RegisterQuery,
	)
	return r
}

// Initializers loads every extension section of the genesis.
func Initializers() weave.Initializer {
	return weave.ChainInitializers(
		token.Initializer{},
		escrow.Initializer{},
	)
}

// Stack wires up a standard router with a standard decorator
// chain. This can be passed into app.NewLedger.
func Stack(metrics *app.Metrics) weave.Handler {
	authFn := Authenticator()
	return Chain(metrics).WithHandler(Router(authFn))
}

// CommitKVStore returns an initialized store that persists the data
// under dir. An empty dir returns a memory backed store.
func CommitKVStore(dir string) (weave.CommitKVStore, error) {
	if dir == "" {
		return store.MemLevelDB()
	}
	return store.OpenLevelDB(dir)
}

// Application opens the ledger stored under dir.
func Application(dir string, metrics *app.Metrics, logger log.Logger) (*app.Ledger, error) {
	kv, err := CommitKVStore(dir)
	if err != nil {
		return nil, err
	}
	l, err := app.NewLedger(kv, Stack(metrics), TxDecoder, QueryRouter())
	if err != nil {
		kv.Close()
		return nil, err
	}
	return l.WithLogger(logger), nil
}
