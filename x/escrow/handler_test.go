package escrow

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/store"
	"github.com/iov-one/weave-escrow/weavetest"
	"github.com/iov-one/weave-escrow/weavetest/assert"
	"github.com/iov-one/weave-escrow/x/token"
)

// router is a minimal weave.Registry for tests.
type router map[string]weave.Handler

func (r router) Handle(m weave.Msg, h weave.Handler) { r[m.Path()] = h }

// fixture is a ledger with two mints. The initializer holds mint A and the
// taker holds mint B, both in their associated accounts. The accounts for
// the other legs do not exist yet.
type fixture struct {
	t       testing.TB
	db      store.CacheableKVStore
	auth    *weavetest.CtxAuth
	r       router
	control token.Controller

	authority, initializer, taker solana.PublicKey
	mintA, mintB                  solana.PublicKey

	initializerA, initializerB solana.PublicKey
	takerA, takerB             solana.PublicKey
}

func newFixture(t testing.TB, initializerFunds, takerFunds uint64) *fixture {
	t.Helper()
	f := &fixture{
		t:           t,
		db:          store.MemStore(),
		auth:        &weavetest.CtxAuth{Key: "auth"},
		r:           router{},
		control:     token.NewController(),
		authority:   weavetest.NewAddress(),
		initializer: weavetest.NewAddress(),
		taker:       weavetest.NewAddress(),
		mintA:       weavetest.NewAddress(),
		mintB:       weavetest.NewAddress(),
	}
	RegisterRoutes(f.r, f.auth, f.control)

	for _, m := range []solana.PublicKey{f.mintA, f.mintB} {
		_, err := f.control.CreateMint(f.db, m, f.authority, 6)
		assert.Nil(t, err)
	}
	f.initializerA = f.associated(f.initializer, f.mintA)
	f.initializerB = f.associated(f.initializer, f.mintB)
	f.takerA = f.associated(f.taker, f.mintA)
	f.takerB = f.associated(f.taker, f.mintB)

	mintAuth, err := token.SignedBy(f.auth.SetSigners(context.Background(), f.authority), f.auth, f.authority)
	assert.Nil(t, err)
	fund := []struct {
		account, owner, mint solana.PublicKey
		amount               uint64
	}{
		{f.initializerA, f.initializer, f.mintA, initializerFunds},
		{f.takerB, f.taker, f.mintB, takerFunds},
	}
	for _, a := range fund {
		_, err := f.control.InitAccount(f.db, a.account, a.mint, a.owner)
		assert.Nil(t, err)
		if a.amount > 0 {
			assert.Nil(t, f.control.MintTo(f.db, mintAuth, a.mint, a.account, a.amount))
		}
	}
	return f
}

func (f *fixture) associated(owner, mint solana.PublicKey) solana.PublicKey {
	f.t.Helper()
	addr, err := token.AssociatedAddress(owner, mint)
	assert.Nil(f.t, err)
	return addr
}

// deliver runs msg signed by signers the way the ledger does: check and
// deliver each in their own cache, writing only a successful deliver.
func (f *fixture) deliver(msg weave.Msg, signers ...solana.PublicKey) (*weave.DeliverResult, error) {
	ctx := f.auth.SetSigners(context.Background(), signers...)
	tx := &weavetest.Tx{Msg: msg}
	h := f.r[msg.Path()]

	check := f.db.CacheWrap()
	_, err := h.Check(ctx, check, tx)
	check.Discard()
	if err != nil {
		return nil, err
	}

	cache := f.db.CacheWrap()
	res, err := h.Deliver(ctx, cache, tx)
	if err != nil {
		cache.Discard()
		return nil, err
	}
	return res, cache.Write()
}

func (f *fixture) openMsg(seed, amountA, amountB uint64) *OpenMsg {
	return &OpenMsg{
		Initializer:         f.initializer,
		MintA:               f.mintA,
		MintB:               f.mintB,
		InitializerAccountA: f.initializerA,
		Seed:                seed,
		InitializerAmount:   amountA,
		TakerAmount:         amountB,
	}
}

// open creates an escrow and returns its address and vault.
func (f *fixture) open(seed, amountA, amountB uint64) (solana.PublicKey, solana.PublicKey) {
	f.t.Helper()
	res, err := f.deliver(f.openMsg(seed, amountA, amountB), f.initializer)
	assert.Nil(f.t, err)
	addr := solana.PublicKeyFromBytes(res.Data)
	vault, err := VaultAddress(addr, f.mintA)
	assert.Nil(f.t, err)
	return addr, vault
}

func (f *fixture) cancelMsg(addr, vault solana.PublicKey) *CancelMsg {
	return &CancelMsg{
		Initializer:         f.initializer,
		Escrow:              addr,
		Vault:               vault,
		InitializerAccountA: f.initializerA,
	}
}

func (f *fixture) exchangeMsg(addr, vault solana.PublicKey) *ExchangeMsg {
	return &ExchangeMsg{
		Taker:               f.taker,
		TakerAccountB:       f.takerB,
		TakerAccountA:       f.takerA,
		InitializerAccountB: f.initializerB,
		Escrow:              addr,
		Vault:               vault,
	}
}

// balance returns the balance of address, or 0 if there is no such
// account.
func (f *fixture) balance(address solana.PublicKey) uint64 {
	f.t.Helper()
	ok, err := f.control.HasAccount(f.db, address)
	assert.Nil(f.t, err)
	if !ok {
		return 0
	}
	amount, err := f.control.Balance(f.db, address)
	assert.Nil(f.t, err)
	return amount
}

func (f *fixture) exists(address solana.PublicKey) bool {
	f.t.Helper()
	ok, err := f.control.HasAccount(f.db, address)
	assert.Nil(f.t, err)
	return ok
}

func (f *fixture) hasEscrow(address solana.PublicKey) bool {
	f.t.Helper()
	ok, err := NewBucket().Has(f.db, address[:])
	assert.Nil(f.t, err)
	return ok
}

// assertConserved checks that the supply of mint is fully held by given
// accounts.
func (f *fixture) assertConserved(mint solana.PublicKey, accounts ...solana.PublicKey) {
	f.t.Helper()
	m, err := f.control.GetMint(f.db, mint)
	assert.Nil(f.t, err)
	var total uint64
	for _, a := range accounts {
		total += f.balance(a)
	}
	assert.Equal(f.t, m.Supply, total)
}

func TestSwap(t *testing.T) {
	f := newFixture(t, 10000, 10000)

	addr, vault := f.open(7, 1000, 500)
	want, bump, err := EscrowAddress(DefaultProgramID, f.initializer, 7)
	assert.Nil(t, err)
	assert.Equal(t, want, addr)

	e, err := NewBucket().Get(f.db, addr)
	assert.Nil(t, err)
	assert.Equal(t, &Escrow{
		Seed:              7,
		Bump:              bump,
		Initializer:       f.initializer,
		MintA:             f.mintA,
		MintB:             f.mintB,
		InitializerAmount: 1000,
		TakerAmount:       500,
	}, e)
	assert.Equal(t, uint64(9000), f.balance(f.initializerA))
	assert.Equal(t, uint64(1000), f.balance(vault))
	f.assertConserved(f.mintA, f.initializerA, vault, f.takerA)

	_, err = f.deliver(f.exchangeMsg(addr, vault), f.taker)
	assert.Nil(t, err)

	assert.Equal(t, uint64(9000), f.balance(f.initializerA))
	assert.Equal(t, uint64(500), f.balance(f.initializerB))
	assert.Equal(t, uint64(1000), f.balance(f.takerA))
	assert.Equal(t, uint64(9500), f.balance(f.takerB))
	assert.Equal(t, false, f.exists(vault))
	assert.Equal(t, false, f.hasEscrow(addr))
	f.assertConserved(f.mintA, f.initializerA, vault, f.takerA)
	f.assertConserved(f.mintB, f.initializerB, f.takerB)
}

func TestExchangeInsufficientFunds(t *testing.T) {
	f := newFixture(t, 10000, 400)
	addr, vault := f.open(7, 1000, 500)

	_, err := f.deliver(f.exchangeMsg(addr, vault), f.taker)
	assert.IsErr(t, errors.ErrInsufficientFunds, err)

	// nothing moved and nothing was created
	assert.Equal(t, true, f.hasEscrow(addr))
	assert.Equal(t, uint64(1000), f.balance(vault))
	assert.Equal(t, uint64(9000), f.balance(f.initializerA))
	assert.Equal(t, uint64(400), f.balance(f.takerB))
	assert.Equal(t, false, f.exists(f.initializerB))
	assert.Equal(t, false, f.exists(f.takerA))
}

func TestCancel(t *testing.T) {
	f := newFixture(t, 10000, 10000)
	addr, vault := f.open(1, 2500, 10)

	_, err := f.deliver(f.cancelMsg(addr, vault), f.initializer)
	assert.Nil(t, err)
	assert.Equal(t, uint64(10000), f.balance(f.initializerA))
	assert.Equal(t, false, f.exists(vault))
	assert.Equal(t, false, f.hasEscrow(addr))
	f.assertConserved(f.mintA, f.initializerA, vault)

	// a closed escrow can be opened again with the same seed
	again, vault2 := f.open(1, 100, 10)
	assert.Equal(t, addr, again)
	assert.Equal(t, vault, vault2)
	assert.Equal(t, uint64(100), f.balance(vault))
}

func TestCancelCreatesDestination(t *testing.T) {
	f := newFixture(t, 10000, 10000)
	addr, vault := f.open(1, 2500, 10)

	// the initializer drained its account and closed it
	drain := &token.TransferMsg{Source: f.initializerA, Mint: f.mintA, Destination: f.takerA, Amount: 7500, Decimals: 6}
	token.RegisterRoutes(f.r, f.auth, f.control)
	_, err := f.deliver(&token.CreateAccountMsg{Owner: f.taker, Mint: f.mintA}, f.taker)
	assert.Nil(t, err)
	_, err = f.deliver(drain, f.initializer)
	assert.Nil(t, err)
	initAuth, err := token.SignedBy(f.auth.SetSigners(context.Background(), f.initializer), f.auth, f.initializer)
	assert.Nil(t, err)
	assert.Nil(t, f.control.CloseAccount(f.db, initAuth, f.initializerA))

	_, err = f.deliver(f.cancelMsg(addr, vault), f.initializer)
	assert.Nil(t, err)
	assert.Equal(t, uint64(2500), f.balance(f.initializerA))
}

func TestTerminalPathsAreExclusive(t *testing.T) {
	cases := map[string]struct {
		first  func(f *fixture, addr, vault solana.PublicKey) (*weave.DeliverResult, error)
		second func(f *fixture, addr, vault solana.PublicKey) (*weave.DeliverResult, error)
	}{
		"cancel then exchange": {
			first: func(f *fixture, addr, vault solana.PublicKey) (*weave.DeliverResult, error) {
				return f.deliver(f.cancelMsg(addr, vault), f.initializer)
			},
			second: func(f *fixture, addr, vault solana.PublicKey) (*weave.DeliverResult, error) {
				return f.deliver(f.exchangeMsg(addr, vault), f.taker)
			},
		},
		"exchange then cancel": {
			first: func(f *fixture, addr, vault solana.PublicKey) (*weave.DeliverResult, error) {
				return f.deliver(f.exchangeMsg(addr, vault), f.taker)
			},
			second: func(f *fixture, addr, vault solana.PublicKey) (*weave.DeliverResult, error) {
				return f.deliver(f.cancelMsg(addr, vault), f.initializer)
			},
		},
		"exchange twice": {
			first: func(f *fixture, addr, vault solana.PublicKey) (*weave.DeliverResult, error) {
				return f.deliver(f.exchangeMsg(addr, vault), f.taker)
			},
			second: func(f *fixture, addr, vault solana.PublicKey) (*weave.DeliverResult, error) {
				return f.deliver(f.exchangeMsg(addr, vault), f.taker)
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			f := newFixture(t, 10000, 10000)
			addr, vault := f.open(3, 1000, 500)
			_, err := tc.first(f, addr, vault)
			assert.Nil(t, err)
			_, err = tc.second(f, addr, vault)
			assert.IsErr(t, errors.ErrNotFound, err)

			f.assertConserved(f.mintA, f.initializerA, vault, f.takerA)
			f.assertConserved(f.mintB, f.initializerB, f.takerB)
		})
	}
}

func TestOpen(t *testing.T) {
	stranger := weavetest.NewAddress()

	cases := map[string]struct {
		prepare func(f *fixture)
		msg     func(f *fixture) *OpenMsg
		signer  func(f *fixture) solana.PublicKey
		wantErr *errors.Error
	}{
		"success": {
			msg: func(f *fixture) *OpenMsg { return f.openMsg(1, 1000, 500) },
		},
		"whole balance": {
			msg: func(f *fixture) *OpenMsg { return f.openMsg(1, 10000, 500) },
		},
		"not signed by the initializer": {
			msg:     func(f *fixture) *OpenMsg { return f.openMsg(1, 1000, 500) },
			signer:  func(f *fixture) solana.PublicKey { return f.taker },
			wantErr: errors.ErrUnauthorized,
		},
		"zero initializer amount": {
			msg:     func(f *fixture) *OpenMsg { return f.openMsg(1, 0, 500) },
			wantErr: errors.ErrAmount,
		},
		"zero taker amount": {
			msg:     func(f *fixture) *OpenMsg { return f.openMsg(1, 1000, 0) },
			wantErr: errors.ErrAmount,
		},
		"same mint on both legs": {
			msg: func(f *fixture) *OpenMsg {
				m := f.openMsg(1, 1000, 500)
				m.MintB = m.MintA
				return m
			},
			wantErr: errors.ErrInput,
		},
		"missing source": {
			msg: func(f *fixture) *OpenMsg {
				m := f.openMsg(1, 1000, 500)
				m.InitializerAccountA = solana.PublicKey{}
				return m
			},
			wantErr: errors.ErrEmpty,
		},
		"unknown mint": {
			msg: func(f *fixture) *OpenMsg {
				m := f.openMsg(1, 1000, 500)
				m.MintB = stranger
				return m
			},
			wantErr: errors.ErrNotFound,
		},
		"unknown source": {
			msg: func(f *fixture) *OpenMsg {
				m := f.openMsg(1, 1000, 500)
				m.InitializerAccountA = stranger
				return m
			},
			wantErr: errors.ErrNotFound,
		},
		"source owned by somebody else": {
			msg: func(f *fixture) *OpenMsg {
				m := f.openMsg(1, 1000, 500)
				m.InitializerAccountA = f.takerB
				return m
			},
			wantErr: errors.ErrUnauthorized,
		},
		"source of the wrong mint": {
			prepare: func(f *fixture) {
				_, err := f.control.InitAccount(f.db, f.initializerB, f.mintB, f.initializer)
				assert.Nil(f.t, err)
			},
			msg: func(f *fixture) *OpenMsg {
				m := f.openMsg(1, 1000, 500)
				m.InitializerAccountA = f.initializerB
				return m
			},
			wantErr: errors.ErrAssetMismatch,
		},
		"insufficient funds": {
			msg:     func(f *fixture) *OpenMsg { return f.openMsg(1, 10001, 500) },
			wantErr: errors.ErrInsufficientFunds,
		},
		"escrow exists": {
			prepare: func(f *fixture) { f.open(1, 10, 10) },
			msg:     func(f *fixture) *OpenMsg { return f.openMsg(1, 1000, 500) },
			wantErr: errors.ErrDuplicate,
		},
		"empty vault exists": {
			prepare: func(f *fixture) {
				addr, _, err := EscrowAddress(DefaultProgramID, f.initializer, 1)
				assert.Nil(f.t, err)
				vault, err := VaultAddress(addr, f.mintA)
				assert.Nil(f.t, err)
				_, err = f.control.InitAccount(f.db, vault, f.mintA, addr)
				assert.Nil(f.t, err)
			},
			msg: func(f *fixture) *OpenMsg { return f.openMsg(1, 1000, 500) },
		},
		"funded vault exists": {
			prepare: func(f *fixture) {
				addr, _, err := EscrowAddress(DefaultProgramID, f.initializer, 1)
				assert.Nil(f.t, err)
				vault, err := VaultAddress(addr, f.mintA)
				assert.Nil(f.t, err)
				_, err = f.control.InitAccount(f.db, vault, f.mintA, addr)
				assert.Nil(f.t, err)
				auth, err := token.SignedBy(f.auth.SetSigners(context.Background(), f.authority), f.auth, f.authority)
				assert.Nil(f.t, err)
				assert.Nil(f.t, f.control.MintTo(f.db, auth, f.mintA, vault, 1))
			},
			msg: func(f *fixture) *OpenMsg { return f.openMsg(1, 1000, 500) },
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			f := newFixture(t, 10000, 10000)
			if tc.prepare != nil {
				tc.prepare(f)
			}
			signer := f.initializer
			if tc.signer != nil {
				signer = tc.signer(f)
			}
			before := f.balance(f.initializerA)

			msg := tc.msg(f)
			addr, _, err := EscrowAddress(DefaultProgramID, msg.Initializer, msg.Seed)
			assert.Nil(t, err)
			vault, err := VaultAddress(addr, msg.MintA)
			assert.Nil(t, err)
			hadEscrow, hadVault := f.hasEscrow(addr), f.exists(vault)
			vaultBefore := f.balance(vault)

			res, err := f.deliver(msg, signer)
			assert.IsErr(t, tc.wantErr, err)
			if tc.wantErr != nil {
				assert.Equal(t, before, f.balance(f.initializerA))
				assert.Equal(t, hadEscrow, f.hasEscrow(addr))
				assert.Equal(t, hadVault, f.exists(vault))
				assert.Equal(t, vaultBefore, f.balance(vault))
				return
			}

			assert.EqualBytes(t, addr.Bytes(), res.Data)
			assert.Equal(t, true, f.hasEscrow(addr))
			assert.Equal(t, before-msg.InitializerAmount, f.balance(f.initializerA))
			assert.Equal(t, vaultBefore+msg.InitializerAmount, f.balance(vault))
		})
	}
}

func TestCancelAuthorization(t *testing.T) {
	cases := map[string]struct {
		msg     func(f *fixture, addr, vault solana.PublicKey) *CancelMsg
		signer  func(f *fixture) solana.PublicKey
		wantErr *errors.Error
	}{
		"taker claims to be the initializer": {
			msg: func(f *fixture, addr, vault solana.PublicKey) *CancelMsg {
				m := f.cancelMsg(addr, vault)
				m.Initializer = f.taker
				m.InitializerAccountA = f.takerA
				return m
			},
			signer:  func(f *fixture) solana.PublicKey { return f.taker },
			wantErr: errors.ErrUnauthorized,
		},
		"initializer did not sign": {
			msg:     func(f *fixture, addr, vault solana.PublicKey) *CancelMsg { return f.cancelMsg(addr, vault) },
			signer:  func(f *fixture) solana.PublicKey { return f.taker },
			wantErr: errors.ErrUnauthorized,
		},
		"unknown escrow": {
			msg: func(f *fixture, addr, vault solana.PublicKey) *CancelMsg {
				return f.cancelMsg(weavetest.NewAddress(), vault)
			},
			wantErr: errors.ErrNotFound,
		},
		"wrong vault": {
			msg: func(f *fixture, addr, vault solana.PublicKey) *CancelMsg {
				return f.cancelMsg(addr, f.initializerA)
			},
			wantErr: errors.ErrAssetMismatch,
		},
		"destination of the wrong mint": {
			msg: func(f *fixture, addr, vault solana.PublicKey) *CancelMsg {
				m := f.cancelMsg(addr, vault)
				m.InitializerAccountA = f.takerB
				return m
			},
			wantErr: errors.ErrAssetMismatch,
		},
		"destination owned by somebody else": {
			msg: func(f *fixture, addr, vault solana.PublicKey) *CancelMsg {
				m := f.cancelMsg(addr, vault)
				m.InitializerAccountA = f.takerA
				return m
			},
			wantErr: errors.ErrUnauthorized,
		},
		"missing destination that is not associated": {
			msg: func(f *fixture, addr, vault solana.PublicKey) *CancelMsg {
				m := f.cancelMsg(addr, vault)
				m.InitializerAccountA = weavetest.NewAddress()
				return m
			},
			wantErr: errors.ErrNotFound,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			f := newFixture(t, 10000, 10000)
			addr, vault := f.open(9, 1000, 500)
			// the taker owns an account of mint A
			_, err := f.control.InitAccount(f.db, f.takerA, f.mintA, f.taker)
			assert.Nil(t, err)

			signer := f.initializer
			if tc.signer != nil {
				signer = tc.signer(f)
			}
			_, err = f.deliver(tc.msg(f, addr, vault), signer)
			assert.IsErr(t, tc.wantErr, err)

			assert.Equal(t, true, f.hasEscrow(addr))
			assert.Equal(t, uint64(1000), f.balance(vault))
			assert.Equal(t, uint64(0), f.balance(f.takerA))
		})
	}
}

func TestExchangeAuthorization(t *testing.T) {
	cases := map[string]struct {
		msg     func(f *fixture, addr, vault solana.PublicKey) *ExchangeMsg
		signer  func(f *fixture) solana.PublicKey
		wantErr *errors.Error
	}{
		"taker did not sign": {
			msg:     func(f *fixture, addr, vault solana.PublicKey) *ExchangeMsg { return f.exchangeMsg(addr, vault) },
			signer:  func(f *fixture) solana.PublicKey { return f.initializer },
			wantErr: errors.ErrUnauthorized,
		},
		"source owned by somebody else": {
			msg: func(f *fixture, addr, vault solana.PublicKey) *ExchangeMsg {
				m := f.exchangeMsg(addr, vault)
				m.Taker = f.initializer
				return m
			},
			signer:  func(f *fixture) solana.PublicKey { return f.initializer },
			wantErr: errors.ErrUnauthorized,
		},
		"source of the wrong mint": {
			msg: func(f *fixture, addr, vault solana.PublicKey) *ExchangeMsg {
				m := f.exchangeMsg(addr, vault)
				m.TakerAccountB = f.takerA
				return m
			},
			wantErr: errors.ErrAssetMismatch,
		},
		"vault as taker destination": {
			msg: func(f *fixture, addr, vault solana.PublicKey) *ExchangeMsg {
				m := f.exchangeMsg(addr, vault)
				m.TakerAccountA = vault
				return m
			},
			wantErr: errors.ErrUnauthorized,
		},
		"initializer destination of the wrong mint": {
			msg: func(f *fixture, addr, vault solana.PublicKey) *ExchangeMsg {
				m := f.exchangeMsg(addr, vault)
				m.InitializerAccountB = f.initializerA
				return m
			},
			wantErr: errors.ErrAssetMismatch,
		},
		"initializer destination that is not associated": {
			msg: func(f *fixture, addr, vault solana.PublicKey) *ExchangeMsg {
				m := f.exchangeMsg(addr, vault)
				m.InitializerAccountB = weavetest.NewAddress()
				return m
			},
			wantErr: errors.ErrNotFound,
		},
		"wrong vault": {
			msg: func(f *fixture, addr, vault solana.PublicKey) *ExchangeMsg {
				return f.exchangeMsg(addr, f.takerB)
			},
			wantErr: errors.ErrAssetMismatch,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			f := newFixture(t, 10000, 10000)
			addr, vault := f.open(9, 1000, 500)
			// the taker owns an empty account of mint A
			_, err := f.control.InitAccount(f.db, f.takerA, f.mintA, f.taker)
			assert.Nil(t, err)

			signer := f.taker
			if tc.signer != nil {
				signer = tc.signer(f)
			}
			_, err = f.deliver(tc.msg(f, addr, vault), signer)
			assert.IsErr(t, tc.wantErr, err)

			assert.Equal(t, true, f.hasEscrow(addr))
			assert.Equal(t, uint64(1000), f.balance(vault))
			assert.Equal(t, uint64(10000), f.balance(f.takerB))
			assert.Equal(t, false, f.exists(f.initializerB))
		})
	}
}

func TestSelfExchange(t *testing.T) {
	f := newFixture(t, 10000, 10000)
	addr, vault := f.open(5, 1000, 500)

	// the initializer takes its own offer, paying mint B from its own
	// associated account
	_, err := f.control.InitAccount(f.db, f.initializerB, f.mintB, f.initializer)
	assert.Nil(t, err)
	msg := &ExchangeMsg{
		Taker:               f.initializer,
		TakerAccountB:       f.initializerB,
		TakerAccountA:       f.initializerA,
		InitializerAccountB: f.initializerB,
		Escrow:              addr,
		Vault:               vault,
	}
	_, err = f.deliver(msg, f.initializer)
	assert.IsErr(t, errors.ErrInsufficientFunds, err)

	auth, err := token.SignedBy(f.auth.SetSigners(context.Background(), f.authority), f.auth, f.authority)
	assert.Nil(t, err)
	assert.Nil(t, f.control.MintTo(f.db, auth, f.mintB, f.initializerB, 500))
	_, err = f.deliver(msg, f.initializer)
	assert.Nil(t, err)
	assert.Equal(t, uint64(10000), f.balance(f.initializerA))
	assert.Equal(t, uint64(500), f.balance(f.initializerB))
	assert.Equal(t, false, f.hasEscrow(addr))
}

func TestQuery(t *testing.T) {
	f := newFixture(t, 10000, 10000)
	first, _ := f.open(1, 10, 10)
	second, _ := f.open(2, 10, 10)

	qr := weave.NewQueryRouter()
	RegisterQuery(qr)

	models, err := qr.Handler("/escrows/initializer").Query(f.db, weave.KeyQueryMod, f.initializer.Bytes())
	assert.Nil(t, err)
	assert.Equal(t, 2, len(models))

	models, err = qr.Handler("/escrows").Query(f.db, weave.KeyQueryMod, second.Bytes())
	assert.Nil(t, err)
	assert.Equal(t, 1, len(models))
	var e Escrow
	assert.Nil(t, e.Unmarshal(models[0].Value))
	assert.Equal(t, uint64(2), e.Seed)

	addrs, err := NewBucket().ByInitializer(f.db, f.initializer)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(addrs))
	seen := map[solana.PublicKey]bool{addrs[0]: true, addrs[1]: true}
	assert.Equal(t, true, seen[first] && seen[second])

	_, err = f.deliver(f.exchangeMsg(first, f.associated(first, f.mintA)), f.taker)
	assert.Nil(t, err)
	addrs, err = NewBucket().ByInitializer(f.db, f.initializer)
	assert.Nil(t, err)
	assert.Equal(t, []solana.PublicKey{second}, addrs)
}

func TestSquattersCannotBlockEscrows(t *testing.T) {
	f := newFixture(t, 10000, 10000)
	token.RegisterRoutes(f.r, f.auth, f.control)
	mallory := weavetest.NewAddress()

	addr, _, err := EscrowAddress(DefaultProgramID, f.initializer, 7)
	assert.Nil(t, err)
	vault, err := VaultAddress(addr, f.mintA)
	assert.Nil(t, err)

	// associated accounts cannot sign, nobody can register a mint there
	for _, target := range []solana.PublicKey{vault, f.initializerB} {
		_, err := f.deliver(&token.CreateMintMsg{Mint: target, MintAuthority: mallory, Decimals: 0}, mallory)
		assert.IsErr(t, errors.ErrUnauthorized, err)
		_, err = f.control.CreateMint(f.db, target, mallory, 0)
		assert.Nil(t, err)
	}

	// creating and funding the vault ahead of time is allowed
	malloryA := f.associated(mallory, f.mintA)
	_, err = f.control.InitAccount(f.db, malloryA, f.mintA, mallory)
	assert.Nil(t, err)
	mintAuth, err := token.SignedBy(f.auth.SetSigners(context.Background(), f.authority), f.auth, f.authority)
	assert.Nil(t, err)
	assert.Nil(t, f.control.MintTo(f.db, mintAuth, f.mintA, malloryA, 1))
	_, err = f.deliver(&token.CreateAccountMsg{Owner: addr, Mint: f.mintA}, mallory)
	assert.Nil(t, err)
	_, err = f.deliver(&token.TransferMsg{Source: malloryA, Mint: f.mintA, Destination: vault, Amount: 1, Decimals: 6}, mallory)
	assert.Nil(t, err)

	gotAddr, gotVault := f.open(7, 1000, 500)
	assert.Equal(t, addr, gotAddr)
	assert.Equal(t, vault, gotVault)
	assert.Equal(t, uint64(1001), f.balance(vault))

	_, err = f.deliver(f.exchangeMsg(addr, vault), f.taker)
	assert.Nil(t, err)
	assert.Equal(t, uint64(1001), f.balance(f.takerA))
	assert.Equal(t, uint64(500), f.balance(f.initializerB))
	assert.Equal(t, false, f.hasEscrow(addr))
	assert.Equal(t, false, f.exists(vault))
}

// failingDeposit is a token controller that refuses every transfer.
type failingDeposit struct {
	token.Controller
}

func (failingDeposit) TransferChecked(db weave.KVStore, auth token.Authority, src, mint, dest solana.PublicKey, amount uint64, decimals uint8) error {
	return errors.Wrap(errors.ErrDatabase, "transfer refused")
}

func TestOpenDeliverFailureLeavesNothing(t *testing.T) {
	f := newFixture(t, 10000, 10000)
	f.r = router{}
	RegisterRoutes(f.r, f.auth, failingDeposit{Controller: f.control})

	msg := f.openMsg(5, 1000, 500)
	addr, _, err := EscrowAddress(DefaultProgramID, f.initializer, 5)
	assert.Nil(t, err)
	vault, err := VaultAddress(addr, f.mintA)
	assert.Nil(t, err)

	// check passes, the failure happens after the record and the vault
	// were written
	_, err = f.r[msg.Path()].Check(f.auth.SetSigners(context.Background(), f.initializer), f.db.CacheWrap(), &weavetest.Tx{Msg: msg})
	assert.Nil(t, err)
	_, err = f.deliver(msg, f.initializer)
	assert.IsErr(t, errors.ErrDatabase, err)

	assert.Equal(t, false, f.hasEscrow(addr))
	assert.Equal(t, false, f.exists(vault))
	assert.Equal(t, uint64(10000), f.balance(f.initializerA))
}
