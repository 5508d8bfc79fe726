package app

import (
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/app"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/weavetest"
	"github.com/iov-one/weave-escrow/weavetest/assert"
	"github.com/iov-one/weave-escrow/x/escrow"
	"github.com/iov-one/weave-escrow/x/sigs"
	"github.com/iov-one/weave-escrow/x/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

const chainID = "swap-test"

// ledger runs the full swapd stack over an in memory store. The
// initializer owns 1000 of mint A and the taker owns 500 of mint B.
type ledger struct {
	t       *testing.T
	l       *app.Ledger
	metrics *app.Metrics

	initializer, taker solana.PrivateKey
	mintA, mintB       solana.PublicKey
	programID          solana.PublicKey
}

func newLedger(t *testing.T) *ledger {
	t.Helper()
	metrics, err := app.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	l, err := Application("", metrics, log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	s := &ledger{
		t:           t,
		l:           l,
		metrics:     metrics,
		initializer: weavetest.NewKey(),
		taker:       weavetest.NewKey(),
		mintA:       weavetest.NewAddress(),
		mintB:       weavetest.NewAddress(),
		programID:   weavetest.NewAddress(),
	}
	authority := weavetest.NewAddress()
	gen, err := GenesisTemplate(chainID, s.programID, token.Genesis{
		Mints: []token.Mint{
			{Address: s.mintA, MintAuthority: authority, Decimals: 6},
			{Address: s.mintB, MintAuthority: authority, Decimals: 9},
		},
		Accounts: []token.GenesisAccount{
			{Owner: s.initializer.PublicKey(), Mint: s.mintA, Amount: 1000},
			{Owner: s.taker.PublicKey(), Mint: s.mintB, Amount: 500},
		},
	})
	require.NoError(t, err)
	require.NoError(t, l.InitChain(*gen, Initializers()))
	return s
}

// signed returns the serialized msg signed by key with its current
// sequence.
func (s *ledger) signed(key solana.PrivateKey, msg weave.Msg) []byte {
	s.t.Helper()
	tx := NewTx(msg)
	require.NoError(s.t, tx.Sign(key, chainID, s.sequence(key.PublicKey())))
	raw, err := tx.Marshal()
	require.NoError(s.t, err)
	return raw
}

func (s *ledger) deliver(key solana.PrivateKey, msg weave.Msg) (*weave.DeliverResult, error) {
	s.t.Helper()
	return s.l.DeliverTx(s.signed(key, msg))
}

func (s *ledger) sequence(pk solana.PublicKey) uint64 {
	s.t.Helper()
	models, err := s.l.Query("/auth", weave.KeyQueryMod, pk[:])
	require.NoError(s.t, err)
	if len(models) == 0 {
		return 0
	}
	var u sigs.UserData
	require.NoError(s.t, u.Unmarshal(models[0].Value))
	return u.Sequence
}

// balance returns the amount held by address, or -1 if it does not exist.
func (s *ledger) balance(address solana.PublicKey) int64 {
	s.t.Helper()
	models, err := s.l.Query("/tokens/accounts", weave.KeyQueryMod, address[:])
	require.NoError(s.t, err)
	if len(models) == 0 {
		return -1
	}
	var a token.Account
	require.NoError(s.t, a.Unmarshal(models[0].Value))
	return int64(a.Amount)
}

func (s *ledger) escrows() int {
	s.t.Helper()
	models, err := s.l.Query("/escrows", weave.PrefixQueryMod, nil)
	require.NoError(s.t, err)
	return len(models)
}

func (s *ledger) associated(owner, mint solana.PublicKey) solana.PublicKey {
	s.t.Helper()
	addr, err := token.AssociatedAddress(owner, mint)
	require.NoError(s.t, err)
	return addr
}

func (s *ledger) open(seed uint64) (address, vault solana.PublicKey) {
	s.t.Helper()
	res, err := s.deliver(s.initializer, &escrow.OpenMsg{
		Initializer:         s.initializer.PublicKey(),
		MintA:               s.mintA,
		MintB:               s.mintB,
		InitializerAccountA: s.associated(s.initializer.PublicKey(), s.mintA),
		Seed:                seed,
		InitializerAmount:   1000,
		TakerAmount:         500,
	})
	require.NoError(s.t, err)

	address, _, err = escrow.EscrowAddress(s.programID, s.initializer.PublicKey(), seed)
	require.NoError(s.t, err)
	require.Equal(s.t, address.Bytes(), res.Data)
	vault, err = escrow.VaultAddress(address, s.mintA)
	require.NoError(s.t, err)
	return address, vault
}

func (s *ledger) cancelMsg(address, vault solana.PublicKey) *escrow.CancelMsg {
	return &escrow.CancelMsg{
		Initializer:         s.initializer.PublicKey(),
		Escrow:              address,
		Vault:               vault,
		InitializerAccountA: s.associated(s.initializer.PublicKey(), s.mintA),
	}
}

func (s *ledger) exchangeMsg(address, vault solana.PublicKey) *escrow.ExchangeMsg {
	return &escrow.ExchangeMsg{
		Taker:               s.taker.PublicKey(),
		TakerAccountB:       s.associated(s.taker.PublicKey(), s.mintB),
		TakerAccountA:       s.associated(s.taker.PublicKey(), s.mintA),
		InitializerAccountB: s.associated(s.initializer.PublicKey(), s.mintB),
		Escrow:              address,
		Vault:               vault,
	}
}

func TestSwapThroughLedger(t *testing.T) {
	s := newLedger(t)
	address, vault := s.open(42)

	assert.Equal(t, int64(0), s.balance(s.associated(s.initializer.PublicKey(), s.mintA)))
	assert.Equal(t, int64(1000), s.balance(vault))
	assert.Equal(t, 1, s.escrows())

	_, err := s.deliver(s.taker, s.exchangeMsg(address, vault))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), s.balance(s.associated(s.taker.PublicKey(), s.mintA)))
	assert.Equal(t, int64(0), s.balance(s.associated(s.taker.PublicKey(), s.mintB)))
	assert.Equal(t, int64(500), s.balance(s.associated(s.initializer.PublicKey(), s.mintB)))
	assert.Equal(t, int64(-1), s.balance(vault))
	assert.Equal(t, 0, s.escrows())

	// both signers consumed one sequence
	assert.Equal(t, uint64(1), s.sequence(s.initializer.PublicKey()))
	assert.Equal(t, uint64(1), s.sequence(s.taker.PublicKey()))

	deliverOK := testutil.ToFloat64(s.metrics.TxCounter().WithLabelValues("deliver", "escrow/exchange", "0"))
	assert.Equal(t, float64(1), deliverOK)
}

func TestCancelThroughLedger(t *testing.T) {
	s := newLedger(t)
	address, vault := s.open(1)

	// only the initializer may cancel
	_, err := s.deliver(s.taker, s.cancelMsg(address, vault))
	assert.IsErr(t, errors.ErrUnauthorized, err)
	// the failed transaction did not consume the sequence
	assert.Equal(t, uint64(0), s.sequence(s.taker.PublicKey()))

	_, err = s.deliver(s.initializer, s.cancelMsg(address, vault))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), s.balance(s.associated(s.initializer.PublicKey(), s.mintA)))
	assert.Equal(t, 0, s.escrows())

	// settled escrows cannot be exchanged
	_, err = s.deliver(s.taker, s.exchangeMsg(address, vault))
	assert.IsErr(t, errors.ErrNotFound, err)
}

func TestReplayIsRejected(t *testing.T) {
	s := newLedger(t)
	raw := s.signed(s.initializer, &escrow.OpenMsg{
		Initializer:         s.initializer.PublicKey(),
		MintA:               s.mintA,
		MintB:               s.mintB,
		InitializerAccountA: s.associated(s.initializer.PublicKey(), s.mintA),
		Seed:                3,
		InitializerAmount:   10,
		TakerAmount:         10,
	})
	_, err := s.l.DeliverTx(raw)
	require.NoError(t, err)
	_, err = s.l.DeliverTx(raw)
	assert.IsErr(t, sigs.ErrInvalidSequence, err)
}

func TestUnsignedIsRejected(t *testing.T) {
	s := newLedger(t)
	raw, err := NewTx(s.cancelMsg(weavetest.NewAddress(), weavetest.NewAddress())).Marshal()
	require.NoError(t, err)
	_, err = s.l.DeliverTx(raw)
	assert.IsErr(t, errors.ErrUnauthorized, err)
}

// Cancel and exchange of the same escrow race against each other. The
// ledger serializes them, so exactly one settles the escrow.
func TestConcurrentSettlement(t *testing.T) {
	for i := 0; i < 10; i++ {
		s := newLedger(t)
		address, vault := s.open(uint64(i))

		txs := [][]byte{
			s.signed(s.initializer, s.cancelMsg(address, vault)),
			s.signed(s.taker, s.exchangeMsg(address, vault)),
		}
		var (
			wg   sync.WaitGroup
			errs = make([]error, len(txs))
		)
		for j, raw := range txs {
			wg.Add(1)
			go func(j int, raw []byte) {
				defer wg.Done()
				_, errs[j] = s.l.DeliverTx(raw)
			}(j, raw)
		}
		wg.Wait()

		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.IsErr(t, errors.ErrNotFound, err)
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 0, s.escrows())
		assert.Equal(t, int64(-1), s.balance(vault))

		// tokens are conserved whichever path won
		var totalA, totalB int64
		for _, owner := range []solana.PublicKey{s.initializer.PublicKey(), s.taker.PublicKey()} {
			if b := s.balance(s.associated(owner, s.mintA)); b > 0 {
				totalA += b
			}
			if b := s.balance(s.associated(owner, s.mintB)); b > 0 {
				totalB += b
			}
		}
		assert.Equal(t, int64(1000), totalA)
		assert.Equal(t, int64(500), totalB)
	}
}

func TestConcurrentOpen(t *testing.T) {
	s := newLedger(t)
	msg := &escrow.OpenMsg{
		Initializer:         s.initializer.PublicKey(),
		MintA:               s.mintA,
		MintB:               s.mintB,
		InitializerAccountA: s.associated(s.initializer.PublicKey(), s.mintA),
		Seed:                9,
		InitializerAmount:   100,
		TakerAmount:         1,
	}
	// same seed, different sequences: only one escrow can exist
	const workers = 5
	txs := make([][]byte, workers)
	for i := range txs {
		tx := NewTx(msg)
		require.NoError(t, tx.Sign(s.initializer, chainID, uint64(i)))
		raw, err := tx.Marshal()
		require.NoError(t, err)
		txs[i] = raw
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, raw := range txs {
		wg.Add(1)
		go func(raw []byte) {
			defer wg.Done()
			_, err := s.l.DeliverTx(raw)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			}
		}(raw)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, s.escrows())
	assert.Equal(t, int64(900), s.balance(s.associated(s.initializer.PublicKey(), s.mintA)))
}
