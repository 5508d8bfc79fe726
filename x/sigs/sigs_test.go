package sigs

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/store"
	"github.com/iov-one/weave-escrow/weavetest"
	"github.com/iov-one/weave-escrow/weavetest/assert"
)

const chainID = "swap-testnet"

// signedTx is a weave.Tx carrying arbitrary sign bytes.
type signedTx struct {
	weavetest.Tx
	payload []byte
	sigs    []*Signature
}

func (tx *signedTx) GetSignBytes() ([]byte, error) { return tx.payload, nil }

func (tx *signedTx) GetSignatures() []*Signature { return tx.sigs }

func sign(t testing.TB, key solana.PrivateKey, tx *signedTx, seq uint64) *Signature {
	t.Helper()
	sig, err := SignTx(key, tx, chainID, seq)
	assert.Nil(t, err)
	return sig
}

func TestVerifyTxSignatures(t *testing.T) {
	alice, bob := weavetest.NewKey(), weavetest.NewKey()
	payload := []byte("escrow/open")

	cases := map[string]struct {
		sigs        func(tx *signedTx) []*Signature
		wantErr     *errors.Error
		wantSigners []solana.PublicKey
	}{
		"no signatures": {
			sigs: func(*signedTx) []*Signature { return nil },
		},
		"one signer": {
			sigs: func(tx *signedTx) []*Signature {
				return []*Signature{sign(t, alice, tx, 0)}
			},
			wantSigners: []solana.PublicKey{alice.PublicKey()},
		},
		"two signers": {
			sigs: func(tx *signedTx) []*Signature {
				return []*Signature{sign(t, alice, tx, 0), sign(t, bob, tx, 0)}
			},
			wantSigners: []solana.PublicKey{alice.PublicKey(), bob.PublicKey()},
		},
		"wrong sequence": {
			sigs: func(tx *signedTx) []*Signature {
				return []*Signature{sign(t, alice, tx, 3)}
			},
			wantErr: ErrInvalidSequence,
		},
		"signature of other content": {
			sigs: func(tx *signedTx) []*Signature {
				other := &signedTx{payload: []byte("escrow/cancel")}
				return []*Signature{sign(t, alice, other, 0)}
			},
			wantErr: errors.ErrUnauthorized,
		},
		"pubkey swapped": {
			sigs: func(tx *signedTx) []*Signature {
				sig := sign(t, alice, tx, 0)
				sig.PubKey = bob.PublicKey()
				return []*Signature{sig}
			},
			wantErr: errors.ErrUnauthorized,
		},
		"missing pubkey": {
			sigs: func(tx *signedTx) []*Signature {
				sig := sign(t, alice, tx, 0)
				sig.PubKey = solana.PublicKey{}
				return []*Signature{sig}
			},
			wantErr: errors.ErrUnauthorized,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			tx := &signedTx{payload: payload}
			tx.sigs = tc.sigs(tx)

			signers, err := VerifyTxSignatures(db, tx, chainID)
			if tc.wantErr != nil {
				assert.IsErr(t, tc.wantErr, err)
				return
			}
			assert.Nil(t, err)
			assert.Equal(t, len(tc.wantSigners), len(signers))
			for i, s := range tc.wantSigners {
				assert.Equal(t, s, signers[i])
			}
		})
	}
}

func TestReplayProtection(t *testing.T) {
	db := store.MemStore()
	key := weavetest.NewKey()
	tx := &signedTx{payload: []byte("escrow/exchange")}
	tx.sigs = []*Signature{sign(t, key, tx, 0)}

	_, err := VerifyTxSignatures(db, tx, chainID)
	assert.Nil(t, err)

	// the same signature cannot be used twice
	_, err = VerifyTxSignatures(db, tx, chainID)
	assert.IsErr(t, ErrInvalidSequence, err)

	seq, err := NextSequence(db, key.PublicKey())
	assert.Nil(t, err)
	assert.Equal(t, uint64(1), seq)

	tx.sigs = []*Signature{sign(t, key, tx, 1)}
	_, err = VerifyTxSignatures(db, tx, chainID)
	assert.Nil(t, err)
}

func TestDuplicatedSigner(t *testing.T) {
	db := store.MemStore()
	key := weavetest.NewKey()
	tx := &signedTx{payload: []byte("token/transfer")}
	tx.sigs = []*Signature{sign(t, key, tx, 0), sign(t, key, tx, 1)}
	_, err := VerifyTxSignatures(db, tx, chainID)
	assert.IsErr(t, errors.ErrDuplicate, err)
}

func TestBuildSignBytes(t *testing.T) {
	a, err := BuildSignBytes([]byte("x"), chainID, 1)
	assert.Nil(t, err)
	b, err := BuildSignBytes([]byte("x"), chainID, 2)
	assert.Nil(t, err)
	c, err := BuildSignBytes([]byte("x"), "other-chain", 1)
	assert.Nil(t, err)
	assert.Equal(t, 64, len(a))
	if string(a) == string(b) || string(a) == string(c) {
		t.Fatal("sign bytes must depend on sequence and chain")
	}

	_, err = BuildSignBytes([]byte("x"), "no", 1)
	assert.IsErr(t, errors.ErrInput, err)
}

func TestUserDataSerialization(t *testing.T) {
	u := UserData{Pubkey: weavetest.NewAddress(), Sequence: 42}
	raw, err := u.Marshal()
	assert.Nil(t, err)
	assert.Equal(t, 40, len(raw))

	var got UserData
	assert.Nil(t, got.Unmarshal(raw))
	assert.Equal(t, u, got)

	assert.IsErr(t, errors.ErrModel, got.Unmarshal(raw[:20]))
	assert.IsErr(t, errors.ErrModel, got.Unmarshal(append(raw, 0)))
}

func TestDecorator(t *testing.T) {
	key := weavetest.NewKey()
	ctx := weave.WithChainID(context.Background(), chainID)
	auth := Authenticate{}

	var signers []solana.PublicKey
	h := &captureHandler{fn: func(ctx weave.Context) { signers = auth.GetSigners(ctx) }}

	db := store.MemStore()
	tx := &signedTx{payload: []byte("payload")}
	tx.sigs = []*Signature{sign(t, key, tx, 0)}

	_, err := NewDecorator().Deliver(ctx, db, tx, h)
	assert.Nil(t, err)
	assert.Equal(t, []solana.PublicKey{key.PublicKey()}, signers)
	assert.Equal(t, true, auth.HasAddress(withSigners(ctx, signers), key.PublicKey()))

	// unsigned transactions are rejected unless explicitly allowed
	empty := &signedTx{payload: []byte("payload")}
	_, err = NewDecorator().Check(ctx, db, empty, h)
	assert.IsErr(t, errors.ErrUnauthorized, err)
	_, err = NewDecorator().AllowMissingSigs().Check(ctx, db, empty, h)
	assert.Nil(t, err)

	_, err = NewDecorator().Check(ctx, db, &weavetest.Tx{}, h)
	assert.IsErr(t, errors.ErrUnauthorized, err)
}

type captureHandler struct {
	fn func(weave.Context)
}

func (h *captureHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	h.fn(ctx)
	return &weave.CheckResult{}, nil
}

func (h *captureHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	h.fn(ctx)
	return &weave.DeliverResult{}, nil
}
