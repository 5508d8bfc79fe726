package token

import (
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/x"
)

// RegisterRoutes will instantiate and register all handlers in this
// package.
func RegisterRoutes(r weave.Registry, auth x.Authenticator, control Controller) {
	r.Handle(&CreateMintMsg{}, NewCreateMintHandler(auth, control))
	r.Handle(&MintToMsg{}, NewMintToHandler(auth, control))
	r.Handle(&CreateAccountMsg{}, NewCreateAccountHandler(control))
	r.Handle(&TransferMsg{}, NewTransferHandler(auth, control))
}

// RegisterQuery exposes mints under "/tokens/mints" and token accounts
// under "/tokens/accounts" (and "/tokens/accounts/owner").
func RegisterQuery(qr weave.QueryRouter) {
	NewMintBucket().Register("/tokens/mints", qr)
	NewAccountBucket().Register("/tokens/accounts", qr)
}

// CreateMintHandler registers new token types.
type CreateMintHandler struct {
	auth    x.Authenticator
	control Controller
}

var _ weave.Handler = CreateMintHandler{}

func NewCreateMintHandler(auth x.Authenticator, control Controller) CreateMintHandler {
	return CreateMintHandler{auth: auth, control: control}
}

func (h CreateMintHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{}, nil
}

func (h CreateMintHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, tx)
	if err != nil {
		return nil, err
	}
	if _, err := h.control.CreateMint(db, msg.Mint, msg.MintAuthority, msg.Decimals); err != nil {
		return nil, err
	}
	return &weave.DeliverResult{Data: msg.Mint.Bytes(), Log: "mint created"}, nil
}

// validate requires both the mint and its authority to sign. Only the
// holder of the mint key can create a mint at its address.
func (h CreateMintHandler) validate(ctx weave.Context, tx weave.Tx) (*CreateMintMsg, error) {
	var msg CreateMintMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, msg.Mint) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "mint signature missing")
	}
	if !h.auth.HasAddress(ctx, msg.MintAuthority) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "mint authority signature missing")
	}
	return &msg, nil
}

// MintToHandler issues tokens.
type MintToHandler struct {
	auth    x.Authenticator
	control Controller
}

var _ weave.Handler = MintToHandler{}

func NewMintToHandler(auth x.Authenticator, control Controller) MintToHandler {
	return MintToHandler{auth: auth, control: control}
}

func (h MintToHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{}, nil
}

func (h MintToHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, auth, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	if err := h.control.MintTo(db, auth, msg.Mint, msg.Destination, msg.Amount); err != nil {
		return nil, err
	}
	return &weave.DeliverResult{Log: "tokens minted"}, nil
}

func (h MintToHandler) validate(ctx weave.Context, db weave.ReadOnlyKVStore, tx weave.Tx) (*MintToMsg, Authority, error) {
	var msg MintToMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, Authority{}, errors.Wrap(err, "load msg")
	}
	mint, err := h.control.GetMint(db, msg.Mint)
	if err != nil {
		return nil, Authority{}, err
	}
	auth, err := SignedBy(ctx, h.auth, mint.MintAuthority)
	if err != nil {
		return nil, Authority{}, err
	}
	dest, err := h.control.GetAccount(db, msg.Destination)
	if err != nil {
		return nil, Authority{}, err
	}
	if !dest.Mint.Equals(msg.Mint) {
		return nil, Authority{}, errors.Wrapf(errors.ErrAssetMismatch, "token account %s holds %s", dest.Address, dest.Mint)
	}
	if mint.Supply > math.MaxUint64-msg.Amount || dest.Amount > math.MaxUint64-msg.Amount {
		return nil, Authority{}, errors.Wrap(errors.ErrOverflow, "supply")
	}
	return &msg, auth, nil
}

// CreateAccountHandler creates associated token accounts.
type CreateAccountHandler struct {
	control Controller
}

var _ weave.Handler = CreateAccountHandler{}

func NewCreateAccountHandler(control Controller) CreateAccountHandler {
	return CreateAccountHandler{control: control}
}

func (h CreateAccountHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{}, nil
}

func (h CreateAccountHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, addr, err := h.validate(db, tx)
	if err != nil {
		return nil, err
	}
	if _, err := h.control.InitAccount(db, addr, msg.Mint, msg.Owner); err != nil {
		return nil, err
	}
	return &weave.DeliverResult{Data: addr.Bytes(), Log: "token account created"}, nil
}

// validate returns the associated address the account is created at. Anyone
// may pay for it, but it always belongs to msg.Owner.
func (h CreateAccountHandler) validate(db weave.ReadOnlyKVStore, tx weave.Tx) (*CreateAccountMsg, solana.PublicKey, error) {
	var msg CreateAccountMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, solana.PublicKey{}, errors.Wrap(err, "load msg")
	}
	if _, err := h.control.GetMint(db, msg.Mint); err != nil {
		return nil, solana.PublicKey{}, err
	}
	addr, err := AssociatedAddress(msg.Owner, msg.Mint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	switch ok, err := h.control.HasAccount(db, addr); {
	case err != nil:
		return nil, solana.PublicKey{}, err
	case ok:
		return nil, solana.PublicKey{}, errors.Wrapf(errors.ErrDuplicate, "token account %s exists", addr)
	}
	return &msg, addr, nil
}

// TransferHandler moves tokens between accounts.
type TransferHandler struct {
	auth    x.Authenticator
	control Controller
}

var _ weave.Handler = TransferHandler{}

func NewTransferHandler(auth x.Authenticator, control Controller) TransferHandler {
	return TransferHandler{auth: auth, control: control}
}

func (h TransferHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{}, nil
}

func (h TransferHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, auth, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	if err := h.control.TransferChecked(db, auth, msg.Source, msg.Mint, msg.Destination, msg.Amount, msg.Decimals); err != nil {
		return nil, err
	}
	return &weave.DeliverResult{Log: "tokens transferred"}, nil
}

func (h TransferHandler) validate(ctx weave.Context, db weave.ReadOnlyKVStore, tx weave.Tx) (*TransferMsg, Authority, error) {
	var msg TransferMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, Authority{}, errors.Wrap(err, "load msg")
	}
	src, err := h.control.GetAccount(db, msg.Source)
	if err != nil {
		return nil, Authority{}, err
	}
	auth, err := SignedBy(ctx, h.auth, src.Owner)
	if err != nil {
		return nil, Authority{}, err
	}
	mint, err := h.control.GetMint(db, msg.Mint)
	if err != nil {
		return nil, Authority{}, err
	}
	if mint.Decimals != msg.Decimals {
		return nil, Authority{}, errors.Wrapf(errors.ErrAssetMismatch, "mint %s has %d decimals, not %d", msg.Mint, mint.Decimals, msg.Decimals)
	}
	dest, err := h.control.GetAccount(db, msg.Destination)
	if err != nil {
		return nil, Authority{}, err
	}
	for _, a := range []*Account{src, dest} {
		if !a.Mint.Equals(msg.Mint) {
			return nil, Authority{}, errors.Wrapf(errors.ErrAssetMismatch, "token account %s holds %s, not %s", a.Address, a.Mint, msg.Mint)
		}
	}
	if src.Amount < msg.Amount {
		return nil, Authority{}, errors.Wrapf(errors.ErrInsufficientFunds, "%s holds %d, need %d", msg.Source, src.Amount, msg.Amount)
	}
	return &msg, auth, nil
}
