package token

import (
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/orm"
)

// Controller is the token ledger other extensions move funds through.
type Controller interface {
	CreateMint(db weave.KVStore, address, mintAuthority solana.PublicKey, decimals uint8) (*Mint, error)
	GetMint(db weave.ReadOnlyKVStore, address solana.PublicKey) (*Mint, error)
	GetAccount(db weave.ReadOnlyKVStore, address solana.PublicKey) (*Account, error)
	HasAccount(db weave.ReadOnlyKVStore, address solana.PublicKey) (bool, error)
	InitAccount(db weave.KVStore, address, mint, owner solana.PublicKey) (*Account, error)
	EnsureAssociatedAccount(db weave.KVStore, address, owner, mint solana.PublicKey) (*Account, error)
	MintTo(db weave.KVStore, auth Authority, mint, dest solana.PublicKey, amount uint64) error
	TransferChecked(db weave.KVStore, auth Authority, src, mint, dest solana.PublicKey, amount uint64, decimals uint8) error
	Balance(db weave.ReadOnlyKVStore, address solana.PublicKey) (uint64, error)
	CloseAccount(db weave.KVStore, auth Authority, address solana.PublicKey) error
	AccountsOf(db weave.ReadOnlyKVStore, owner solana.PublicKey) ([]*Account, error)
}

type controller struct {
	mints    orm.ModelBucket
	accounts orm.ModelBucket
}

var _ Controller = controller{}

// NewController returns a controller using the default buckets.
func NewController() Controller {
	return controller{
		mints:    NewMintBucket(),
		accounts: NewAccountBucket(),
	}
}

// CreateMint registers a new token type. ErrDuplicate is returned if a mint
// exists at address.
func (c controller) CreateMint(db weave.KVStore, address, mintAuthority solana.PublicKey, decimals uint8) (*Mint, error) {
	if err := mustBeFree(db, c.mints, address); err != nil {
		return nil, err
	}
	m := &Mint{Address: address, MintAuthority: mintAuthority, Decimals: decimals}
	if err := c.mints.Put(db, address[:], m); err != nil {
		return nil, errors.Wrap(err, "save mint")
	}
	return m, nil
}

func (c controller) GetMint(db weave.ReadOnlyKVStore, address solana.PublicKey) (*Mint, error) {
	var m Mint
	if err := c.mints.One(db, address[:], &m); err != nil {
		return nil, errors.Wrapf(err, "mint %s", address)
	}
	return &m, nil
}

func (c controller) GetAccount(db weave.ReadOnlyKVStore, address solana.PublicKey) (*Account, error) {
	var a Account
	if err := c.accounts.One(db, address[:], &a); err != nil {
		return nil, errors.Wrapf(err, "token account %s", address)
	}
	return &a, nil
}

func (c controller) HasAccount(db weave.ReadOnlyKVStore, address solana.PublicKey) (bool, error) {
	return c.accounts.Has(db, address[:])
}

// InitAccount creates an empty account for an existing mint.
func (c controller) InitAccount(db weave.KVStore, address, mint, owner solana.PublicKey) (*Account, error) {
	if _, err := c.GetMint(db, mint); err != nil {
		return nil, err
	}
	if err := mustBeFree(db, c.accounts, address); err != nil {
		return nil, err
	}
	a := &Account{Address: address, Mint: mint, Owner: owner}
	if err := c.accounts.Put(db, address[:], a); err != nil {
		return nil, errors.Wrap(err, "save token account")
	}
	return a, nil
}

// EnsureAssociatedAccount loads the account at address and checks that it
// holds mint and belongs to owner. A missing account is created if address
// is the associated account of owner for mint, otherwise ErrNotFound is
// returned.
func (c controller) EnsureAssociatedAccount(db weave.KVStore, address, owner, mint solana.PublicKey) (*Account, error) {
	ok, err := c.HasAccount(db, address)
	if err != nil {
		return nil, err
	}
	if !ok {
		want, err := AssociatedAddress(owner, mint)
		if err != nil {
			return nil, err
		}
		if !want.Equals(address) {
			return nil, errors.Wrapf(errors.ErrNotFound, "token account %s is not the associated account of %s", address, owner)
		}
		return c.InitAccount(db, address, mint, owner)
	}

	a, err := c.GetAccount(db, address)
	if err != nil {
		return nil, err
	}
	if !a.Mint.Equals(mint) {
		return nil, errors.Wrapf(errors.ErrAssetMismatch, "token account %s holds %s, not %s", address, a.Mint, mint)
	}
	if !a.Owner.Equals(owner) {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "token account %s is not owned by %s", address, owner)
	}
	return a, nil
}

// MintTo issues new tokens into dest. Only the mint authority may do so.
func (c controller) MintTo(db weave.KVStore, auth Authority, mint, dest solana.PublicKey, amount uint64) error {
	m, err := c.GetMint(db, mint)
	if err != nil {
		return err
	}
	if !auth.authorizes(m.MintAuthority) {
		return errors.Wrapf(errors.ErrUnauthorized, "not the mint authority of %s", mint)
	}
	a, err := c.GetAccount(db, dest)
	if err != nil {
		return err
	}
	if !a.Mint.Equals(mint) {
		return errors.Wrapf(errors.ErrAssetMismatch, "token account %s holds %s", dest, a.Mint)
	}
	if m.Supply > math.MaxUint64-amount || a.Amount > math.MaxUint64-amount {
		return errors.Wrap(errors.ErrOverflow, "supply")
	}
	m.Supply += amount
	a.Amount += amount
	if err := c.mints.Put(db, mint[:], m); err != nil {
		return errors.Wrap(err, "save mint")
	}
	return c.accounts.Put(db, dest[:], a)
}

// TransferChecked moves amount of mint from src to dest. auth must be the
// authority of the src owner. Both accounts must hold mint and decimals
// must match the mint, so a caller cannot move a different asset or a
// differently scaled amount than it intended.
func (c controller) TransferChecked(db weave.KVStore, auth Authority, src, mint, dest solana.PublicKey, amount uint64, decimals uint8) error {
	m, err := c.GetMint(db, mint)
	if err != nil {
		return err
	}
	if m.Decimals != decimals {
		return errors.Wrapf(errors.ErrAssetMismatch, "mint %s has %d decimals, not %d", mint, m.Decimals, decimals)
	}
	from, err := c.GetAccount(db, src)
	if err != nil {
		return err
	}
	if !auth.authorizes(from.Owner) {
		return errors.Wrapf(errors.ErrUnauthorized, "not the owner of %s", src)
	}
	to, err := c.GetAccount(db, dest)
	if err != nil {
		return err
	}
	if !from.Mint.Equals(mint) {
		return errors.Wrapf(errors.ErrAssetMismatch, "source %s holds %s, not %s", src, from.Mint, mint)
	}
	if !to.Mint.Equals(mint) {
		return errors.Wrapf(errors.ErrAssetMismatch, "destination %s holds %s, not %s", dest, to.Mint, mint)
	}
	if from.Amount < amount {
		return errors.Wrapf(errors.ErrInsufficientFunds, "%s holds %d, need %d", src, from.Amount, amount)
	}
	if src.Equals(dest) {
		return nil
	}
	if to.Amount > math.MaxUint64-amount {
		return errors.Wrapf(errors.ErrOverflow, "destination %s", dest)
	}
	from.Amount -= amount
	to.Amount += amount
	if err := c.accounts.Put(db, src[:], from); err != nil {
		return errors.Wrap(err, "save source")
	}
	if err := c.accounts.Put(db, dest[:], to); err != nil {
		return errors.Wrap(err, "save destination")
	}
	return nil
}

func (c controller) Balance(db weave.ReadOnlyKVStore, address solana.PublicKey) (uint64, error) {
	a, err := c.GetAccount(db, address)
	if err != nil {
		return 0, err
	}
	return a.Amount, nil
}

// CloseAccount deletes an empty account. Closing an account with a
// balance is refused with ErrState.
func (c controller) CloseAccount(db weave.KVStore, auth Authority, address solana.PublicKey) error {
	a, err := c.GetAccount(db, address)
	if err != nil {
		return err
	}
	if !auth.authorizes(a.Owner) {
		return errors.Wrapf(errors.ErrUnauthorized, "not the owner of %s", address)
	}
	if a.Amount != 0 {
		return errors.Wrapf(errors.ErrState, "token account %s holds %d", address, a.Amount)
	}
	return c.accounts.Delete(db, address[:])
}

// AccountsOf returns every token account of owner.
func (c controller) AccountsOf(db weave.ReadOnlyKVStore, owner solana.PublicKey) ([]*Account, error) {
	keys, err := c.accounts.ByIndex(db, "owner", owner[:])
	if err != nil {
		return nil, err
	}
	res := make([]*Account, 0, len(keys))
	for _, k := range keys {
		var a Account
		if err := c.accounts.One(db, k, &a); err != nil {
			return nil, err
		}
		res = append(res, &a)
	}
	return res, nil
}

// mustBeFree fails with ErrDuplicate if b holds a model at address. Mints
// and token accounts live in separate address spaces.
func mustBeFree(db weave.ReadOnlyKVStore, b orm.ModelBucket, address solana.PublicKey) error {
	ok, err := b.Has(db, address[:])
	if err != nil {
		return err
	}
	if ok {
		return errors.Wrapf(errors.ErrDuplicate, "address %s is taken", address)
	}
	return nil
}
