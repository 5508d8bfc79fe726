package token

import (
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
)

// GenesisAccount is an associated account created at genesis, funded by
// minting Amount.
type GenesisAccount struct {
	Owner  solana.PublicKey `json:"owner"`
	Mint   solana.PublicKey `json:"mint"`
	Amount uint64           `json:"amount"`
}

// Genesis is the "token" section of the genesis file.
type Genesis struct {
	Mints    []Mint           `json:"mints"`
	Accounts []GenesisAccount `json:"accounts"`
}

// Initializer creates mints and funded accounts from genesis.
type Initializer struct{}

var _ weave.Initializer = Initializer{}

func (Initializer) FromGenesis(opts weave.Options, db weave.KVStore) error {
	var gen Genesis
	if err := opts.ReadOptions("token", &gen); err != nil {
		return errors.Wrapf(errors.ErrInput, "token genesis: %s", err)
	}
	control := NewController()
	for i, m := range gen.Mints {
		if m.Supply != 0 {
			return errors.Wrapf(errors.ErrInput, "mint %d: supply is derived from accounts", i)
		}
		if _, err := control.CreateMint(db, m.Address, m.MintAuthority, m.Decimals); err != nil {
			return errors.Wrapf(err, "mint %d", i)
		}
	}
	for i, a := range gen.Accounts {
		addr, err := AssociatedAddress(a.Owner, a.Mint)
		if err != nil {
			return errors.Wrapf(err, "account %d", i)
		}
		if _, err := control.InitAccount(db, addr, a.Mint, a.Owner); err != nil {
			return errors.Wrapf(err, "account %d", i)
		}
		if a.Amount == 0 {
			continue
		}
		mint, err := control.GetMint(db, a.Mint)
		if err != nil {
			return errors.Wrapf(err, "account %d", i)
		}
		// Genesis acts on behalf of the mint authority.
		if err := control.MintTo(db, Authority{owner: mint.MintAuthority}, a.Mint, addr, a.Amount); err != nil {
			return errors.Wrapf(err, "account %d", i)
		}
	}
	return nil
}
