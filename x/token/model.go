package token

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/orm"
	"github.com/iov-one/weave-escrow/x"
)

const (
	// MintBucketName is where mints are stored.
	MintBucketName = "mint"
	// AccountBucketName is where token accounts are stored.
	AccountBucketName = "tacc"
)

var (
	mintDiscriminator    = x.AccountDiscriminator("Mint")
	accountDiscriminator = x.AccountDiscriminator("TokenAccount")
)

// Mint describes a token type.
type Mint struct {
	Address       solana.PublicKey `json:"address"`
	MintAuthority solana.PublicKey `json:"mint_authority"`
	Decimals      uint8            `json:"decimals"`
	Supply        uint64           `json:"supply"`
}

var _ orm.Model = (*Mint)(nil)

func (m *Mint) Validate() error {
	var errs error
	if m.Address.IsZero() {
		errs = errors.AppendField(errs, "Address", errors.ErrEmpty)
	}
	if m.MintAuthority.IsZero() {
		errs = errors.AppendField(errs, "MintAuthority", errors.ErrEmpty)
	}
	return errs
}

func (m *Mint) Marshal() ([]byte, error) {
	return x.Encode(mintDiscriminator, func(enc *bin.Encoder) error {
		if err := x.WritePublicKey(enc, m.Address); err != nil {
			return err
		}
		if err := x.WritePublicKey(enc, m.MintAuthority); err != nil {
			return err
		}
		if err := enc.WriteUint8(m.Decimals); err != nil {
			return err
		}
		return x.WriteU64(enc, m.Supply)
	})
}

func (m *Mint) Unmarshal(raw []byte) error {
	return x.Decode(raw, mintDiscriminator, func(dec *bin.Decoder) (err error) {
		if m.Address, err = x.ReadPublicKey(dec); err != nil {
			return err
		}
		if m.MintAuthority, err = x.ReadPublicKey(dec); err != nil {
			return err
		}
		if m.Decimals, err = dec.ReadUint8(); err != nil {
			return err
		}
		m.Supply, err = x.ReadU64(dec)
		return err
	})
}

// Account holds the balance of a single mint for a single owner.
type Account struct {
	Address solana.PublicKey `json:"address"`
	Mint    solana.PublicKey `json:"mint"`
	Owner   solana.PublicKey `json:"owner"`
	Amount  uint64           `json:"amount"`
}

var _ orm.Model = (*Account)(nil)

func (a *Account) Validate() error {
	var errs error
	if a.Address.IsZero() {
		errs = errors.AppendField(errs, "Address", errors.ErrEmpty)
	}
	if a.Mint.IsZero() {
		errs = errors.AppendField(errs, "Mint", errors.ErrEmpty)
	}
	if a.Owner.IsZero() {
		errs = errors.AppendField(errs, "Owner", errors.ErrEmpty)
	}
	return errs
}

func (a *Account) Marshal() ([]byte, error) {
	return x.Encode(accountDiscriminator, func(enc *bin.Encoder) error {
		for _, pk := range []solana.PublicKey{a.Address, a.Mint, a.Owner} {
			if err := x.WritePublicKey(enc, pk); err != nil {
				return err
			}
		}
		return x.WriteU64(enc, a.Amount)
	})
}

func (a *Account) Unmarshal(raw []byte) error {
	return x.Decode(raw, accountDiscriminator, func(dec *bin.Decoder) (err error) {
		for _, pk := range []*solana.PublicKey{&a.Address, &a.Mint, &a.Owner} {
			if *pk, err = x.ReadPublicKey(dec); err != nil {
				return err
			}
		}
		a.Amount, err = x.ReadU64(dec)
		return err
	})
}

// NewMintBucket returns the bucket mints are stored in, keyed by address.
func NewMintBucket() orm.ModelBucket {
	return orm.NewModelBucket(MintBucketName, &Mint{})
}

// NewAccountBucket returns the bucket token accounts are stored in, keyed
// by address and indexed by owner.
func NewAccountBucket() orm.ModelBucket {
	return orm.NewModelBucket(AccountBucketName, &Account{},
		orm.WithIndex("owner", accountOwner))
}

func accountOwner(m orm.Model) ([]byte, error) {
	a, ok := m.(*Account)
	if !ok {
		return nil, errors.Wrapf(errors.ErrType, "%T", m)
	}
	return a.Owner.Bytes(), nil
}

// AssociatedAddress returns the address of the canonical account of owner
// for mint.
func AssociatedAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(errors.ErrInput, "associated address: %s", err)
	}
	return addr, nil
}
