package token

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/x"
)

var (
	createMintDiscriminator    = x.InstructionDiscriminator("create_mint")
	mintToDiscriminator        = x.InstructionDiscriminator("mint_to")
	createAccountDiscriminator = x.InstructionDiscriminator("create_account")
	transferDiscriminator      = x.InstructionDiscriminator("transfer_checked")
)

// CreateMintMsg registers a new token type. It must be signed by the mint
// key and by the mint authority.
type CreateMintMsg struct {
	Mint          solana.PublicKey
	MintAuthority solana.PublicKey
	Decimals      uint8
}

var _ weave.Msg = (*CreateMintMsg)(nil)

func (CreateMintMsg) Path() string {
	return "token/create_mint"
}

func (m *CreateMintMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Mint", requireKey(m.Mint))
	errs = errors.AppendField(errs, "MintAuthority", requireKey(m.MintAuthority))
	return errs
}

func (m *CreateMintMsg) Marshal() ([]byte, error) {
	return x.Encode(createMintDiscriminator, func(enc *bin.Encoder) error {
		if err := x.WritePublicKey(enc, m.Mint); err != nil {
			return err
		}
		if err := x.WritePublicKey(enc, m.MintAuthority); err != nil {
			return err
		}
		return enc.WriteUint8(m.Decimals)
	})
}

func (m *CreateMintMsg) Unmarshal(raw []byte) error {
	return x.Decode(raw, createMintDiscriminator, func(dec *bin.Decoder) (err error) {
		if m.Mint, err = x.ReadPublicKey(dec); err != nil {
			return err
		}
		if m.MintAuthority, err = x.ReadPublicKey(dec); err != nil {
			return err
		}
		m.Decimals, err = dec.ReadUint8()
		return err
	})
}

// MintToMsg issues new tokens into an account. It must be signed by the
// mint authority.
type MintToMsg struct {
	Mint        solana.PublicKey
	Destination solana.PublicKey
	Amount      uint64
}

var _ weave.Msg = (*MintToMsg)(nil)

func (MintToMsg) Path() string {
	return "token/mint_to"
}

func (m *MintToMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Mint", requireKey(m.Mint))
	errs = errors.AppendField(errs, "Destination", requireKey(m.Destination))
	errs = errors.AppendField(errs, "Amount", requireAmount(m.Amount))
	return errs
}

func (m *MintToMsg) Marshal() ([]byte, error) {
	return x.Encode(mintToDiscriminator, func(enc *bin.Encoder) error {
		if err := x.WritePublicKey(enc, m.Mint); err != nil {
			return err
		}
		if err := x.WritePublicKey(enc, m.Destination); err != nil {
			return err
		}
		return x.WriteU64(enc, m.Amount)
	})
}

func (m *MintToMsg) Unmarshal(raw []byte) error {
	return x.Decode(raw, mintToDiscriminator, func(dec *bin.Decoder) (err error) {
		if m.Mint, err = x.ReadPublicKey(dec); err != nil {
			return err
		}
		if m.Destination, err = x.ReadPublicKey(dec); err != nil {
			return err
		}
		m.Amount, err = x.ReadU64(dec)
		return err
	})
}

// CreateAccountMsg creates the associated account of Owner for Mint.
// Anybody may pay for it, the owner does not need to sign.
type CreateAccountMsg struct {
	Owner solana.PublicKey
	Mint  solana.PublicKey
}

var _ weave.Msg = (*CreateAccountMsg)(nil)

func (CreateAccountMsg) Path() string {
	return "token/create_account"
}

func (m *CreateAccountMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Owner", requireKey(m.Owner))
	errs = errors.AppendField(errs, "Mint", requireKey(m.Mint))
	return errs
}

func (m *CreateAccountMsg) Marshal() ([]byte, error) {
	return x.Encode(createAccountDiscriminator, func(enc *bin.Encoder) error {
		if err := x.WritePublicKey(enc, m.Owner); err != nil {
			return err
		}
		return x.WritePublicKey(enc, m.Mint)
	})
}

func (m *CreateAccountMsg) Unmarshal(raw []byte) error {
	return x.Decode(raw, createAccountDiscriminator, func(dec *bin.Decoder) (err error) {
		if m.Owner, err = x.ReadPublicKey(dec); err != nil {
			return err
		}
		m.Mint, err = x.ReadPublicKey(dec)
		return err
	})
}

// TransferMsg moves tokens between two existing accounts of the same
// mint. It must be signed by the owner of the source account.
type TransferMsg struct {
	Source      solana.PublicKey
	Mint        solana.PublicKey
	Destination solana.PublicKey
	Amount      uint64
	Decimals    uint8
}

var _ weave.Msg = (*TransferMsg)(nil)

func (TransferMsg) Path() string {
	return "token/transfer"
}

func (m *TransferMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Source", requireKey(m.Source))
	errs = errors.AppendField(errs, "Mint", requireKey(m.Mint))
	errs = errors.AppendField(errs, "Destination", requireKey(m.Destination))
	errs = errors.AppendField(errs, "Amount", requireAmount(m.Amount))
	return errs
}

func (m *TransferMsg) Marshal() ([]byte, error) {
	return x.Encode(transferDiscriminator, func(enc *bin.Encoder) error {
		for _, pk := range []solana.PublicKey{m.Source, m.Mint, m.Destination} {
			if err := x.WritePublicKey(enc, pk); err != nil {
				return err
			}
		}
		if err := x.WriteU64(enc, m.Amount); err != nil {
			return err
		}
		return enc.WriteUint8(m.Decimals)
	})
}

func (m *TransferMsg) Unmarshal(raw []byte) error {
	return x.Decode(raw, transferDiscriminator, func(dec *bin.Decoder) (err error) {
		for _, pk := range []*solana.PublicKey{&m.Source, &m.Mint, &m.Destination} {
			if *pk, err = x.ReadPublicKey(dec); err != nil {
				return err
			}
		}
		if m.Amount, err = x.ReadU64(dec); err != nil {
			return err
		}
		m.Decimals, err = dec.ReadUint8()
		return err
	})
}

func requireKey(pk solana.PublicKey) error {
	if pk.IsZero() {
		return errors.ErrEmpty
	}
	return nil
}

func requireAmount(v uint64) error {
	if v == 0 {
		return errors.Wrap(errors.ErrAmount, "must be positive")
	}
	return nil
}
