package escrow

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/x"
)

var (
	openDiscriminator     = x.InstructionDiscriminator("initialize")
	cancelDiscriminator   = x.InstructionDiscriminator("cancel")
	exchangeDiscriminator = x.InstructionDiscriminator("exchange")
)

// OpenMsg locks InitializerAmount of MintA in a new escrow that asks for
// TakerAmount of MintB. It must be signed by the initializer.
type OpenMsg struct {
	Initializer         solana.PublicKey
	MintA               solana.PublicKey
	MintB               solana.PublicKey
	InitializerAccountA solana.PublicKey
	Seed                uint64
	InitializerAmount   uint64
	TakerAmount         uint64
}

var _ weave.Msg = (*OpenMsg)(nil)

func (OpenMsg) Path() string {
	return "escrow/open"
}

func (m *OpenMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Initializer", requireKey(m.Initializer))
	errs = errors.AppendField(errs, "MintA", requireKey(m.MintA))
	errs = errors.AppendField(errs, "MintB", requireKey(m.MintB))
	errs = errors.AppendField(errs, "InitializerAccountA", requireKey(m.InitializerAccountA))
	if !m.MintA.IsZero() && m.MintA.Equals(m.MintB) {
		errs = errors.AppendField(errs, "MintB", errors.Wrap(errors.ErrInput, "both legs use the same mint"))
	}
	errs = errors.AppendField(errs, "InitializerAmount", requireAmount(m.InitializerAmount))
	errs = errors.AppendField(errs, "TakerAmount", requireAmount(m.TakerAmount))
	return errs
}

func (m *OpenMsg) Marshal() ([]byte, error) {
	return x.Encode(openDiscriminator, func(enc *bin.Encoder) error {
		for _, pk := range []solana.PublicKey{m.Initializer, m.MintA, m.MintB, m.InitializerAccountA} {
			if err := x.WritePublicKey(enc, pk); err != nil {
				return err
			}
		}
		for _, v := range []uint64{m.Seed, m.InitializerAmount, m.TakerAmount} {
			if err := x.WriteU64(enc, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *OpenMsg) Unmarshal(raw []byte) error {
	return x.Decode(raw, openDiscriminator, func(dec *bin.Decoder) (err error) {
		for _, pk := range []*solana.PublicKey{&m.Initializer, &m.MintA, &m.MintB, &m.InitializerAccountA} {
			if *pk, err = x.ReadPublicKey(dec); err != nil {
				return err
			}
		}
		for _, v := range []*uint64{&m.Seed, &m.InitializerAmount, &m.TakerAmount} {
			if *v, err = x.ReadU64(dec); err != nil {
				return err
			}
		}
		return nil
	})
}

// CancelMsg returns the locked funds to the initializer and closes the
// escrow. It must be signed by the initializer.
type CancelMsg struct {
	Initializer         solana.PublicKey
	Escrow              solana.PublicKey
	Vault               solana.PublicKey
	InitializerAccountA solana.PublicKey
}

var _ weave.Msg = (*CancelMsg)(nil)

func (CancelMsg) Path() string {
	return "escrow/cancel"
}

func (m *CancelMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Initializer", requireKey(m.Initializer))
	errs = errors.AppendField(errs, "Escrow", requireKey(m.Escrow))
	errs = errors.AppendField(errs, "Vault", requireKey(m.Vault))
	errs = errors.AppendField(errs, "InitializerAccountA", requireKey(m.InitializerAccountA))
	return errs
}

func (m *CancelMsg) Marshal() ([]byte, error) {
	return x.Encode(cancelDiscriminator, func(enc *bin.Encoder) error {
		return writeKeys(enc, m.Initializer, m.Escrow, m.Vault, m.InitializerAccountA)
	})
}

func (m *CancelMsg) Unmarshal(raw []byte) error {
	return x.Decode(raw, cancelDiscriminator, func(dec *bin.Decoder) error {
		return readKeys(dec, &m.Initializer, &m.Escrow, &m.Vault, &m.InitializerAccountA)
	})
}

// ExchangeMsg settles an escrow. The taker pays the asked amount of mint
// B to the initializer and receives the whole vault. It must be signed by
// the taker.
type ExchangeMsg struct {
	Taker               solana.PublicKey
	TakerAccountB       solana.PublicKey
	TakerAccountA       solana.PublicKey
	InitializerAccountB solana.PublicKey
	Escrow              solana.PublicKey
	Vault               solana.PublicKey
}

var _ weave.Msg = (*ExchangeMsg)(nil)

func (ExchangeMsg) Path() string {
	return "escrow/exchange"
}

func (m *ExchangeMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Taker", requireKey(m.Taker))
	errs = errors.AppendField(errs, "TakerAccountB", requireKey(m.TakerAccountB))
	errs = errors.AppendField(errs, "TakerAccountA", requireKey(m.TakerAccountA))
	errs = errors.AppendField(errs, "InitializerAccountB", requireKey(m.InitializerAccountB))
	errs = errors.AppendField(errs, "Escrow", requireKey(m.Escrow))
	errs = errors.AppendField(errs, "Vault", requireKey(m.Vault))
	return errs
}

func (m *ExchangeMsg) Marshal() ([]byte, error) {
	return x.Encode(exchangeDiscriminator, func(enc *bin.Encoder) error {
		return writeKeys(enc, m.Taker, m.TakerAccountB, m.TakerAccountA, m.InitializerAccountB, m.Escrow, m.Vault)
	})
}

func (m *ExchangeMsg) Unmarshal(raw []byte) error {
	return x.Decode(raw, exchangeDiscriminator, func(dec *bin.Decoder) error {
		return readKeys(dec, &m.Taker, &m.TakerAccountB, &m.TakerAccountA, &m.InitializerAccountB, &m.Escrow, &m.Vault)
	})
}

func writeKeys(enc *bin.Encoder, keys ...solana.PublicKey) error {
	for _, pk := range keys {
		if err := x.WritePublicKey(enc, pk); err != nil {
			return err
		}
	}
	return nil
}

func readKeys(dec *bin.Decoder, keys ...*solana.PublicKey) (err error) {
	for _, pk := range keys {
		if *pk, err = x.ReadPublicKey(dec); err != nil {
			return err
		}
	}
	return nil
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
