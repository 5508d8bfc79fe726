package escrow

import (
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/orm"
	"github.com/iov-one/weave-escrow/x"
	"github.com/iov-one/weave-escrow/x/token"
)

// BucketName is where escrows are stored.
const BucketName = "escrow"

// stateSeed prefixes the seed material of every escrow address.
var stateSeed = []byte("state")

var escrowDiscriminator = x.AccountDiscriminator("Escrow")

// Escrow holds the terms of a single swap. It is stored under its derived
// address and never modified after open.
type Escrow struct {
	Seed              uint64           `json:"seed"`
	Bump              uint8            `json:"bump"`
	Initializer       solana.PublicKey `json:"initializer"`
	MintA             solana.PublicKey `json:"mint_a"`
	MintB             solana.PublicKey `json:"mint_b"`
	InitializerAmount uint64           `json:"initializer_amount"`
	TakerAmount       uint64           `json:"taker_amount"`
}

var _ orm.Model = (*Escrow)(nil)

// Validate ensures the escrow is valid
func (e *Escrow) Validate() error {
	var errs error
	if e.Initializer.IsZero() {
		errs = errors.AppendField(errs, "Initializer", errors.ErrEmpty)
	}
	if e.MintA.IsZero() {
		errs = errors.AppendField(errs, "MintA", errors.ErrEmpty)
	}
	if e.MintB.IsZero() {
		errs = errors.AppendField(errs, "MintB", errors.ErrEmpty)
	}
	if e.MintA.Equals(e.MintB) {
		errs = errors.AppendField(errs, "MintB", errors.Wrap(errors.ErrInput, "same as mint a"))
	}
	if e.InitializerAmount == 0 {
		errs = errors.AppendField(errs, "InitializerAmount", errors.ErrAmount)
	}
	if e.TakerAmount == 0 {
		errs = errors.AppendField(errs, "TakerAmount", errors.ErrAmount)
	}
	return errs
}

func (e *Escrow) Marshal() ([]byte, error) {
	return x.Encode(escrowDiscriminator, func(enc *bin.Encoder) error {
		if err := x.WriteU64(enc, e.Seed); err != nil {
			return err
		}
		if err := enc.WriteUint8(e.Bump); err != nil {
			return err
		}
		for _, pk := range []solana.PublicKey{e.Initializer, e.MintA, e.MintB} {
			if err := x.WritePublicKey(enc, pk); err != nil {
				return err
			}
		}
		if err := x.WriteU64(enc, e.InitializerAmount); err != nil {
			return err
		}
		return x.WriteU64(enc, e.TakerAmount)
	})
}

func (e *Escrow) Unmarshal(raw []byte) error {
	return x.Decode(raw, escrowDiscriminator, func(dec *bin.Decoder) (err error) {
		if e.Seed, err = x.ReadU64(dec); err != nil {
			return err
		}
		if e.Bump, err = dec.ReadUint8(); err != nil {
			return err
		}
		for _, pk := range []*solana.PublicKey{&e.Initializer, &e.MintA, &e.MintB} {
			if *pk, err = x.ReadPublicKey(dec); err != nil {
				return err
			}
		}
		if e.InitializerAmount, err = x.ReadU64(dec); err != nil {
			return err
		}
		e.TakerAmount, err = x.ReadU64(dec)
		return err
	})
}

// Condition returns the seed material the escrow address is derived from.
func Condition(programID, initializer solana.PublicKey, seed uint64) weave.Condition {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], seed)
	return weave.NewCondition(programID, stateSeed, initializer.Bytes(), le[:])
}

// EscrowAddress returns the canonical address of the escrow of initializer
// with given seed, together with the bump that produced it.
func EscrowAddress(programID, initializer solana.PublicKey, seed uint64) (solana.PublicKey, uint8, error) {
	addr, bump, err := Condition(programID, initializer, seed).Address()
	if err != nil {
		return solana.PublicKey{}, 0, errors.Wrap(err, "escrow address")
	}
	return addr, bump, nil
}

// VaultAddress returns the token account holding the locked funds of the
// escrow at address.
func VaultAddress(address, mintA solana.PublicKey) (solana.PublicKey, error) {
	return token.AssociatedAddress(address, mintA)
}

// SignerFor returns the authority over the funds of the escrow stored at
// address. It fails unless the stored seed material and bump re-derive to
// address.
func SignerFor(programID, address solana.PublicKey, e *Escrow) (token.Authority, error) {
	return token.ProgramSigner(Condition(programID, e.Initializer, e.Seed), e.Bump, address)
}

// Bucket stores escrows by address, indexed by initializer.
type Bucket struct {
	orm.ModelBucket
}

// NewBucket initializes a Bucket with default name.
func NewBucket() Bucket {
	return Bucket{
		ModelBucket: orm.NewModelBucket(BucketName, &Escrow{},
			orm.WithIndex("initializer", escrowInitializer)),
	}
}

func escrowInitializer(m orm.Model) ([]byte, error) {
	e, ok := m.(*Escrow)
	if !ok {
		return nil, errors.Wrapf(errors.ErrType, "%T", m)
	}
	return e.Initializer.Bytes(), nil
}

// Get loads the escrow stored at address.
func (b Bucket) Get(db weave.ReadOnlyKVStore, address solana.PublicKey) (*Escrow, error) {
	var e Escrow
	if err := b.One(db, address[:], &e); err != nil {
		return nil, errors.Wrapf(err, "escrow %s", address)
	}
	return &e, nil
}

// ByInitializer returns the addresses of all live escrows of initializer.
func (b Bucket) ByInitializer(db weave.ReadOnlyKVStore, initializer solana.PublicKey) ([]solana.PublicKey, error) {
	keys, err := b.ByIndex(db, "initializer", initializer[:])
	if err != nil {
		return nil, err
	}
	res := make([]solana.PublicKey, len(keys))
	for i, k := range keys {
		res[i] = solana.PublicKeyFromBytes(k)
	}
	return res, nil
}
