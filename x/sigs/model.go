package sigs

import (
	"bytes"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/orm"
)

// BucketName is where we store the signer accounts.
const BucketName = "sigs"

// maxSequence keeps sequences representable by javascript clients
// (Number.MAX_SAFE_INTEGER).
const maxSequence = (1 << 53) - 1

// UserData is the state kept for every identity that ever signed.
type UserData struct {
	Pubkey   solana.PublicKey
	Sequence uint64
}

var _ orm.Model = (*UserData)(nil)

func (u *UserData) Validate() error {
	if u.Pubkey.IsZero() {
		return errors.Field("Pubkey", errors.ErrEmpty, "required")
	}
	if u.Sequence > maxSequence {
		return errors.Field("Sequence", ErrInvalidSequence, "out of range")
	}
	return nil
}

func (u *UserData) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	if err := enc.WriteBytes(u.Pubkey[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(u.Sequence, binary.LittleEndian); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (u *UserData) Unmarshal(raw []byte) error {
	dec := bin.NewBorshDecoder(raw)
	pk, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return errors.Wrapf(errors.ErrModel, "pubkey: %s", err)
	}
	seq, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return errors.Wrapf(errors.ErrModel, "sequence: %s", err)
	}
	if dec.Remaining() != 0 {
		return errors.Wrapf(errors.ErrModel, "%d trailing bytes", dec.Remaining())
	}
	u.Pubkey = solana.PublicKeyFromBytes(pk)
	u.Sequence = seq
	return nil
}

// CheckAndIncrementSequence increments the sequence if it equals
// expected. Otherwise ErrInvalidSequence is returned.
func (u *UserData) CheckAndIncrementSequence(expected uint64) error {
	if u.Sequence != expected {
		return errors.Wrapf(ErrInvalidSequence, "mismatch expected %d, got %d", u.Sequence, expected)
	}
	if u.Sequence >= maxSequence {
		return errors.Wrap(errors.ErrOverflow, "sequence out of range")
	}
	u.Sequence++
	return nil
}

// Bucket stores UserData by public key.
type Bucket struct {
	orm.ModelBucket
}

// NewBucket creates the proper bucket for this extension.
func NewBucket() Bucket {
	return Bucket{ModelBucket: orm.NewModelBucket(BucketName, &UserData{})}
}

// GetOrCreate loads the user of pubkey, or returns a fresh one with
// sequence zero. The new user is not saved.
func (b Bucket) GetOrCreate(db weave.ReadOnlyKVStore, pubkey solana.PublicKey) (*UserData, error) {
	var u UserData
	switch err := b.One(db, pubkey[:], &u); {
	case err == nil:
		return &u, nil
	case errors.ErrNotFound.Is(err):
		return &UserData{Pubkey: pubkey}, nil
	default:
		return nil, err
	}
}

// Save stores the user under its public key.
func (b Bucket) Save(db weave.KVStore, u *UserData) error {
	return b.Put(db, u.Pubkey[:], u)
}

// RegisterQuery will register this bucket as "/auth".
func RegisterQuery(qr weave.QueryRouter) {
	NewBucket().Register("/auth", qr)
}
