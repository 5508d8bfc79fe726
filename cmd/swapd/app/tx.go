package app

import (
	"bytes"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/x/escrow"
	"github.com/iov-one/weave-escrow/x/sigs"
	"github.com/iov-one/weave-escrow/x/token"
)

// maxSignatures bounds the signatures a single transaction may carry.
const maxSignatures = 8

// msgVariants lists every message the application accepts. The position
// is the Borsh enum variant written on the wire, so new messages must be
// appended.
var msgVariants = []func() weave.Msg{
	func() weave.Msg { return new(token.CreateMintMsg) },
	func() weave.Msg { return new(token.MintToMsg) },
	func() weave.Msg { return new(token.CreateAccountMsg) },
	func() weave.Msg { return new(token.TransferMsg) },
	func() weave.Msg { return new(escrow.OpenMsg) },
	func() weave.Msg { return new(escrow.CancelMsg) },
	func() weave.Msg { return new(escrow.ExchangeMsg) },
}

func variantOf(msg weave.Msg) (uint8, error) {
	for i, fn := range msgVariants {
		if fn().Path() == msg.Path() {
			return uint8(i), nil
		}
	}
	return 0, errors.Wrapf(errors.ErrMsg, "unsupported message %T", msg)
}

// Tx is the transaction envelope of swapd. It carries a single message and
// the signatures authorizing it.
//
//	variant u8 | len u32 | message | count u32 | count * (pubkey | signature | sequence u64)
type Tx struct {
	Msg        weave.Msg
	Signatures []*sigs.Signature
}

var _ weave.Tx = (*Tx)(nil)
var _ sigs.SignedTx = (*Tx)(nil)

// NewTx wraps msg in an unsigned transaction.
func NewTx(msg weave.Msg) *Tx {
	return &Tx{Msg: msg}
}

// TxDecoder creates a Tx and unmarshals bytes into it
func TxDecoder(bz []byte) (weave.Tx, error) {
	tx := new(Tx)
	if err := tx.Unmarshal(bz); err != nil {
		return nil, err
	}
	return tx, nil
}

func (tx *Tx) GetMsg() (weave.Msg, error) {
	if tx.Msg == nil {
		return nil, errors.Wrap(errors.ErrMsg, "no message")
	}
	return tx.Msg, nil
}

func (tx *Tx) GetSignatures() []*sigs.Signature {
	return tx.Signatures
}

// GetSignBytes returns the serialized message. Signatures never sign each
// other.
func (tx *Tx) GetSignBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.writeMsg(bin.NewBorshEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sign appends a signature of key over the transaction.
func (tx *Tx) Sign(key solana.PrivateKey, chainID string, seq uint64) error {
	sig, err := sigs.SignTx(key, tx, chainID, seq)
	if err != nil {
		return err
	}
	tx.Signatures = append(tx.Signatures, sig)
	return nil
}

func (tx *Tx) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	if err := tx.writeMsg(enc); err != nil {
		return nil, err
	}
	if len(tx.Signatures) > maxSignatures {
		return nil, errors.Wrapf(errors.ErrInput, "%d signatures, max %d", len(tx.Signatures), maxSignatures)
	}
	if err := enc.WriteUint32(uint32(len(tx.Signatures)), binary.LittleEndian); err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	for i, s := range tx.Signatures {
		if s == nil {
			return nil, errors.Wrapf(errors.ErrInput, "signature %d is nil", i)
		}
		if err := writeSignature(enc, s); err != nil {
			return nil, errors.Wrapf(errors.ErrInput, "signature %d: %s", i, err)
		}
	}
	return buf.Bytes(), nil
}

func (tx *Tx) writeMsg(enc *bin.Encoder) error {
	msg, err := tx.GetMsg()
	if err != nil {
		return err
	}
	variant, err := variantOf(msg)
	if err != nil {
		return err
	}
	raw, err := msg.Marshal()
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}
	if err := enc.WriteUint8(variant); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	if err := enc.WriteUint32(uint32(len(raw)), binary.LittleEndian); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	if err := enc.WriteBytes(raw, false); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	return nil
}

func writeSignature(enc *bin.Encoder, s *sigs.Signature) error {
	if err := enc.WriteBytes(s.PubKey[:], false); err != nil {
		return err
	}
	if err := enc.WriteBytes(s.Signature[:], false); err != nil {
		return err
	}
	return enc.WriteUint64(s.Sequence, binary.LittleEndian)
}

func (tx *Tx) Unmarshal(raw []byte) error {
	dec := bin.NewBorshDecoder(raw)
	variant, err := dec.ReadUint8()
	if err != nil {
		return errors.Wrapf(errors.ErrInput, "variant: %s", err)
	}
	if int(variant) >= len(msgVariants) {
		return errors.Wrapf(errors.ErrMsg, "unknown message variant %d", variant)
	}
	size, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return errors.Wrapf(errors.ErrInput, "message length: %s", err)
	}
	if int(size) > dec.Remaining() {
		return errors.Wrapf(errors.ErrInput, "message length %d exceeds payload", size)
	}
	body, err := dec.ReadNBytes(int(size))
	if err != nil {
		return errors.Wrapf(errors.ErrInput, "message: %s", err)
	}
	msg := msgVariants[variant]()
	if err := msg.Unmarshal(body); err != nil {
		return errors.Wrap(err, "message")
	}

	count, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return errors.Wrapf(errors.ErrInput, "signature count: %s", err)
	}
	if count > maxSignatures {
		return errors.Wrapf(errors.ErrInput, "%d signatures, max %d", count, maxSignatures)
	}
	signatures := make([]*sigs.Signature, 0, count)
	for i := uint32(0); i < count; i++ {
		s, err := readSignature(dec)
		if err != nil {
			return errors.Wrapf(errors.ErrInput, "signature %d: %s", i, err)
		}
		signatures = append(signatures, s)
	}
	if n := dec.Remaining(); n != 0 {
		return errors.Wrapf(errors.ErrInput, "%d trailing bytes", n)
	}

	tx.Msg = msg
	tx.Signatures = signatures
	return nil
}

func readSignature(dec *bin.Decoder) (*sigs.Signature, error) {
	pk, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, err
	}
	var sig solana.Signature
	raw, err := dec.ReadNBytes(len(sig))
	if err != nil {
		return nil, err
	}
	copy(sig[:], raw)
	seq, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	return &sigs.Signature{
		PubKey:    solana.PublicKeyFromBytes(pk),
		Signature: sig,
		Sequence:  seq,
	}, nil
}
