package x

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow/errors"
)

// Discriminator is the 8 byte tag every serialized entity and message
// starts with. It tells apart payloads that would otherwise decode into
// each other.
type Discriminator [8]byte

// InstructionDiscriminator tags a message: sha256("global:<name>")[:8].
func InstructionDiscriminator(name string) Discriminator {
	return discriminator("global", name)
}

// AccountDiscriminator tags a stored entity: sha256("account:<name>")[:8].
func AccountDiscriminator(name string) Discriminator {
	return discriminator("account", name)
}

func discriminator(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:8])
	return d
}

// Encode writes d followed by the Borsh fields written by fn.
func Encode(d Discriminator, fn func(*bin.Encoder) error) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(d[:])
	if err := fn(bin.NewBorshEncoder(&buf)); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "encode: %s", err)
	}
	return buf.Bytes(), nil
}

// Decode checks that raw starts with d and lets fn read the Borsh fields
// that follow. Trailing bytes are rejected.
func Decode(raw []byte, d Discriminator, fn func(*bin.Decoder) error) error {
	if len(raw) < len(d) {
		return errors.Wrapf(errors.ErrInput, "too short: %d bytes", len(raw))
	}
	if !bytes.Equal(raw[:len(d)], d[:]) {
		return errors.Wrapf(errors.ErrInput, "discriminator %X, want %X", raw[:len(d)], d[:])
	}
	dec := bin.NewBorshDecoder(raw[len(d):])
	if err := fn(dec); err != nil {
		return errors.Wrapf(errors.ErrInput, "decode: %s", err)
	}
	if n := dec.Remaining(); n != 0 {
		return errors.Wrapf(errors.ErrInput, "%d trailing bytes", n)
	}
	return nil
}

// WritePublicKey writes the raw 32 bytes of pk.
func WritePublicKey(enc *bin.Encoder, pk solana.PublicKey) error {
	return enc.WriteBytes(pk[:], false)
}

// ReadPublicKey reads 32 raw bytes.
func ReadPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// WriteU64 writes a little endian uint64.
func WriteU64(enc *bin.Encoder, v uint64) error {
	return enc.WriteUint64(v, binary.LittleEndian)
}

// ReadU64 reads a little endian uint64.
func ReadU64(dec *bin.Decoder) (uint64, error) {
	return dec.ReadUint64(binary.LittleEndian)
}
