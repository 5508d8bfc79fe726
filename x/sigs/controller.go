package sigs

import (
	"crypto/sha512"
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
)

// SignCodeV1 prefixes the bytes a signature is made over.
var SignCodeV1 = []byte{0, 0xCA, 0xFE, 0}

// VerifyTxSignatures checks all the signatures on the tx and increments
// the sequence of every signer.
//
// It returns the signers (possibly empty), or an error if any signature is
// invalid.
func VerifyTxSignatures(db weave.KVStore, tx SignedTx, chainID string) ([]solana.PublicKey, error) {
	bz, err := tx.GetSignBytes()
	if err != nil {
		return nil, errors.Wrap(err, "sign bytes")
	}
	sigs := tx.GetSignatures()
	signers := make([]solana.PublicKey, 0, len(sigs))
	seen := make(map[solana.PublicKey]struct{}, len(sigs))
	for i, sig := range sigs {
		signer, err := VerifySignature(db, sig, bz, chainID)
		if err != nil {
			return nil, errors.Wrapf(err, "signature %d", i)
		}
		if _, ok := seen[signer]; ok {
			return nil, errors.Wrapf(errors.ErrDuplicate, "signer %s", signer)
		}
		seen[signer] = struct{}{}
		signers = append(signers, signer)
	}
	return signers, nil
}

// VerifySignature checks one signature against signBytes, and updates the
// signer sequence in the store.
func VerifySignature(db weave.KVStore, sig *Signature, signBytes []byte, chainID string) (solana.PublicKey, error) {
	if err := sig.Validate(); err != nil {
		return solana.PublicKey{}, err
	}

	bucket := NewBucket()
	user, err := bucket.GetOrCreate(db, sig.PubKey)
	if err != nil {
		return solana.PublicKey{}, err
	}

	toSign, err := BuildSignBytes(signBytes, chainID, sig.Sequence)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !sig.Signature.Verify(sig.PubKey, toSign) {
		return solana.PublicKey{}, errors.Wrap(errors.ErrUnauthorized, "invalid signature")
	}

	if err := user.CheckAndIncrementSequence(sig.Sequence); err != nil {
		return solana.PublicKey{}, err
	}
	if err := bucket.Save(db, user); err != nil {
		return solana.PublicKey{}, err
	}
	return sig.PubKey, nil
}

/*
BuildSignBytes combines all info on the actual tx before signing:

	version | len(chainID) | chainID      | sequence           | signBytes
	4bytes  | uint8        | ascii string | uint64 (bigendian) | serialized transaction

The result is prehashed with sha512 so the signer always signs a constant
length payload.
*/
func BuildSignBytes(signBytes []byte, chainID string, seq uint64) ([]byte, error) {
	if !weave.IsValidChainID(chainID) {
		return nil, errors.Wrapf(errors.ErrInput, "chain id: %v", chainID)
	}

	output := make([]byte, 0, len(SignCodeV1)+1+len(chainID)+8+len(signBytes))
	output = append(output, SignCodeV1...)
	output = append(output, uint8(len(chainID)))
	output = append(output, chainID...)
	output = binary.BigEndian.AppendUint64(output, seq)
	output = append(output, signBytes...)

	hashed := sha512.Sum512(output)
	return hashed[:], nil
}

// SignTx creates a signature for the given tx.
func SignTx(key solana.PrivateKey, tx SignedTx, chainID string, seq uint64) (*Signature, error) {
	signBytes, err := tx.GetSignBytes()
	if err != nil {
		return nil, errors.Wrap(err, "sign bytes")
	}
	toSign, err := BuildSignBytes(signBytes, chainID, seq)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(toSign)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return &Signature{
		PubKey:    key.PublicKey(),
		Signature: sig,
		Sequence:  seq,
	}, nil
}

// NextSequence returns the sequence the next signature of pubkey must use.
func NextSequence(db weave.ReadOnlyKVStore, pubkey solana.PublicKey) (uint64, error) {
	user, err := NewBucket().GetOrCreate(db, pubkey)
	if err != nil {
		return 0, err
	}
	return user.Sequence, nil
}
