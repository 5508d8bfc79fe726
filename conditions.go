package weave

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow/errors"
)

// Condition describes an authority that is not backed by a private key but
// by a program and a set of seeds. Anybody who knows the program and the seeds
// can compute the address, nobody can sign for it with a key.
//
// This is the ledger equivalent of a program derived address: the seeds are
// hashed together with the program id and a bump byte until the result falls
// off the ed25519 curve.
type Condition struct {
	Program solana.PublicKey
	Seeds   [][]byte
}

// NewCondition returns a condition for given program and seed material.
func NewCondition(program solana.PublicKey, seeds ...[]byte) Condition {
	return Condition{Program: program, Seeds: seeds}
}

// Address finds the canonical address of this condition together with the
// bump that produced it.
func (c Condition) Address() (solana.PublicKey, uint8, error) {
	if err := c.Validate(); err != nil {
		return solana.PublicKey{}, 0, err
	}
	addr, bump, err := solana.FindProgramAddress(c.Seeds, c.Program)
	if err != nil {
		return solana.PublicKey{}, 0, errors.Wrap(errors.ErrInput, err.Error())
	}
	return addr, bump, nil
}

// AddressWithBump recreates the address using a known bump. Use this when the
// bump was stored with the record to avoid searching for it again.
func (c Condition) AddressWithBump(bump uint8) (solana.PublicKey, error) {
	if err := c.Validate(); err != nil {
		return solana.PublicKey{}, err
	}
	seeds := make([][]byte, 0, len(c.Seeds)+1)
	seeds = append(seeds, c.Seeds...)
	seeds = append(seeds, []byte{bump})
	addr, err := solana.CreateProgramAddress(seeds, c.Program)
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(errors.ErrInput, err.Error())
	}
	return addr, nil
}

// Validate returns an error if the condition cannot be used to derive an
// address.
func (c Condition) Validate() error {
	if c.Program.IsZero() {
		return errors.Wrap(errors.ErrEmpty, "program")
	}
	if len(c.Seeds) == 0 {
		return errors.Wrap(errors.ErrEmpty, "seeds")
	}
	if len(c.Seeds) >= solana.MaxSeeds {
		return errors.Wrapf(errors.ErrInput, "too many seeds: %d", len(c.Seeds))
	}
	for i, s := range c.Seeds {
		if len(s) > solana.MaxSeedLength {
			return errors.Wrapf(errors.ErrInput, "seed %d too long", i)
		}
	}
	return nil
}

// String returns a human readable string.
// We keep the program in base58 and hex-encode the seeds
func (c Condition) String() string {
	return fmt.Sprintf("%s/%X", c.Program, c.Seeds)
}
