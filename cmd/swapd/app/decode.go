package app

import (
	"encoding/hex"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/orm"
	"github.com/iov-one/weave-escrow/x/escrow"
	"github.com/iov-one/weave-escrow/x/sigs"
	"github.com/iov-one/weave-escrow/x/token"
)

// DecodeModel unmarshals a value returned by one of the QueryRouter
// paths.
func DecodeModel(path string, value []byte) (interface{}, error) {
	var m orm.Model
	switch {
	case strings.HasPrefix(path, "/escrows"):
		m = new(escrow.Escrow)
	case strings.HasPrefix(path, "/tokens/accounts"):
		m = new(token.Account)
	case strings.HasPrefix(path, "/tokens/mints"):
		m = new(token.Mint)
	case strings.HasPrefix(path, "/auth"):
		m = new(sigs.UserData)
	default:
		return nil, errors.Wrapf(errors.ErrNotFound, "no model for %q", path)
	}
	if err := m.Unmarshal(value); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseKey accepts a base58 public key or hex encoded bytes.
func ParseKey(s string) ([]byte, error) {
	if pk, err := solana.PublicKeyFromBase58(s); err == nil {
		return pk.Bytes(), nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "neither base58 nor hex: %q", s)
	}
	return raw, nil
}
