package app

import (
	"encoding/json"
	"os"

	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
)

// Genesis file format
type Genesis struct {
	ChainID  string        `json:"chain_id"`
	AppState weave.Options `json:"app_state"`
}

// LoadGenesis tries to load a given file into a Genesis struct
func LoadGenesis(filePath string) (*Genesis, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "read genesis file: %s", err)
	}
	var gen Genesis
	if err := json.Unmarshal(raw, &gen); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "parse genesis file: %s", err)
	}
	if gen.AppState == nil {
		return nil, errors.Wrap(errors.ErrInput, "app_state not set in genesis")
	}
	return &gen, nil
}
