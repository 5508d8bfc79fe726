package app

import (
	"encoding/json"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/app"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/x/escrow"
	"github.com/iov-one/weave-escrow/x/token"
)

// GenInitOptions creates the app state of a new genesis. The optional
// argument is a JSON file with the "token" section, the mints and funded
// accounts to create.
func GenInitOptions(programID solana.PublicKey, args []string) (weave.Options, error) {
	var tokens token.Genesis
	if len(args) > 0 {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInput, "read token genesis: %s", err)
		}
		if err := json.Unmarshal(raw, &tokens); err != nil {
			return nil, errors.Wrapf(errors.ErrInput, "parse token genesis: %s", err)
		}
	}
	return AppState(programID, tokens)
}

// AppState returns the app state creating the given tokens, with the
// escrow program configured to programID.
func AppState(programID solana.PublicKey, tokens token.Genesis) (weave.Options, error) {
	if tokens.Mints == nil {
		tokens.Mints = []token.Mint{}
	}
	if tokens.Accounts == nil {
		tokens.Accounts = []token.GenesisAccount{}
	}
	conf := escrow.Configuration{ProgramID: programID}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	rawTokens, err := json.Marshal(tokens)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "token genesis: %s", err)
	}
	rawConf, err := json.Marshal(map[string]escrow.Configuration{
		escrow.ConfigurationPkg: conf,
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "conf genesis: %s", err)
	}
	return weave.Options{
		"token": rawTokens,
		"conf":  rawConf,
	}, nil
}

// GenesisTemplate returns a genesis for chainID built by AppState.
func GenesisTemplate(chainID string, programID solana.PublicKey, tokens token.Genesis) (*app.Genesis, error) {
	opts, err := AppState(programID, tokens)
	if err != nil {
		return nil, err
	}
	return &app.Genesis{ChainID: chainID, AppState: opts}, nil
}
