package server

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/app"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tendermint/tendermint/libs/log"
)

// GenOptions generates the app_state of a new genesis file. It is
// application specific and may use the command line arguments.
type GenOptions func(programID solana.PublicKey, args []string) (weave.Options, error)

// AppGenerator opens the ledger stored under dir. metrics may be nil.
type AppGenerator func(dir string, metrics *app.Metrics, logger log.Logger) (*app.Ledger, error)

// InitCmd creates the genesis file in the home directory, unless one is
// already there, and initializes the ledger from it.
func InitCmd(v *viper.Viper, gen GenOptions, open AppGenerator, initializer weave.Initializer) *cobra.Command {
	return &cobra.Command{
		Use:   "init [args]",
		Short: "Initialize the ledger from the genesis file, creating it if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := LoadConfig(v)
			if err != nil {
				return err
			}
			logger, err := conf.Logger()
			if err != nil {
				return err
			}

			genFile := conf.GenesisFile()
			if !fileExists(genFile) {
				opts, err := gen(conf.ProgramID, args)
				if err != nil {
					return errors.Wrap(err, "generate app state")
				}
				doc := app.Genesis{ChainID: conf.ChainID, AppState: opts}
				if err := writeGenesis(genFile, doc); err != nil {
					return err
				}
				logger.Info("Generated genesis file", "path", genFile)
			} else {
				logger.Info("Found genesis file", "path", genFile)
			}

			doc, err := app.LoadGenesis(genFile)
			if err != nil {
				return err
			}
			ledger, err := open(conf.DataDir(), nil, logger)
			if err != nil {
				return err
			}
			defer ledger.Close()
			return ledger.InitChain(*doc, initializer)
		},
	}
}

func fileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}

func writeGenesis(filename string, doc app.Genesis) error {
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrapf(errors.ErrInput, "encode genesis: %s", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return errors.Wrapf(errors.ErrInput, "create home: %s", err)
	}
	if err := os.WriteFile(filename, out, 0600); err != nil {
		return errors.Wrapf(errors.ErrInput, "write genesis: %s", err)
	}
	return nil
}
