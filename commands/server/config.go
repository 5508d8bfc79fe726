// Package server holds the cobra commands that run a ledger from the
// local home directory.
package server

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/x/escrow"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tendermint/tendermint/libs/log"
)

const (
	FlagHome        = "home"
	FlagChainID     = "chain_id"
	FlagProgramID   = "program_id"
	FlagLogLevel    = "log_level"
	FlagMetricsAddr = "metrics_addr"

	// EnvPrefix prefixes every environment variable read by the node.
	EnvPrefix = "SWAPD"

	configName  = "config"
	genesisName = "genesis.json"
	dataDir     = "data"
)

// BindFlags registers the node flags on cmd. Every flag can also be set
// with a SWAPD_<FLAG> environment variable or in the config.toml file
// found in the home directory.
func BindFlags(cmd *cobra.Command, v *viper.Viper, defaultHome string) {
	flags := cmd.PersistentFlags()
	flags.String(FlagHome, defaultHome, "directory to store files under")
	flags.String(FlagChainID, "swap-local", "chain id used when creating the genesis")
	flags.String(FlagProgramID, escrow.DefaultProgramID.String(), "escrow program id written to the genesis")
	flags.String(FlagLogLevel, "info", "log level: debug, info, error or none")
	flags.String(FlagMetricsAddr, "", "address to serve prometheus metrics on, empty to disable")
	for _, name := range []string{FlagHome, FlagChainID, FlagProgramID, FlagLogLevel, FlagMetricsAddr} {
		// Lookup cannot fail, the flag was just defined.
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Config is the node configuration resolved from flags, environment and
// config file.
type Config struct {
	Home        string
	ChainID     string
	ProgramID   solana.PublicKey
	LogLevel    string
	MetricsAddr string
}

// LoadConfig reads the optional config file from the home directory and
// returns the resolved configuration.
func LoadConfig(v *viper.Viper) (*Config, error) {
	home := v.GetString(FlagHome)
	if home == "" {
		return nil, errors.Wrap(errors.ErrInput, "home directory not set")
	}
	v.SetConfigName(configName)
	v.AddConfigPath(home)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrapf(errors.ErrInput, "config file: %s", err)
		}
	}

	program, err := solana.PublicKeyFromBase58(v.GetString(FlagProgramID))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "%s: %s", FlagProgramID, err)
	}
	c := &Config{
		Home:        home,
		ChainID:     v.GetString(FlagChainID),
		ProgramID:   program,
		LogLevel:    v.GetString(FlagLogLevel),
		MetricsAddr: v.GetString(FlagMetricsAddr),
	}
	if !weave.IsValidChainID(c.ChainID) {
		return nil, errors.Wrapf(errors.ErrInput, "invalid chain id %q", c.ChainID)
	}
	return c, nil
}

// GenesisFile is where the genesis is written by init.
func (c *Config) GenesisFile() string {
	return filepath.Join(c.Home, genesisName)
}

// DataDir holds the ledger database.
func (c *Config) DataDir() string {
	return filepath.Join(c.Home, dataDir)
}

// Logger returns a logger writing to stderr, filtered by the configured
// level.
func (c *Config) Logger() (log.Logger, error) {
	opt, err := log.AllowLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "%s: %s", FlagLogLevel, err)
	}
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stderr))
	return log.NewFilter(logger, opt).With("module", "swapd"), nil
}
