package server

import (
	"encoding/hex"
	"encoding/json"

	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ModelDecoder turns the raw value returned by the query under path into
// something that can be printed as JSON.
type ModelDecoder func(path string, value []byte) (interface{}, error)

// QueryResult is a single printed query match.
type QueryResult struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// QueryCmd runs a query against the local ledger. The key is given in
// hex, or in base58 when it is a public key.
func QueryCmd(v *viper.Viper, open AppGenerator, decode ModelDecoder, parseKey func(string) ([]byte, error)) *cobra.Command {
	var prefix bool
	cmd := &cobra.Command{
		Use:   "query <path> [key]",
		Short: "Query the ledger state",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := LoadConfig(v)
			if err != nil {
				return err
			}
			logger, err := conf.Logger()
			if err != nil {
				return err
			}
			var key []byte
			if len(args) == 2 {
				if key, err = parseKey(args[1]); err != nil {
					return errors.Wrapf(errors.ErrInput, "key: %s", err)
				}
			}
			mod := weave.KeyQueryMod
			if prefix {
				mod = weave.PrefixQueryMod
			}

			ledger, err := open(conf.DataDir(), nil, logger)
			if err != nil {
				return err
			}
			defer ledger.Close()
			models, err := ledger.Query(args[0], mod, key)
			if err != nil {
				return err
			}

			res := make([]QueryResult, 0, len(models))
			for _, m := range models {
				val, err := decode(args[0], m.Value)
				if err != nil {
					return errors.Wrapf(err, "decode %X", m.Key)
				}
				res = append(res, QueryResult{Key: hex.EncodeToString(m.Key), Value: val})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().BoolVar(&prefix, "prefix", false, "treat the key as a prefix")
	return cmd
}
