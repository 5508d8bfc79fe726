package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/spf13/cobra"
)

// keygenCmd writes a new private key in the solana keygen file format.
func keygenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen <file>",
		Short: "Generate a new ed25519 key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil && !force {
				return errors.Wrapf(errors.ErrDuplicate, "%s exists", args[0])
			}
			key, err := solana.NewRandomPrivateKey()
			if err != nil {
				return errors.Wrapf(errors.ErrInput, "generate key: %s", err)
			}
			if err := writeKeygenFile(args[0], key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.PublicKey())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// writeKeygenFile stores key as a JSON array of bytes, which is what
// solana.PrivateKeyFromSolanaKeygenFile reads.
func writeKeygenFile(path string, key solana.PrivateKey) error {
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return errors.Wrapf(errors.ErrInput, "encode key: %s", err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return errors.Wrapf(errors.ErrInput, "write key: %s", err)
	}
	return nil
}
