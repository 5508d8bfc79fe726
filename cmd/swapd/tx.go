package main

import (
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/iov-one/weave-escrow"
	swapd "github.com/iov-one/weave-escrow/cmd/swapd/app"
	"github.com/iov-one/weave-escrow/commands/server"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/iov-one/weave-escrow/x/escrow"
	"github.com/iov-one/weave-escrow/x/sigs"
	"github.com/iov-one/weave-escrow/x/token"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// txFlags are shared by every transaction command.
type txFlags struct {
	keyFile  string
	sequence uint64
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.keyFile, "key", "", "solana keygen file of the signer")
	cmd.Flags().Uint64Var(&f.sequence, "sequence", 0, "signer sequence, read from the local ledger when not set")
	_ = cmd.MarkFlagRequired("key")
}

// txCmd groups the commands that build a signed transaction and print it
// hex encoded, ready to be piped into start.
func txCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Build and sign transactions",
	}
	cmd.AddCommand(
		openCmd(v),
		cancelCmd(v),
		exchangeCmd(v),
		createMintCmd(v),
		mintToCmd(v),
		createAccountCmd(v),
		transferCmd(v),
	)
	return cmd
}

// msgBuilder returns the message to sign on behalf of signer.
type msgBuilder func(conf *server.Config, signer solana.PublicKey) (weave.Msg, error)

// signedTxCmd builds a command signing the message with --key. Each
// cosigner is a path to a keygen file whose key signs as well, with its
// sequence read from the local ledger.
func signedTxCmd(v *viper.Viper, use, short string, args cobra.PositionalArgs, build msgBuilder, cosigners ...*string) *cobra.Command {
	flags := &txFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := server.LoadConfig(v)
			if err != nil {
				return err
			}
			key, err := loadKey(flags.keyFile)
			if err != nil {
				return err
			}
			msg, err := build(conf, key.PublicKey())
			if err != nil {
				return err
			}
			if err := msg.Validate(); err != nil {
				return err
			}

			seq := flags.sequence
			if !cmd.Flags().Changed("sequence") {
				if seq, err = localSequence(conf, key.PublicKey()); err != nil {
					return err
				}
			}
			tx := swapd.NewTx(msg)
			if err := tx.Sign(key, conf.ChainID, seq); err != nil {
				return err
			}
			for _, path := range cosigners {
				co, err := loadKey(*path)
				if err != nil {
					return err
				}
				coSeq, err := localSequence(conf, co.PublicKey())
				if err != nil {
					return err
				}
				if err := tx.Sign(co, conf.ChainID, coSeq); err != nil {
					return err
				}
			}
			raw, err := tx.Marshal()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(raw))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func loadKey(path string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "key %s: %s", path, err)
	}
	return key, nil
}

// localSequence reads the next sequence of pubkey from the local ledger.
func localSequence(conf *server.Config, pubkey solana.PublicKey) (uint64, error) {
	logger, err := conf.Logger()
	if err != nil {
		return 0, err
	}
	ledger, err := swapd.Application(conf.DataDir(), nil, logger)
	if err != nil {
		return 0, errors.Wrap(err, "open ledger, pass --sequence when it is in use")
	}
	defer ledger.Close()
	models, err := ledger.Query("/auth", weave.KeyQueryMod, pubkey[:])
	if err != nil || len(models) == 0 {
		return 0, err
	}
	var u sigs.UserData
	if err := u.Unmarshal(models[0].Value); err != nil {
		return 0, err
	}
	return u.Sequence, nil
}

func associated(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	return token.AssociatedAddress(owner, mint)
}

// pubkeyVar declares a required base58 public key flag.
func pubkeyVar(cmd *cobra.Command, dest *string, name, usage string) {
	cmd.Flags().StringVar(dest, name, "", usage)
	_ = cmd.MarkFlagRequired(name)
}

// keyFlag is a base58 flag value and where to store it once parsed.
type keyFlag struct {
	value string
	dest  *solana.PublicKey
}

func parsePubkeys(flags ...keyFlag) error {
	for _, f := range flags {
		pk, err := solana.PublicKeyFromBase58(f.value)
		if err != nil {
			return errors.Wrapf(errors.ErrInput, "public key %q: %s", f.value, err)
		}
		*f.dest = pk
	}
	return nil
}

func openCmd(v *viper.Viper) *cobra.Command {
	var (
		mintA, mintB        string
		seed, amount, taker uint64
	)
	cmd := signedTxCmd(v, "open", "Lock tokens of mint A in a new escrow asking for mint B", cobra.NoArgs,
		func(conf *server.Config, signer solana.PublicKey) (weave.Msg, error) {
			msg := &escrow.OpenMsg{
				Initializer:       signer,
				Seed:              seed,
				InitializerAmount: amount,
				TakerAmount:       taker,
			}
			if err := parsePubkeys(keyFlag{mintA, &msg.MintA}, keyFlag{mintB, &msg.MintB}); err != nil {
				return nil, err
			}
			src, err := associated(signer, msg.MintA)
			if err != nil {
				return nil, err
			}
			msg.InitializerAccountA = src
			return msg, nil
		})
	pubkeyVar(cmd, &mintA, "mint-a", "mint of the locked tokens")
	pubkeyVar(cmd, &mintB, "mint-b", "mint asked in exchange")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "escrow seed, unique per initializer")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount of mint A to lock")
	cmd.Flags().Uint64Var(&taker, "taker-amount", 0, "amount of mint B asked")
	return cmd
}

// escrowAccounts derives the escrow and vault of initializer and seed.
func escrowAccounts(conf *server.Config, initializer solana.PublicKey, seed uint64, mintA solana.PublicKey) (address, vault solana.PublicKey, err error) {
	address, _, err = escrow.EscrowAddress(conf.ProgramID, initializer, seed)
	if err != nil {
		return address, vault, err
	}
	vault, err = escrow.VaultAddress(address, mintA)
	return address, vault, err
}

func cancelCmd(v *viper.Viper) *cobra.Command {
	var (
		mintA string
		seed  uint64
	)
	cmd := signedTxCmd(v, "cancel", "Return the locked tokens and close the escrow", cobra.NoArgs,
		func(conf *server.Config, signer solana.PublicKey) (weave.Msg, error) {
			var mint solana.PublicKey
			if err := parsePubkeys(keyFlag{mintA, &mint}); err != nil {
				return nil, err
			}
			address, vault, err := escrowAccounts(conf, signer, seed, mint)
			if err != nil {
				return nil, err
			}
			dest, err := associated(signer, mint)
			if err != nil {
				return nil, err
			}
			return &escrow.CancelMsg{
				Initializer:         signer,
				Escrow:              address,
				Vault:               vault,
				InitializerAccountA: dest,
			}, nil
		})
	pubkeyVar(cmd, &mintA, "mint-a", "mint of the locked tokens")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "escrow seed")
	return cmd
}

func exchangeCmd(v *viper.Viper) *cobra.Command {
	var (
		initializer, mintA, mintB string
		seed                      uint64
	)
	cmd := signedTxCmd(v, "exchange", "Pay the asked tokens and take the escrowed ones", cobra.NoArgs,
		func(conf *server.Config, signer solana.PublicKey) (weave.Msg, error) {
			var owner, a, b solana.PublicKey
			if err := parsePubkeys(keyFlag{initializer, &owner}, keyFlag{mintA, &a}, keyFlag{mintB, &b}); err != nil {
				return nil, err
			}
			address, vault, err := escrowAccounts(conf, owner, seed, a)
			if err != nil {
				return nil, err
			}
			msg := &escrow.ExchangeMsg{Taker: signer, Escrow: address, Vault: vault}
			if msg.TakerAccountB, err = associated(signer, b); err != nil {
				return nil, err
			}
			if msg.TakerAccountA, err = associated(signer, a); err != nil {
				return nil, err
			}
			if msg.InitializerAccountB, err = associated(owner, b); err != nil {
				return nil, err
			}
			return msg, nil
		})
	pubkeyVar(cmd, &initializer, "initializer", "owner of the escrow")
	pubkeyVar(cmd, &mintA, "mint-a", "mint of the locked tokens")
	pubkeyVar(cmd, &mintB, "mint-b", "mint asked in exchange")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "escrow seed")
	return cmd
}

func createMintCmd(v *viper.Viper) *cobra.Command {
	var (
		mintKey  string
		decimals uint8
	)
	cmd := signedTxCmd(v, "create-mint", "Register a token type, the signer becomes its authority", cobra.NoArgs,
		func(conf *server.Config, signer solana.PublicKey) (weave.Msg, error) {
			key, err := loadKey(mintKey)
			if err != nil {
				return nil, err
			}
			return &token.CreateMintMsg{Mint: key.PublicKey(), MintAuthority: signer, Decimals: decimals}, nil
		}, &mintKey)
	cmd.Flags().StringVar(&mintKey, "mint-key", "", "solana keygen file of the new mint, its public key is the mint address")
	_ = cmd.MarkFlagRequired("mint-key")
	cmd.Flags().Uint8Var(&decimals, "decimals", 0, "decimals of the mint")
	return cmd
}

func mintToCmd(v *viper.Viper) *cobra.Command {
	var (
		mint, owner string
		amount      uint64
	)
	cmd := signedTxCmd(v, "mint-to", "Issue tokens into the associated account of owner", cobra.NoArgs,
		func(conf *server.Config, signer solana.PublicKey) (weave.Msg, error) {
			var o solana.PublicKey
			msg := &token.MintToMsg{Amount: amount}
			if err := parsePubkeys(keyFlag{mint, &msg.Mint}, keyFlag{owner, &o}); err != nil {
				return nil, err
			}
			dest, err := associated(o, msg.Mint)
			if err != nil {
				return nil, err
			}
			msg.Destination = dest
			return msg, nil
		})
	pubkeyVar(cmd, &mint, "mint", "mint to issue")
	pubkeyVar(cmd, &owner, "owner", "owner of the credited account")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to issue")
	return cmd
}

func createAccountCmd(v *viper.Viper) *cobra.Command {
	var mint, owner string
	cmd := signedTxCmd(v, "create-account", "Create the associated account of owner", cobra.NoArgs,
		func(conf *server.Config, signer solana.PublicKey) (weave.Msg, error) {
			msg := &token.CreateAccountMsg{Owner: signer}
			if owner != "" {
				if err := parsePubkeys(keyFlag{owner, &msg.Owner}); err != nil {
					return nil, err
				}
			}
			if err := parsePubkeys(keyFlag{mint, &msg.Mint}); err != nil {
				return nil, err
			}
			return msg, nil
		})
	pubkeyVar(cmd, &mint, "mint", "mint of the account")
	cmd.Flags().StringVar(&owner, "owner", "", "owner of the account, the signer by default")
	return cmd
}

func transferCmd(v *viper.Viper) *cobra.Command {
	var (
		mint, to string
		amount   uint64
		decimals uint8
	)
	cmd := signedTxCmd(v, "transfer", "Move tokens between associated accounts", cobra.NoArgs,
		func(conf *server.Config, signer solana.PublicKey) (weave.Msg, error) {
			var dest solana.PublicKey
			msg := &token.TransferMsg{Amount: amount, Decimals: decimals}
			if err := parsePubkeys(keyFlag{mint, &msg.Mint}, keyFlag{to, &dest}); err != nil {
				return nil, err
			}
			var err error
			if msg.Source, err = associated(signer, msg.Mint); err != nil {
				return nil, err
			}
			if msg.Destination, err = associated(dest, msg.Mint); err != nil {
				return nil, err
			}
			return msg, nil
		})
	pubkeyVar(cmd, &mint, "mint", "mint to transfer")
	pubkeyVar(cmd, &to, "to", "owner of the destination account")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to transfer")
	cmd.Flags().Uint8Var(&decimals, "decimals", 0, "decimals of the mint")
	return cmd
}
