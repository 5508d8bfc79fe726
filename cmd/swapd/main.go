package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iov-one/weave-escrow"
	swapd "github.com/iov-one/weave-escrow/cmd/swapd/app"
	"github.com/iov-one/weave-escrow/commands/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "swapd",
		Short:         "Two party token swap ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultHome := filepath.Join(os.ExpandEnv("$HOME"), ".swapd")
	server.BindFlags(root, v, defaultHome)

	root.AddCommand(
		server.InitCmd(v, swapd.GenInitOptions, swapd.Application, swapd.Initializers()),
		server.StartCmd(v, swapd.Application),
		server.QueryCmd(v, swapd.Application, swapd.DecodeModel, swapd.ParseKey),
		keygenCmd(),
		txCmd(v),
		&cobra.Command{
			Use:   "version",
			Short: "Print the app version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), weave.VersionString())
			},
		},
	)
	return root
}
