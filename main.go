package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/PolarWolf314/zkdrive/cmd"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "zkdrive",
	Short: "zkdrive - An end-to-end encrypted file vault.",
	Long: `zkdrive stores files so that only you can read them. Files are encrypted
on this machine before they are uploaded, and folder names, file names and
keys never leave it in the clear.

Features:
  - Password-derived keys: the server never sees your password or keys
  - Chunked uploads and authenticated, resumable downloads
  - A local vault, or any zkdrive-compatible server

Usage:
  zkdrive <command> [flags]

Available Commands:
  vault      Sign up, unlock, and move files in and out of your vault
  config     Manage zkdrive configuration

Run 'zkdrive help <command>' for more details on a specific command.
`,
	Run: func(cmd *cobra.Command, args []string) {
		figure.NewColorFigure("zkdrive", "alligator2", "green", true).Print()
		fmt.Println()
		fmt.Println("Welcome to zkdrive! Run 'zkdrive --help' to see available commands.")
	},
}

// normalizeFlagName accepts --persist_key as --persist-key.
func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func init() {
	rootCmd.AddCommand(cmd.VaultCmd)
	rootCmd.AddCommand(cmd.ConfigCmd)
	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
