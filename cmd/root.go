package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"faimport/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "faimport",
	Short: "Amazon invoice staging import for FrontAccounting",
	Long: `faimport stages Amazon purchase invoices for FrontAccounting.

Invoices are read from Gmail, uploaded or local PDFs, matched to FrontAccounting
stock items through matching rules and kept in staging tables until an operator
has reviewed them and posted them in FrontAccounting.

Configuration is read from the environment and an optional .env file.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("actor", "", "User recorded in the processing log (default: DEFAULT_ACTOR)")
}
