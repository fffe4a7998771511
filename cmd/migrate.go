package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"faimport/internal/database"
	"faimport/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the staging tables",
	Long: `Create the staging, rules and processing log tables if they do not exist.

With DB_DRIVER=sqlite the FrontAccounting stock_master table is created as well
so the module can run against a local mock database. Against MySQL the host's
stock_master is expected to exist already.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := logger.WithComponent("migrate")

		ctx, cancel := signalContext(0)
		defer cancel()

		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := database.Migrate(ctx, a.db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.Info().Str("driver", a.cfg.DBDriver).Str("prefix", a.cfg.DBTablePrefix).Msg("Schema is up to date")
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
