package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/receipts-pipeline/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the pipeline schema",
	Long:  "Creates the receipts, jobs, decisions, rules and transaction tables if they do not exist.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close(logger)

		if err := repository.Migrate(ctx, db, logger); err != nil {
			return err
		}
		logger.Info("migrations applied", "dialect", db.Dialect)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
