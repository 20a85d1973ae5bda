package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/receipts-pipeline/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:       "export rules|backlog",
	Short:     "Write an XLSX export",
	ValidArgs: []string{"rules", "backlog"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close(logger)
		svc := export.NewService(store, newMonitor(store), logger)

		var data []byte
		switch args[0] {
		case "rules":
			data, err = svc.RulesXLSX(ctx)
		case "backlog":
			data, err = svc.BacklogXLSX(ctx)
		}
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = args[0] + ".xlsx"
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		logger.Info("export written", "kind", args[0], "path", out, "bytes", len(data))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output path (default <kind>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
