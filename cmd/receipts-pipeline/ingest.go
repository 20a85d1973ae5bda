package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/receipts-pipeline/internal/ingest"
	"github.com/joseph-ayodele/receipts-pipeline/internal/receipts"
)

const defaultDebounce = 500 * time.Millisecond

var ingestFlags struct {
	uploadedBy string
	watch      bool
	skipHidden bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>...",
	Short: "Upload every receipt file under one or more directories",
	Long:  "Walks the directories and uploads pdf/jpg/jpeg/png files. With --watch it keeps running and uploads new files as they appear.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		owner, err := uuid.Parse(ingestFlags.uploadedBy)
		if err != nil {
			return fmt.Errorf("--uploaded-by must be a UUID: %w", err)
		}

		db, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close(logger)
		ing := ingest.NewIngestor(receipts.NewService(store, newQueue(), logger), owner, logger)

		if ingestFlags.watch {
			err := ing.Watch(ctx, ingest.WatchConfig{Roots: args, InitialScan: true, Debounce: defaultDebounce})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var all []ingest.Result
		var total ingest.DirStats
		for _, root := range args {
			results, stats, err := ing.IngestDirectory(ctx, root, ingestFlags.skipHidden)
			if err != nil {
				return err
			}
			all = append(all, results...)
			total.Scanned += stats.Scanned
			total.Matched += stats.Matched
			total.Succeeded += stats.Succeeded
			total.Duplicates += stats.Duplicates
			total.Failed += stats.Failed
		}
		return printJSON(cmd, map[string]any{"stats": total, "results": all})
	},
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestFlags.uploadedBy, "uploaded-by", "", "uploader user id (UUID)")
	f.BoolVar(&ingestFlags.watch, "watch", false, "keep watching the directories for new files")
	f.BoolVar(&ingestFlags.skipHidden, "skip-hidden", true, "skip dot files and directories")
	_ = ingestCmd.MarkFlagRequired("uploaded-by")
	rootCmd.AddCommand(ingestCmd)
}
