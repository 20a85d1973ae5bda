package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var backlogFailOnAlert bool

// errBacklogAlert makes the command exit non-zero for cron-style checks.
var errBacklogAlert = errors.New("backlog alert")

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Print a backlog snapshot",
	Long:  "Counts receipts and jobs by status, ages the oldest pending/processing work and evaluates the alert thresholds.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close(logger)
		snap, err := newMonitor(store).Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		if err := printJSON(cmd, snap); err != nil {
			return err
		}
		if backlogFailOnAlert && snap.HasAlert {
			return errBacklogAlert
		}
		return nil
	},
}

var refreshRulesCmd = &cobra.Command{
	Use:   "refresh-rules",
	Short: "Rebuild suggestion rules from approval decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close(logger)
		res, err := newRefresher(store).Refresh(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]int{
			"groups":   res.Groups,
			"inserted": res.Inserted,
			"updated":  res.Updated,
			"written":  res.Written(),
		})
	},
}

func init() {
	backlogCmd.Flags().BoolVar(&backlogFailOnAlert, "fail-on-alert", false, "exit non-zero when any threshold is exceeded")
	rootCmd.AddCommand(backlogCmd, refreshRulesCmd)
}
