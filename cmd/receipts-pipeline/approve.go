package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/receipts-pipeline/internal/receipts"
)

var approveFlags struct {
	actor   string
	purpose string
	posting string
	notes   string
	vat     float64
	total   float64
}

var approveCmd = &cobra.Command{
	Use:   "approve <receipt-id>",
	Short: "Approve a completed receipt and post its transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()

		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("receipt id must be a UUID: %w", err)
		}
		actor, err := uuid.Parse(approveFlags.actor)
		if err != nil {
			return fmt.Errorf("--actor must be a UUID: %w", err)
		}
		req := receipts.ApproveRequest{ReceiptID: id, ActorUserID: actor}
		if req.PurposeAccountID, err = optUUID(approveFlags.purpose); err != nil {
			return fmt.Errorf("--purpose-account: %w", err)
		}
		if req.PostingAccountID, err = optUUID(approveFlags.posting); err != nil {
			return fmt.Errorf("--posting-account: %w", err)
		}
		if f.Changed("vat") {
			req.VATOverride = &approveFlags.vat
		}
		if f.Changed("total") {
			req.TotalOverride = &approveFlags.total
		}
		if f.Changed("notes") {
			req.Notes = &approveFlags.notes
		}

		db, store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close(logger)
		res, err := receipts.NewService(store, newQueue(), logger).Approve(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"transaction_id":   res.Transaction.ID,
			"reference_number": res.Transaction.ReferenceNumber,
			"decision_id":      res.Decision.ID,
			"created":          res.Created,
			"entries":          res.Transaction.Entries,
		})
	},
}

func optUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func init() {
	f := approveCmd.Flags()
	f.StringVar(&approveFlags.actor, "actor", "", "approving user id (UUID)")
	f.StringVar(&approveFlags.purpose, "purpose-account", "", "purpose (debit) account id")
	f.StringVar(&approveFlags.posting, "posting-account", "", "posting (credit) account id")
	f.StringVar(&approveFlags.notes, "notes", "", "reviewer notes")
	f.Float64Var(&approveFlags.vat, "vat", 0, "VAT override")
	f.Float64Var(&approveFlags.total, "total", 0, "total override")
	_ = approveCmd.MarkFlagRequired("actor")
	rootCmd.AddCommand(approveCmd)
}
