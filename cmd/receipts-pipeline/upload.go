package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/receipts-pipeline/internal/receipts"
)

var uploadFlags struct {
	uploadedBy   string
	mimeType     string
	seller       string
	currency     string
	documentDate string
	total        float64
	vat          float64
	net          float64
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Store a receipt and enqueue it for processing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		f := cmd.Flags()

		owner, err := uuid.Parse(uploadFlags.uploadedBy)
		if err != nil {
			return fmt.Errorf("--uploaded-by must be a UUID: %w", err)
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		req := receipts.UploadRequest{
			Data:         data,
			MimeType:     uploadFlags.mimeType,
			FileName:     filepath.Base(args[0]),
			UploadedBy:   owner,
			CurrencyCode: uploadFlags.currency,
		}
		if f.Changed("seller") {
			req.SellerName = &uploadFlags.seller
		}
		if f.Changed("total") {
			req.TotalAmount = &uploadFlags.total
		}
		if f.Changed("vat") {
			req.VATAmount = &uploadFlags.vat
		}
		if f.Changed("net") {
			req.NetAmount = &uploadFlags.net
		}
		if uploadFlags.documentDate != "" {
			d, err := time.Parse("2006-01-02", uploadFlags.documentDate)
			if err != nil {
				return fmt.Errorf("--document-date must be YYYY-MM-DD: %w", err)
			}
			req.DocumentDate = &d
		}

		db, store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close(logger)
		rec, job, err := receipts.NewService(store, newQueue(), logger).Upload(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"receipt_id": rec.ID,
			"job_id":     job.ID,
			"status":     rec.Status,
			"mime_type":  rec.MimeType,
			"bytes":      len(data),
		})
	},
}

func init() {
	f := uploadCmd.Flags()
	f.StringVar(&uploadFlags.uploadedBy, "uploaded-by", "", "uploader user id (UUID)")
	f.StringVar(&uploadFlags.mimeType, "mime", "", "content type; derived from the file extension when empty")
	f.StringVar(&uploadFlags.seller, "seller", "", "seller name")
	f.StringVar(&uploadFlags.currency, "currency", "", "ISO currency code")
	f.StringVar(&uploadFlags.documentDate, "document-date", "", "document date (YYYY-MM-DD)")
	f.Float64Var(&uploadFlags.total, "total", 0, "total amount")
	f.Float64Var(&uploadFlags.vat, "vat", 0, "VAT amount")
	f.Float64Var(&uploadFlags.net, "net", 0, "net amount")
	_ = uploadCmd.MarkFlagRequired("uploaded-by")
	rootCmd.AddCommand(uploadCmd)
}
