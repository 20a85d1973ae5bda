package receipts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/async"
	"github.com/joseph-ayodele/receipts-pipeline/internal/common"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
	"github.com/joseph-ayodele/receipts-pipeline/internal/repository"
)

// Service is the upload and approval boundary in front of the pipeline.
// Errors are gRPC status errors.
type Service struct {
	store  repository.Store
	queue  *async.Queue
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new receipt service.
func NewService(store repository.Store, queue *async.Queue, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, queue: queue, now: time.Now, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// UploadRequest carries receipt metadata and the raw payload.
type UploadRequest struct {
	Data       []byte
	MimeType   string
	FileName   string
	UploadedBy uuid.UUID

	DocumentDate  *time.Time
	SellerName    *string
	SellerTaxID   *string
	CustomerName  *string
	CustomerTaxID *string
	NetAmount     *float64
	VATAmount     *float64
	TotalAmount   *float64
	CurrencyCode  string
}

// Upload validates the payload, then persists the receipt and its first
// processing job in one transaction.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*entity.Receipt, *entity.ProcessingJob, error) {
	mime := constants.NormalizeMime(req.MimeType)
	if mime == "" || mime == "application/octet-stream" {
		mime = constants.MimeFromExt(filepath.Ext(req.FileName))
	}
	currency := strings.ToUpper(strings.TrimSpace(req.CurrencyCode))

	v := common.NewValidator().
		Field("data", req.Data, common.Required, common.MaxBytes(constants.MaxUploadBytes)).
		Field("mime_type", mime, common.OneOf(constants.AllowedMimeTypes)).
		Field("uploaded_by", req.UploadedBy, common.Required).
		Field("file_name", req.FileName, common.MaxLength(255)).
		Field("seller_name", req.SellerName, common.MaxLength(255)).
		Field("seller_tax_id", req.SellerTaxID, common.MaxLength(64)).
		Field("customer_name", req.CustomerName, common.MaxLength(255)).
		Field("customer_tax_id", req.CustomerTaxID, common.MaxLength(64)).
		Field("currency_code", currency, common.MaxLength(3)).
		Field("net_amount", req.NetAmount, common.NonNegative).
		Field("vat_amount", req.VATAmount, common.NonNegative).
		Field("total_amount", req.TotalAmount, common.NonNegative)
	if err := common.ValidateAndReturnError(v); err != nil {
		s.logger.Warn("receipts.upload.invalid", "file_name", req.FileName, "mime_type", mime, "bytes", len(req.Data), "err", v.ErrorMessage())
		return nil, nil, err
	}

	now := s.now().UTC()
	r := &entity.Receipt{
		ImageData:     req.Data,
		MimeType:      mime,
		FileName:      req.FileName,
		UploadedBy:    req.UploadedBy,
		UploadedAt:    now,
		DocumentDate:  req.DocumentDate,
		SellerName:    trimmed(req.SellerName),
		SellerTaxID:   trimmed(req.SellerTaxID),
		CustomerName:  trimmed(req.CustomerName),
		CustomerTaxID: trimmed(req.CustomerTaxID),
		NetAmount:     req.NetAmount,
		VATAmount:     req.VATAmount,
		TotalAmount:   req.TotalAmount,
		CurrencyCode:  currency,
		Status:        constants.ReceiptStatusPending,
	}
	var job *entity.ProcessingJob
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateReceipt(ctx, r); err != nil {
			return err
		}
		var err error
		job, err = s.queue.Enqueue(ctx, tx, r.ID)
		return err
	})
	if err != nil {
		s.logger.Error("receipts.upload.failed", "file_name", req.FileName, "err", err)
		return nil, nil, common.InternalErrorf("upload receipt: %v", err)
	}
	s.logger.Info("receipts.upload.ok", "receipt_id", r.ID, "job_id", job.ID, "mime_type", mime, "bytes", len(req.Data))
	return r, job, nil
}

// Get returns one receipt.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	r, err := s.store.GetReceipt(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return r, nil
}

// ApproveRequest is a reviewer's decision on a Completed receipt.
type ApproveRequest struct {
	ReceiptID   uuid.UUID
	ActorUserID uuid.UUID

	PurposeAccountID *uuid.UUID
	PostingAccountID *uuid.UUID
	VATOverride      *float64
	TotalOverride    *float64
	Notes            *string
}

// ApproveResult is what an approval wrote.
type ApproveResult struct {
	Receipt     *entity.Receipt
	Decision    *entity.ReceiptDecision
	Transaction *entity.FinancialTransaction
	Created     bool // transaction created by this call
}

// Approve records the decision and creates or updates the receipt's
// financial transaction. The transaction and its reference are stable per
// receipt, so repeating the call converges on the same posting.
func (s *Service) Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error) {
	v := common.NewValidator().
		Field("receipt_id", req.ReceiptID, common.Required).
		Field("actor_user_id", req.ActorUserID, common.Required).
		Field("vat_override", req.VATOverride, common.NonNegative).
		Field("total_override", req.TotalOverride, common.NonNegative).
		Field("notes", req.Notes, common.MaxLength(2000))
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}

	var res *ApproveResult
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		res, err = s.approve(ctx, tx, req, s.now().UTC())
		return err
	})
	if err != nil {
		s.logger.Warn("receipts.approve.failed", "receipt_id", req.ReceiptID, "actor", req.ActorUserID, "err", err)
		return nil, common.ToStatus(err)
	}
	s.logger.Info("receipts.approve.ok",
		"receipt_id", req.ReceiptID,
		"transaction_id", res.Transaction.ID,
		"reference", res.Transaction.ReferenceNumber,
		"created", res.Created,
		"entries", len(res.Transaction.Entries),
	)
	return res, nil
}

func (s *Service) approve(ctx context.Context, tx repository.Tx, req ApproveRequest, now time.Time) (*ApproveResult, error) {
	r, err := tx.GetReceipt(ctx, req.ReceiptID)
	if err != nil {
		return nil, err
	}
	if r.Status != constants.ReceiptStatusCompleted {
		return nil, common.NewAppError("NOT_READY",
			fmt.Sprintf("receipt %s is %s; OCR has not completed", r.ID, r.Status), common.ErrNotReady)
	}

	if req.VATOverride != nil {
		r.VATAmount = req.VATOverride
	}
	if req.TotalOverride != nil {
		r.TotalAmount = req.TotalOverride
	}

	d := &entity.ReceiptDecision{
		ReceiptID:        r.ID,
		PurposeAccountID: req.PurposeAccountID,
		PostingAccountID: req.PostingAccountID,
		VATOverride:      req.VATOverride,
		TotalOverride:    req.TotalOverride,
		Notes:            trimmed(req.Notes),
		CreatedBy:        req.ActorUserID,
		CreatedAt:        now,
	}
	if err := tx.InsertDecision(ctx, d); err != nil {
		return nil, err
	}

	ft, err := tx.GetTransactionByReceipt(ctx, r.ID)
	created := false
	switch {
	case errors.Is(err, common.ErrNotFound):
		created = true
		ft = &entity.FinancialTransaction{
			ReceiptID:       r.ID,
			ReferenceNumber: ReferenceNumber(r.ID),
			CreatedBy:       req.ActorUserID,
			CreatedAt:       now,
		}
	case err != nil:
		return nil, err
	}

	ft.Description = describe(r)
	ft.TransactionDate = r.UploadedAt
	if r.DocumentDate != nil {
		ft.TransactionDate = *r.DocumentDate
	}
	ft.TotalAmount = r.TotalAmount
	ft.VATAmount = r.VATAmount
	ft.UpdatedAt = now
	if entries := postEntries(req.PurposeAccountID, req.PostingAccountID, r.TotalAmount); entries != nil {
		ft.Entries = entries
	}
	if err := tx.SaveTransaction(ctx, ft); err != nil {
		return nil, err
	}

	r.TransactionID = &ft.ID
	if err := tx.SaveApproval(ctx, r, now); err != nil {
		return nil, err
	}
	return &ApproveResult{Receipt: r, Decision: d, Transaction: ft, Created: created}, nil
}

// ReferenceNumber derives the transaction reference from the receipt id.
func ReferenceNumber(receiptID uuid.UUID) string {
	hex := strings.ReplaceAll(receiptID.String(), "-", "")
	return "RCT-" + strings.ToUpper(hex[:12])
}

// postEntries debits the purpose account and credits the posting account
// with the total. It returns nil unless both accounts and the total are known.
func postEntries(purpose, posting *uuid.UUID, total *float64) []entity.TxEntry {
	if purpose == nil || posting == nil || total == nil {
		return nil
	}
	return []entity.TxEntry{
		{AccountID: *purpose, Debit: *total, LineNo: 1},
		{AccountID: *posting, Credit: *total, LineNo: 2},
	}
}

func describe(r *entity.Receipt) string {
	switch {
	case r.Seller() != "":
		return "Receipt from " + r.Seller()
	case r.FileName != "":
		return "Receipt " + r.FileName
	default:
		return "Receipt " + r.ID.String()
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
