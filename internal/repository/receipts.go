package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/common"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
)

const receiptColumns = `id, image_data, mime_type, file_name, uploaded_by, uploaded_at,
	document_date, seller_name, seller_tax_id, customer_name, customer_tax_id,
	net_amount, vat_amount, total_amount, currency_code,
	normalized_data, ocr_text, ocr_confidence, status, transaction_id, updated_at`

func (t *sqlTx) CreateReceipt(ctx context.Context, r *entity.Receipt) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = constants.ReceiptStatusPending
	}
	r.UploadedAt = utc(r.UploadedAt)
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.UploadedAt
	}
	_, err := t.q.ExecContext(ctx, `INSERT INTO receipts (`+receiptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ImageData, r.MimeType, r.FileName, r.UploadedBy, r.UploadedAt,
		nullTime(r.DocumentDate), nullString(r.SellerName), nullString(r.SellerTaxID),
		nullString(r.CustomerName), nullString(r.CustomerTaxID),
		nullFloat(r.NetAmount), nullFloat(r.VATAmount), nullFloat(r.TotalAmount), r.CurrencyCode,
		r.NormalizedData, nullString(r.OCRText), nullFloat(r.OCRConfidence), string(r.Status),
		nullUUID(r.TransactionID), utc(r.UpdatedAt),
	)
	if err != nil {
		t.log.Error("receipt create failed", "receipt_id", r.ID, "err", err)
		return fmt.Errorf("create receipt: %w", err)
	}
	t.log.Debug("receipt created", "receipt_id", r.ID, "mime_type", r.MimeType, "bytes", len(r.ImageData))
	return nil
}

func (t *sqlTx) GetReceipt(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, id)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("receipt %s", id), common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return r, nil
}

func (s *sqlStore) GetReceipt(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	return s.reader().GetReceipt(ctx, id)
}

func (s *sqlStore) reader() *sqlTx {
	return &sqlTx{q: s.q(s.db), dialect: s.dialect, log: s.log}
}

func (t *sqlTx) SaveNormalizedReceipt(ctx context.Context, id uuid.UUID, data []byte, now time.Time) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE receipts SET normalized_data = ?, status = ?, updated_at = ? WHERE id = ?`,
		data, string(constants.ReceiptStatusProcessing), utc(now), id)
	if err != nil {
		return fmt.Errorf("save normalized receipt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NewAppError("NOT_FOUND", fmt.Sprintf("receipt %s", id), common.ErrNotFound)
	}
	return nil
}

func (t *sqlTx) CompleteReceiptText(ctx context.Context, id uuid.UUID, text string, confidence float64, now time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx,
		`UPDATE receipts SET ocr_text = ?, ocr_confidence = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		text, confidence, string(constants.ReceiptStatusCompleted), utc(now),
		id, string(constants.ReceiptStatusProcessing))
	if err != nil {
		return false, fmt.Errorf("complete receipt text: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete receipt text: %w", err)
	}
	return n == 1, nil
}

func (t *sqlTx) FailReceipt(ctx context.Context, id uuid.UUID, now time.Time, onlyFrom ...constants.ReceiptStatus) (bool, error) {
	query := `UPDATE receipts SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{string(constants.ReceiptStatusFailed), utc(now), id}
	if len(onlyFrom) > 0 {
		query += ` AND status IN (` + placeholders(len(onlyFrom)) + `)`
		for _, st := range onlyFrom {
			args = append(args, string(st))
		}
	}
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("fail receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail receipt: %w", err)
	}
	return n == 1, nil
}

func (t *sqlTx) SaveApproval(ctx context.Context, r *entity.Receipt, now time.Time) error {
	r.UpdatedAt = utc(now)
	res, err := t.q.ExecContext(ctx,
		`UPDATE receipts SET vat_amount = ?, total_amount = ?, transaction_id = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		nullFloat(r.VATAmount), nullFloat(r.TotalAmount), nullUUID(r.TransactionID), r.UpdatedAt,
		r.ID, string(constants.ReceiptStatusCompleted))
	if err != nil {
		return fmt.Errorf("save approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NewAppError("CONFLICT", fmt.Sprintf("receipt %s is no longer completed", r.ID), common.ErrConflict)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*entity.Receipt, error) {
	var (
		r                                entity.Receipt
		docDate                          sql.NullTime
		seller, sellerTax, cust, custTax sql.NullString
		net, vat, total, conf            sql.NullFloat64
		ocrText                          sql.NullString
		status                           string
		txID                             uuid.NullUUID
	)
	err := row.Scan(
		&r.ID, &r.ImageData, &r.MimeType, &r.FileName, &r.UploadedBy, &r.UploadedAt,
		&docDate, &seller, &sellerTax, &cust, &custTax,
		&net, &vat, &total, &r.CurrencyCode,
		&r.NormalizedData, &ocrText, &conf, &status, &txID, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.UploadedAt = r.UploadedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	r.DocumentDate = timePtr(docDate)
	r.SellerName = stringPtr(seller)
	r.SellerTaxID = stringPtr(sellerTax)
	r.CustomerName = stringPtr(cust)
	r.CustomerTaxID = stringPtr(custTax)
	r.NetAmount = floatPtr(net)
	r.VATAmount = floatPtr(vat)
	r.TotalAmount = floatPtr(total)
	r.OCRText = stringPtr(ocrText)
	r.OCRConfidence = floatPtr(conf)
	r.Status = constants.ReceiptStatus(status)
	r.TransactionID = uuidPtr(txID)
	return &r, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
