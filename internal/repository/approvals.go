package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-pipeline/internal/common"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
)

func (t *sqlTx) InsertDecision(ctx context.Context, d *entity.ReceiptDecision) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = utc(d.CreatedAt)
	_, err := t.q.ExecContext(ctx, `INSERT INTO receipt_decisions
		(id, receipt_id, purpose_account_id, posting_account_id, vat_override, total_override, notes, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ReceiptID, nullUUID(d.PurposeAccountID), nullUUID(d.PostingAccountID),
		nullFloat(d.VATOverride), nullFloat(d.TotalOverride), nullString(d.Notes), d.CreatedBy, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (t *sqlTx) GetTransactionByReceipt(ctx context.Context, receiptID uuid.UUID) (*entity.FinancialTransaction, error) {
	var (
		ft         entity.FinancialTransaction
		total, vat sql.NullFloat64
	)
	err := t.q.QueryRowContext(ctx, `SELECT id, receipt_id, reference_number, description, transaction_date,
		total_amount, vat_amount, created_by, created_at, updated_at
		FROM financial_transactions WHERE receipt_id = ?`, receiptID).
		Scan(&ft.ID, &ft.ReceiptID, &ft.ReferenceNumber, &ft.Description, &ft.TransactionDate,
			&total, &vat, &ft.CreatedBy, &ft.CreatedAt, &ft.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("transaction for receipt %s", receiptID), common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	ft.TotalAmount = floatPtr(total)
	ft.VATAmount = floatPtr(vat)
	ft.TransactionDate = ft.TransactionDate.UTC()
	ft.CreatedAt = ft.CreatedAt.UTC()
	ft.UpdatedAt = ft.UpdatedAt.UTC()

	rows, err := t.q.QueryContext(ctx, `SELECT id, account_id, debit, credit, line_no
		FROM transaction_entries WHERE transaction_id = ? ORDER BY line_no`, ft.ID)
	if err != nil {
		return nil, fmt.Errorf("get transaction entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e entity.TxEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Debit, &e.Credit, &e.LineNo); err != nil {
			return nil, fmt.Errorf("scan transaction entry: %w", err)
		}
		ft.Entries = append(ft.Entries, e)
	}
	return &ft, rows.Err()
}

// SaveTransaction inserts or updates ft (keyed by ID) and replaces its entries.
func (t *sqlTx) SaveTransaction(ctx context.Context, ft *entity.FinancialTransaction) error {
	if ft.ID == uuid.Nil {
		ft.ID = uuid.New()
	}
	res, err := t.q.ExecContext(ctx, `UPDATE financial_transactions
		SET description = ?, transaction_date = ?, total_amount = ?, vat_amount = ?, updated_at = ?
		WHERE id = ?`,
		ft.Description, utc(ft.TransactionDate), nullFloat(ft.TotalAmount), nullFloat(ft.VATAmount),
		utc(ft.UpdatedAt), ft.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = t.q.ExecContext(ctx, `INSERT INTO financial_transactions
			(id, receipt_id, reference_number, description, transaction_date, total_amount, vat_amount, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ft.ID, ft.ReceiptID, ft.ReferenceNumber, ft.Description, utc(ft.TransactionDate),
			nullFloat(ft.TotalAmount), nullFloat(ft.VATAmount), ft.CreatedBy, utc(ft.CreatedAt), utc(ft.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}

	if _, err := t.q.ExecContext(ctx, `DELETE FROM transaction_entries WHERE transaction_id = ?`, ft.ID); err != nil {
		return fmt.Errorf("clear transaction entries: %w", err)
	}
	for i := range ft.Entries {
		e := &ft.Entries[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		_, err := t.q.ExecContext(ctx, `INSERT INTO transaction_entries (id, transaction_id, account_id, debit, credit, line_no)
			VALUES (?, ?, ?, ?, ?, ?)`, e.ID, ft.ID, e.AccountID, e.Debit, e.Credit, e.LineNo)
		if err != nil {
			return fmt.Errorf("insert transaction entry: %w", err)
		}
	}
	return nil
}
