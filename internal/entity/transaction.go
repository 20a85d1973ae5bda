package entity

import (
	"time"

	"github.com/google/uuid"
)

// FinancialTransaction is the posting created when a receipt is approved.
type FinancialTransaction struct {
	ID              uuid.UUID `json:"id"`
	ReceiptID       uuid.UUID `json:"receipt_id"`
	ReferenceNumber string    `json:"reference_number"`
	Description     string    `json:"description"`
	TransactionDate time.Time `json:"transaction_date"`
	TotalAmount     *float64  `json:"total_amount,omitempty"`
	VATAmount       *float64  `json:"vat_amount,omitempty"`
	CreatedBy       uuid.UUID `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Entries         []TxEntry `json:"entries,omitempty"`
}

// TxEntry is one line of a transaction; exactly one of Debit/Credit is non-zero.
type TxEntry struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Debit     float64   `json:"debit"`
	Credit    float64   `json:"credit"`
	LineNo    int       `json:"line_no"`
}
