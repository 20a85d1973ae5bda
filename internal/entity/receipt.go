package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
)

// Receipt represents an uploaded receipt for data transfer between layers.
type Receipt struct {
	ID         uuid.UUID `json:"id"`
	ImageData  []byte    `json:"-"`
	MimeType   string    `json:"mime_type"`
	FileName   string    `json:"file_name,omitempty"`
	UploadedBy uuid.UUID `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`

	DocumentDate  *time.Time `json:"document_date,omitempty"`
	SellerName    *string    `json:"seller_name,omitempty"`
	SellerTaxID   *string    `json:"seller_tax_id,omitempty"`
	CustomerName  *string    `json:"customer_name,omitempty"`
	CustomerTaxID *string    `json:"customer_tax_id,omitempty"`
	NetAmount     *float64   `json:"net_amount,omitempty"`
	VATAmount     *float64   `json:"vat_amount,omitempty"`
	TotalAmount   *float64   `json:"total_amount,omitempty"`
	CurrencyCode  string     `json:"currency_code"`

	NormalizedData []byte                  `json:"-"`
	OCRText        *string                 `json:"ocr_text,omitempty"`
	OCRConfidence  *float64                `json:"ocr_confidence,omitempty"`
	Status         constants.ReceiptStatus `json:"status"`
	TransactionID  *uuid.UUID              `json:"transaction_id,omitempty"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// Seller returns the seller name or "" when unknown.
func (r *Receipt) Seller() string {
	if r.SellerName == nil {
		return ""
	}
	return *r.SellerName
}
