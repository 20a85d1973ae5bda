package entity

import (
	"time"

	"github.com/google/uuid"
)

// ReceiptDecision is the append-only record of one approval.
type ReceiptDecision struct {
	ID               uuid.UUID  `json:"id"`
	ReceiptID        uuid.UUID  `json:"receipt_id"`
	PurposeAccountID *uuid.UUID `json:"purpose_account_id,omitempty"`
	PostingAccountID *uuid.UUID `json:"posting_account_id,omitempty"`
	VATOverride      *float64   `json:"vat_override,omitempty"`
	TotalOverride    *float64   `json:"total_override,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	CreatedBy        uuid.UUID  `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
}

// RuleKey identifies a suggestion rule.
type RuleKey struct {
	SellerName       string    `json:"seller_name"`
	PurposeAccountID uuid.UUID `json:"purpose_account_id"`
	PostingAccountID uuid.UUID `json:"posting_account_id"`
}

// DecisionGroup is one aggregated (seller, purpose, posting) triple.
type DecisionGroup struct {
	RuleKey
	Count int `json:"count"`
}

// SuggestionRule is a learned seller -> account mapping.
type SuggestionRule struct {
	ID uuid.UUID `json:"id"`
	RuleKey
	OccurrenceCount int       `json:"occurrence_count"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
}
