package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"
)

// ReceiptDecision rows are never updated.
type ReceiptDecision struct{ ent.Schema }

func (ReceiptDecision) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "receipt_decisions"},
	}
}

func (ReceiptDecision) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("receipt_id", uuid.UUID{}).Immutable(),
		field.UUID("purpose_account_id", uuid.UUID{}).Optional().Nillable().Immutable(),
		field.UUID("posting_account_id", uuid.UUID{}).Optional().Nillable().Immutable(),
		field.Float("vat_override").Optional().Nillable().Immutable().SchemaType(money),
		field.Float("total_override").Optional().Nillable().Immutable().SchemaType(money),
		field.String("notes").Optional().Nillable().Immutable(),
		field.UUID("created_by", uuid.UUID{}).Immutable(),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (ReceiptDecision) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("receipt", Receipt.Type).
			Ref("decisions").
			Field("receipt_id").
			Unique().
			Required().
			Immutable(),
	}
}

func (ReceiptDecision) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("receipt_id"),
	}
}

// SuggestionRule is rebuilt by the rule refresher; one row per
// (seller, purpose, posting) triple.
type SuggestionRule struct{ ent.Schema }

func (SuggestionRule) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "suggestion_rules"},
	}
}

func (SuggestionRule) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.String("seller_name").NotEmpty(),
		field.UUID("purpose_account_id", uuid.UUID{}),
		field.UUID("posting_account_id", uuid.UUID{}),
		field.Int("occurrence_count").Positive(),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("last_updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (SuggestionRule) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("seller_name", "purpose_account_id", "posting_account_id").Unique(),
	}
}
