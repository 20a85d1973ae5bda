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

type FinancialTransaction struct{ ent.Schema }

func (FinancialTransaction) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "financial_transactions"},
	}
}

func (FinancialTransaction) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("receipt_id", uuid.UUID{}).Unique().Immutable(),
		field.String("reference_number").NotEmpty().Immutable(),
		field.String("description").Default(""),
		field.Time("transaction_date"),
		field.Float("total_amount").Optional().Nillable().SchemaType(money),
		field.Float("vat_amount").Optional().Nillable().SchemaType(money),
		field.UUID("created_by", uuid.UUID{}).Immutable(),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (FinancialTransaction) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("receipt", Receipt.Type).
			Ref("transaction").
			Field("receipt_id").
			Unique().
			Required().
			Immutable(),
		edge.To("entries", TransactionEntry.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

type TransactionEntry struct{ ent.Schema }

func (TransactionEntry) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "transaction_entries"},
	}
}

func (TransactionEntry) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("transaction_id", uuid.UUID{}),
		field.UUID("account_id", uuid.UUID{}),
		field.Float("debit").Default(0).Min(0).SchemaType(money),
		field.Float("credit").Default(0).Min(0).SchemaType(money),
		field.Int("line_no").Positive(),
	}
}

func (TransactionEntry) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("transaction", FinancialTransaction.Type).
			Ref("entries").
			Field("transaction_id").
			Unique().
			Required(),
	}
}

func (TransactionEntry) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("transaction_id"),
	}
}
