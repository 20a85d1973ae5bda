package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/db/ent/schema/utils"
)

var money = map[string]string{dialect.Postgres: "numeric(14,2)"}

type Receipt struct{ ent.Schema }

func (Receipt) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "receipts"},
	}
}

func (Receipt) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable().
			StorageKey("id"),
		field.Bytes("image_data").NotEmpty().Immutable(),
		field.String("mime_type").NotEmpty().
			Validate(utils.EnumValidator(constants.MimeJPEG, constants.MimePNG, constants.MimePDF)),
		field.String("file_name").Default(""),
		field.UUID("uploaded_by", uuid.UUID{}).Immutable(),
		field.Time("uploaded_at").Immutable(),
		field.Time("document_date").Optional().Nillable(),
		field.String("seller_name").Optional().Nillable(),
		field.String("seller_tax_id").Optional().Nillable(),
		field.String("customer_name").Optional().Nillable(),
		field.String("customer_tax_id").Optional().Nillable(),
		field.Float("net_amount").Optional().Nillable().SchemaType(money),
		field.Float("vat_amount").Optional().Nillable().SchemaType(money),
		field.Float("total_amount").Optional().Nillable().SchemaType(money),
		field.String("currency_code").Default("").MaxLen(3),
		// written by the normalize stage
		field.Bytes("normalized_data").Optional().Nillable(),
		field.String("ocr_text").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.Float("ocr_confidence").Optional().Nillable(),
		field.String("status").
			Validate(utils.EnumValidator(constants.Strings(constants.ReceiptStatuses)...)),
		field.UUID("transaction_id", uuid.UUID{}).Optional().Nillable(),
		field.Time("updated_at"),
	}
}

func (Receipt) Edges() []ent.Edge {
	return []ent.Edge{
		// ONE receipt -> MANY jobs
		edge.To("jobs", ProcessingJob.Type),
		// ONE receipt -> MANY decisions (append-only)
		edge.To("decisions", ReceiptDecision.Type),
		// ONE receipt -> at most ONE transaction
		edge.To("transaction", FinancialTransaction.Type).Unique(),
	}
}

func (Receipt) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status", "uploaded_at"),
	}
}
