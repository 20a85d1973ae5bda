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

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/db/ent/schema/utils"
)

type ProcessingJob struct{ ent.Schema }

func (ProcessingJob) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "processing_jobs"},
	}
}

func (ProcessingJob) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("receipt_id", uuid.UUID{}).Immutable(),
		field.String("status").
			Default(string(constants.JobStatusPending)).
			Validate(utils.EnumValidator(constants.Strings(constants.JobStatuses)...)),
		field.Time("created_at").Default(time.Now).Immutable(),
		// claims skip jobs until this instant (retry backoff)
		field.Time("available_at").Default(time.Now),
		field.Time("started_at").Optional().Nillable(),
		field.Time("completed_at").Optional().Nillable(),
		field.Int("retry_count").Default(0).NonNegative(),
		field.String("error_message").Optional().Nillable().MaxLen(constants.MaxErrorMessageLen),
	}
}

func (ProcessingJob) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("receipt", Receipt.Type).
			Ref("jobs").
			Field("receipt_id").
			Unique().
			Required().
			Immutable(),
	}
}

func (ProcessingJob) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status", "available_at", "created_at"),
		index.Fields("status", "completed_at"),
		index.Fields("receipt_id", "created_at"),
	}
}
