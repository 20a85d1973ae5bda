package main

import (
	"log"

	"entgo.io/ent/entc"
	"entgo.io/ent/entc/gen"
)

// Generates the typed ent client for the pipeline tables into gen/ent.
// The runtime store uses hand-written SQL; run with `go run ./db/ent`.
func main() {
	err := entc.Generate(
		"./db/ent/schema",
		&gen.Config{
			Target:   "gen/ent",
			Package:  "github.com/joseph-ayodele/receipts-pipeline/gen/ent",
			Schema:   "github.com/joseph-ayodele/receipts-pipeline/db/ent/schema",
			Features: []gen.Feature{gen.FeatureUpsert},
		},
	)
	if err != nil {
		log.Fatal(err)
	}
}
