package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// transcriptionSchema is the only shape accepted from a vision model.
// Confidence is a number; range is the caller's contract and is not enforced.
func transcriptionSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"text":       map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "number"},
		},
		"required": []string{"text", "confidence"},
	}
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("transcription.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("transcription.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

type transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

var reFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// extractJSON strips markdown fences and any prose around the first JSON object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if m := reFence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		s = s[i : j+1]
	}
	return s
}

func decodeTranscription(schema *jsonschema.Schema, raw string) (transcription, error) {
	doc := extractJSON(raw)
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return transcription{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return transcription{}, fmt.Errorf("json does not match schema: %w", err)
	}
	var out transcription
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return transcription{}, fmt.Errorf("decode transcription: %w", err)
	}
	return out, nil
}
