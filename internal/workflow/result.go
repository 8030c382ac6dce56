package workflow

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resultSchema constrains what we accept as a structured analysis result.
// Anything the model produces that does not satisfy it gets replaced by the
// fallback structure instead of failing the run.
const resultSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["summary"],
	"properties": {
		"summary": {"type": "string", "minLength": 1},
		"key_points": {"type": "array", "items": {"type": "string"}},
		"topics": {"type": "array", "items": {"type": "string"}},
		"sentiment": {"type": "string"},
		"document_type": {"type": "string"}
	}
}`

var compiledResultSchema = mustCompileResultSchema()

func mustCompileResultSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", bytes.NewReader([]byte(resultSchema))); err != nil {
		panic(err)
	}
	return compiler.MustCompile("result.json")
}

// FallbackResult is the fixed structure substituted when the model output
// cannot be parsed into a valid result
func FallbackResult() map[string]any {
	return map[string]any{
		"summary":       "The analysis finished but its output could not be parsed into a structured result.",
		"key_points":    []any{},
		"topics":        []any{},
		"sentiment":     "unknown",
		"document_type": "unknown",
		"fallback":      true,
	}
}

// ParseResult extracts the structured payload from raw model output. Models
// wrap JSON in prose or code fences, so parsing spans the first '{' to the
// last '}'. A missing, malformed or schema-violating payload yields the
// fallback structure, never an error.
func ParseResult(raw string) map[string]any {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return FallbackResult()
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return FallbackResult()
	}

	if err := compiledResultSchema.Validate(payload); err != nil {
		return FallbackResult()
	}

	return payload
}
