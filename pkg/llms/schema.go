package llms

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a strict JSON schema for v's type, inlined (no $ref
// indirection) so it can be sent as an OpenAI response_format schema.
func SchemaFor(v any) (map[string]any, error) {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}

	// response_format schemas must not carry draft metadata.
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// StructuredFor builds a StructuredOutputConfig for v's type under name.
func StructuredFor(name string, v any) (*StructuredOutputConfig, error) {
	schema, err := SchemaFor(v)
	if err != nil {
		return nil, err
	}
	return &StructuredOutputConfig{Name: name, Schema: schema}, nil
}

// DecodeStructured parses the raw JSON text of a structured completion into
// out.
func DecodeStructured(text string, out any) error {
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return llmErrorf("structured output is not valid JSON: %v", err)
	}
	return nil
}
