package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaResource = "schema.json"

// compileSchema compiles a Go map schema. The map is round-tripped through
// JSON because the compiler only accepts JSON-decoded values.
func compileSchema(doc map[string]any) (*jsonschema.Schema, error) {
	schemaDoc, err := toJSONValue(doc)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaResource, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	schema, err := c.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return schema, nil
}

func validateSchema(schema *jsonschema.Schema, payload map[string]any) error {
	instance, err := toJSONValue(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return schema.Validate(instance)
}

func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}
