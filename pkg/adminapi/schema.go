package adminapi

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/mcpgateway/registry/pkg/registry"
)

// validateToolSchemas rejects a registration/edit whose ToolDescriptor.Schema
// does not compile as a JSON Schema, before it ever reaches C3 or C5 — a
// malformed schema would otherwise surface much later as an opaque
// discovery-index or client-side validation failure (§7 Validation).
func validateToolSchemas(tools []registry.ToolDescriptor) error {
	for _, t := range tools {
		if t.Schema == nil {
			continue
		}
		if err := validateOneSchema(t.Schema); err != nil {
			return fmt.Errorf("tool %q: invalid schema: %w", t.Name, err)
		}
	}
	return nil
}

func validateOneSchema(raw map[string]any) error {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(encoded, &schema); err != nil {
		return err
	}
	_, err = schema.Resolve(nil)
	return err
}
