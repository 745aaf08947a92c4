package configregistry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// validateResponseFormat enforces spec's "Schema strict mode": a schema
// revision's response_format must be a compilable JSON-Schema document,
// and every object-typed subschema must set additionalProperties:false,
// so that extraction results with extra properties are rejected at
// extraction time rather than silently accepted.
func validateResponseFormat(raw json.RawMessage) error {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("response_format must be a JSON object: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response_format.json", bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("response_format is not a valid JSON-Schema document: %w", err)
	}
	if _, err := compiler.Compile("response_format.json"); err != nil {
		return fmt.Errorf("response_format is not a valid JSON-Schema document: %w", err)
	}

	return requireAdditionalPropertiesFalse(doc, "")
}

// requireAdditionalPropertiesFalse walks a decoded schema document and
// rejects any object-typed (sub)schema whose additionalProperties is
// missing or not literally false.
func requireAdditionalPropertiesFalse(node map[string]any, path string) error {
	if typ, ok := node["type"].(string); ok && typ == "object" {
		ap, present := node["additionalProperties"]
		if !present {
			return fmt.Errorf("object schema at %q must set additionalProperties:false", displayPath(path))
		}
		if b, ok := ap.(bool); !ok || b {
			return fmt.Errorf("object schema at %q must set additionalProperties:false, not %v", displayPath(path), ap)
		}
	}

	if props, ok := node["properties"].(map[string]any); ok {
		for name, child := range props {
			childNode, ok := child.(map[string]any)
			if !ok {
				continue
			}
			if err := requireAdditionalPropertiesFalse(childNode, path+"."+name); err != nil {
				return err
			}
		}
	}

	if items, ok := node["items"].(map[string]any); ok {
		if err := requireAdditionalPropertiesFalse(items, path+"[]"); err != nil {
			return err
		}
	}

	return nil
}

func displayPath(path string) string {
	if path == "" {
		return "$"
	}
	return "$" + path
}
