package tools

import (
	"fmt"
	"math"
	"sort"
)

// Schema is the subset of JSON Schema used by tool parameters.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Validate checks required fields and primitive types, recursing into
// objects and arrays. Unknown properties are allowed.
func Validate(args map[string]any, schema *Schema) error {
	if schema == nil {
		return nil
	}
	return validateObject("", args, schema)
}

func validateObject(path string, obj map[string]any, schema *Schema) error {
	for _, field := range schema.Required {
		if v, ok := obj[field]; !ok || v == nil {
			return fmt.Errorf("missing required field: %s", join(path, field))
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		prop, ok := schema.Properties[key]
		if !ok || prop == nil {
			continue
		}
		if err := validateValue(join(path, key), obj[key], prop); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(path string, value any, schema *Schema) error {
	// Optional fields may be sent as null.
	if value == nil {
		return nil
	}
	switch schema.Type {
	case "":
		return nil
	case "string":
		if _, ok := value.(string); ok {
			return nil
		}
	case "number":
		if _, ok := value.(float64); ok {
			return nil
		}
	case "integer":
		if f, ok := value.(float64); ok && math.Trunc(f) == f {
			return nil
		}
	case "boolean":
		if _, ok := value.(bool); ok {
			return nil
		}
	case "object":
		if m, ok := value.(map[string]any); ok {
			return validateObject(path, m, schema)
		}
	case "array":
		if items, ok := value.([]any); ok {
			if schema.Items == nil {
				return nil
			}
			for i, item := range items {
				if err := validateValue(fmt.Sprintf("%s[%d]", path, i), item, schema.Items); err != nil {
					return err
				}
			}
			return nil
		}
	default:
		return fmt.Errorf("field %s: unsupported schema type %q", path, schema.Type)
	}
	return fmt.Errorf("field %s: expected %s but got %s", path, schema.Type, jsonType(value))
}

func jsonType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
