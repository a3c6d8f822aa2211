package tool

import (
	"encoding/json"
	"fmt"
)

// ValidateInput checks tool input against a schema before dispatch.
// Validation covers required fields, primitive types, enums, array
// items, and nested objects. Unknown fields pass through untouched.
func ValidateInput(schema Schema, input json.RawMessage) error {
	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err != nil {
		return fmt.Errorf("input is not a JSON object: %w", err)
	}

	for _, name := range schema.Required {
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("missing required field %q", name)
		}
	}

	for name, def := range schema.Properties {
		value, ok := fields[name]
		if !ok {
			continue
		}
		if err := validateValue(name, def, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(name string, def Property, value any) error {
	if value == nil {
		return nil
	}

	switch def.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q: expected string, got %T", name, value)
		}
		if len(def.Enum) > 0 && !contains(def.Enum, s) {
			return fmt.Errorf("field %q: %q not in %v", name, s, def.Enum)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("field %q: expected number, got %T", name, value)
		}
	case "integer":
		f, ok := value.(float64)
		if !ok {
			return fmt.Errorf("field %q: expected integer, got %T", name, value)
		}
		if f != float64(int64(f)) {
			return fmt.Errorf("field %q: expected integer, got %v", name, f)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q: expected boolean, got %T", name, value)
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("field %q: expected array, got %T", name, value)
		}
		if def.Items != nil {
			for i, item := range items {
				if err := validateValue(fmt.Sprintf("%s[%d]", name, i), *def.Items, item); err != nil {
					return err
				}
			}
		}
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("field %q: expected object, got %T", name, value)
		}
		for propName, propDef := range def.Properties {
			if propVal, exists := obj[propName]; exists {
				if err := validateValue(name+"."+propName, propDef, propVal); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
