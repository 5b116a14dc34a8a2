// Package validator checks record fields and proposed changes against the
// kind descriptors before anything is written.
package validator

import (
	"fmt"
	"time"

	"github.com/openwitness/chronicle/internal/domain"
)

// ValidateCreate checks a full field map for a brand-new record: every
// required field present, no undeclared fields, every value well-typed.
func ValidateCreate(desc domain.KindDescriptor, fields map[string]any) error {
	for _, def := range desc.Fields {
		value, exists := fields[def.Name]
		if def.Required && (!exists || value == nil) {
			return &domain.ValidationError{Field: def.Name, Message: "required field is missing"}
		}
		if !exists || value == nil {
			continue
		}
		if err := validateValue(def, value); err != nil {
			return err
		}
	}

	return rejectUndeclared(desc, fields)
}

// ValidateChanges checks a proposed-changes map: non-empty, every key a
// declared mutable field, every value well-typed. Identity and
// version-control attributes are not declared fields, so they are rejected
// here by construction.
func ValidateChanges(desc domain.KindDescriptor, changes map[string]any) error {
	if len(changes) == 0 {
		return &domain.ValidationError{Message: "proposed changes must contain at least one field"}
	}

	for name, value := range changes {
		def, ok := desc.Field(name)
		if !ok {
			return &domain.ValidationError{Field: name, Message: fmt.Sprintf("field is not declared for kind %s", desc.Kind)}
		}
		if !def.Mutable {
			return &domain.ValidationError{Field: name, Message: "field is not mutable"}
		}
		if value == nil {
			return &domain.ValidationError{Field: name, Message: "value must not be null"}
		}
		if err := validateValue(def, value); err != nil {
			return err
		}
	}
	return nil
}

func rejectUndeclared(desc domain.KindDescriptor, fields map[string]any) error {
	for name := range fields {
		if _, ok := desc.Field(name); !ok {
			return &domain.ValidationError{Field: name, Message: fmt.Sprintf("field is not declared for kind %s", desc.Kind)}
		}
	}
	return nil
}

func validateValue(def domain.FieldDefinition, value any) error {
	switch def.Type {
	case domain.FieldTypeString:
		s, ok := value.(string)
		if !ok {
			return &domain.ValidationError{Field: def.Name, Message: fmt.Sprintf("must be a string, got %T", value)}
		}
		if len(def.Enum) > 0 && !enumContains(def.Enum, s) {
			return &domain.ValidationError{Field: def.Name, Message: fmt.Sprintf("value %q is not one of the allowed values", s)}
		}
	case domain.FieldTypeInteger:
		if !isInteger(value) {
			return &domain.ValidationError{Field: def.Name, Message: fmt.Sprintf("must be an integer, got %T", value)}
		}
	case domain.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return &domain.ValidationError{Field: def.Name, Message: fmt.Sprintf("must be a boolean, got %T", value)}
		}
	case domain.FieldTypeTimestamp:
		switch v := value.(type) {
		case string:
			if _, err := time.Parse(time.RFC3339, v); err != nil {
				return &domain.ValidationError{Field: def.Name, Message: "must be an RFC3339 timestamp"}
			}
		case time.Time:
			// already parsed
		default:
			return &domain.ValidationError{Field: def.Name, Message: fmt.Sprintf("must be a timestamp string, got %T", value)}
		}
	case domain.FieldTypeStringList:
		switch v := value.(type) {
		case []string:
			// decoded natively
		case []any:
			for _, item := range v {
				if _, ok := item.(string); !ok {
					return &domain.ValidationError{Field: def.Name, Message: fmt.Sprintf("list items must be strings, got %T", item)}
				}
			}
		default:
			return &domain.ValidationError{Field: def.Name, Message: fmt.Sprintf("must be a list of strings, got %T", value)}
		}
	default:
		return &domain.ValidationError{Field: def.Name, Message: fmt.Sprintf("unsupported field type %s", def.Type)}
	}
	return nil
}

// isInteger accepts native ints plus whole float64 values, since JSON
// decoding turns numbers into float64.
func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		return v == float64(int64(v))
	default:
		return false
	}
}

func enumContains(enum []string, value string) bool {
	for _, item := range enum {
		if item == value {
			return true
		}
	}
	return false
}
