package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sync"

	"github.com/moamenhredeen/oasplugin/internal/models"
)

// Validator validates decoded values against inlined OpenAPI schemas
type Validator struct {
	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{patterns: make(map[string]*regexp.Regexp)}
}

// Validate checks value against schema and returns every violation found.
// field is the name used for the root value in violation messages.
func (v *Validator) Validate(field string, value any, schema *models.Schema) []models.ValidationError {
	if schema == nil || schema.Circular {
		return nil
	}
	return v.validate(field, normalize(value), schema)
}

func (v *Validator) validate(field string, value any, schema *models.Schema) []models.ValidationError {
	var errors []models.ValidationError

	if schema == nil || schema.Circular {
		return nil
	}

	if value == nil {
		if schema.Nullable || schema.HasType("null") || len(schema.Type) == 0 {
			return nil
		}
		return []models.ValidationError{{Field: field, Message: "value is null"}}
	}

	for _, sub := range schema.AllOf {
		errors = append(errors, v.validate(field, value, sub)...)
	}
	if len(schema.OneOf) > 0 {
		switch n := v.countMatches(field, value, schema.OneOf); n {
		case 1:
		case 0:
			errors = append(errors, models.ValidationError{Field: field, Message: "value does not match any oneOf schema"})
		default:
			errors = append(errors, models.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("value matches %d oneOf schemas, expected exactly one", n),
			})
		}
	}
	if len(schema.AnyOf) > 0 && !v.matchesAny(field, value, schema.AnyOf) {
		errors = append(errors, models.ValidationError{Field: field, Message: "value does not match any anyOf schema"})
	}

	if len(schema.Type) > 0 && !matchesType(value, schema.Type) {
		errors = append(errors, models.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("expected %v, got %s", schema.Type, typeName(value)),
		})
		return errors
	}

	if len(schema.Enum) > 0 && !inEnum(value, schema.Enum) {
		errors = append(errors, models.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value %v is not one of %v", value, schema.Enum),
		})
	}

	switch val := value.(type) {
	case string:
		errors = append(errors, v.validateString(field, val, schema)...)
	case float64:
		errors = append(errors, validateNumber(field, val, schema)...)
	case []any:
		errors = append(errors, v.validateArray(field, val, schema)...)
	case map[string]any:
		errors = append(errors, v.validateObject(field, val, schema)...)
	}

	return errors
}

func (v *Validator) countMatches(field string, value any, schemas []*models.Schema) int {
	n := 0
	for _, s := range schemas {
		if len(v.validate(field, value, s)) == 0 {
			n++
		}
	}
	return n
}

func (v *Validator) matchesAny(field string, value any, schemas []*models.Schema) bool {
	for _, s := range schemas {
		if len(v.validate(field, value, s)) == 0 {
			return true
		}
	}
	return false
}

func (v *Validator) validateString(field, s string, schema *models.Schema) []models.ValidationError {
	var errors []models.ValidationError
	length := int64(len([]rune(s)))

	if schema.MinLength != nil && length < *schema.MinLength {
		errors = append(errors, models.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("length %d is shorter than %d", length, *schema.MinLength),
		})
	}
	if schema.MaxLength != nil && length > *schema.MaxLength {
		errors = append(errors, models.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("length %d is longer than %d", length, *schema.MaxLength),
		})
	}
	if schema.Pattern != "" {
		re, err := v.pattern(schema.Pattern)
		if err == nil && !re.MatchString(s) {
			errors = append(errors, models.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("value does not match pattern %q", schema.Pattern),
			})
		}
	}
	return errors
}

func validateNumber(field string, n float64, schema *models.Schema) []models.ValidationError {
	var errors []models.ValidationError

	if schema.HasType("integer") && !schema.HasType("number") && n != math.Trunc(n) {
		errors = append(errors, models.ValidationError{Field: field, Message: fmt.Sprintf("%v is not an integer", n)})
	}
	if schema.Minimum != nil {
		if n < *schema.Minimum || (schema.ExclusiveMinimum && n == *schema.Minimum) {
			errors = append(errors, models.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%v is below the minimum %v", n, *schema.Minimum),
			})
		}
	}
	if schema.Maximum != nil {
		if n > *schema.Maximum || (schema.ExclusiveMaximum && n == *schema.Maximum) {
			errors = append(errors, models.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%v is above the maximum %v", n, *schema.Maximum),
			})
		}
	}
	return errors
}

func (v *Validator) validateArray(field string, items []any, schema *models.Schema) []models.ValidationError {
	var errors []models.ValidationError
	count := int64(len(items))

	if schema.MinItems != nil && count < *schema.MinItems {
		errors = append(errors, models.ValidationError{Field: field, Message: fmt.Sprintf("expected at least %d items, got %d", *schema.MinItems, count)})
	}
	if schema.MaxItems != nil && count > *schema.MaxItems {
		errors = append(errors, models.ValidationError{Field: field, Message: fmt.Sprintf("expected at most %d items, got %d", *schema.MaxItems, count)})
	}
	if schema.Items != nil {
		for i, item := range items {
			errors = append(errors, v.validate(fmt.Sprintf("%s[%d]", field, i), item, schema.Items)...)
		}
	}
	return errors
}

func (v *Validator) validateObject(field string, obj map[string]any, schema *models.Schema) []models.ValidationError {
	var errors []models.ValidationError

	for _, requiredField := range schema.Required {
		if _, exists := obj[requiredField]; !exists {
			errors = append(errors, models.ValidationError{
				Field:   fmt.Sprintf("%s.%s", field, requiredField),
				Message: fmt.Sprintf("missing required field: %s", requiredField),
			})
		}
	}

	for _, prop := range schema.Properties {
		if val, ok := obj[prop.Name]; ok {
			errors = append(errors, v.validate(fmt.Sprintf("%s.%s", field, prop.Name), val, prop.Schema)...)
		}
	}

	if schema.AdditionalProperties != nil && !*schema.AdditionalProperties {
		for key := range obj {
			if _, declared := schema.Property(key); !declared {
				errors = append(errors, models.ValidationError{
					Field:   fmt.Sprintf("%s.%s", field, key),
					Message: "additional property is not allowed",
				})
			}
		}
	}

	return errors
}

func (v *Validator) pattern(expr string) (*regexp.Regexp, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if re, ok := v.patterns[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	v.patterns[expr] = re
	return re, nil
}

func matchesType(value any, types []string) bool {
	for _, t := range types {
		switch t {
		case "object":
			if _, ok := value.(map[string]any); ok {
				return true
			}
		case "array":
			if _, ok := value.([]any); ok {
				return true
			}
		case "string":
			if _, ok := value.(string); ok {
				return true
			}
		case "integer":
			if n, ok := value.(float64); ok && n == math.Trunc(n) {
				return true
			}
		case "number":
			if _, ok := value.(float64); ok {
				return true
			}
		case "boolean":
			if _, ok := value.(bool); ok {
				return true
			}
		case "null":
			if value == nil {
				return true
			}
		}
	}
	return false
}

func typeName(value any) string {
	switch value.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func inEnum(value any, enum []any) bool {
	for _, e := range enum {
		if fmt.Sprint(normalize(e)) == fmt.Sprint(value) {
			return true
		}
	}
	return false
}

// normalize converts arbitrary Go values into the shapes encoding/json
// produces (map[string]any, []any, float64, string, bool, nil) so that
// callers may pass structs or typed maps.
func normalize(value any) any {
	switch val := value.(type) {
	case nil, string, bool, float64:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case json.RawMessage:
		var out any
		if err := json.Unmarshal(val, &out); err != nil {
			return string(val)
		}
		return out
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return value
	}
	return out
}
