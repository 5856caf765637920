package plugin

import "github.com/moamenhredeen/oasplugin/internal/models"

// SchemaJSON renders an inlined schema as a JSON schema document. Circular
// nodes are rendered as bare objects.
func SchemaJSON(s *models.Schema) map[string]any {
	out := map[string]any{}
	if s == nil {
		out["type"] = "string"
		return out
	}
	if s.Circular {
		out["type"] = "object"
		return out
	}

	switch len(s.Type) {
	case 0:
	case 1:
		out["type"] = s.Type[0]
	default:
		out["type"] = append([]string(nil), s.Type...)
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if s.Title != "" {
		out["title"] = s.Title
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Default != nil {
		out["default"] = s.Default
	}
	if s.Minimum != nil {
		out["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		out["maximum"] = *s.Maximum
	}
	if s.MinLength != nil {
		out["minLength"] = *s.MinLength
	}
	if s.MaxLength != nil {
		out["maxLength"] = *s.MaxLength
	}
	if s.Pattern != "" {
		out["pattern"] = s.Pattern
	}
	if s.Items != nil {
		out["items"] = SchemaJSON(s.Items)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for _, p := range s.Properties {
			props[p.Name] = SchemaJSON(p.Schema)
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = append([]string(nil), s.Required...)
	}
	for key, list := range map[string][]*models.Schema{"allOf": s.AllOf, "oneOf": s.OneOf, "anyOf": s.AnyOf} {
		if len(list) == 0 {
			continue
		}
		rendered := make([]any, len(list))
		for i, sub := range list {
			rendered[i] = SchemaJSON(sub)
		}
		out[key] = rendered
	}
	return out
}
