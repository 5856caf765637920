package parser

import (
	"fmt"
	"strings"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/models"
	"github.com/pb33f/libopenapi/datamodel/high/base"
)

// yamlValue is satisfied by the yaml nodes libopenapi uses for examples,
// defaults and enum values.
type yamlValue interface {
	Decode(v any) error
}

// schemaInliner converts libopenapi schema proxies into owned models.Schema
// trees. References are followed eagerly; a reference that is already being
// expanded higher up the tree is cut and marked Circular.
type schemaInliner struct {
	visiting map[string]bool
}

func newSchemaInliner() *schemaInliner {
	return &schemaInliner{visiting: make(map[string]bool)}
}

func (c *schemaInliner) inline(proxy *base.SchemaProxy, where string) (out *models.Schema, err error) {
	if proxy == nil {
		return nil, nil
	}

	// libopenapi can panic on dangling references while building a schema.
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &errs.DocumentError{
				Code:    errs.CodeUnresolvedReference,
				Message: fmt.Sprintf("%s: schema could not be built", where),
				Err:     fmt.Errorf("%v", r),
			}
		}
	}()

	ref := ""
	if proxy.IsReference() {
		ref = proxy.GetReference()
	}
	if ref != "" && c.visiting[ref] {
		return &models.Schema{Ref: refName(ref), Circular: true}, nil
	}

	s, buildErr := proxy.BuildSchema()
	if s == nil {
		if ref != "" {
			return nil, &errs.DocumentError{
				Code:    errs.CodeUnresolvedReference,
				Message: fmt.Sprintf("%s: cannot resolve reference %s", where, ref),
				Err:     buildErr,
			}
		}
		if buildErr != nil {
			return nil, &errs.DocumentError{
				Code:    errs.CodeModelBuild,
				Message: fmt.Sprintf("%s: invalid schema", where),
				Err:     buildErr,
			}
		}
		return nil, nil
	}

	if ref != "" {
		c.visiting[ref] = true
		defer delete(c.visiting, ref)
	}

	out = &models.Schema{
		Ref:         refName(ref),
		Type:        append([]string(nil), s.Type...),
		Format:      s.Format,
		Title:       s.Title,
		Description: s.Description,
		Minimum:     s.Minimum,
		Maximum:     s.Maximum,
		MinLength:   s.MinLength,
		MaxLength:   s.MaxLength,
		Pattern:     s.Pattern,
		MinItems:    s.MinItems,
		MaxItems:    s.MaxItems,
		Required:    append([]string(nil), s.Required...),
	}
	if s.Nullable != nil {
		out.Nullable = *s.Nullable
	}

	// OAS 3.0 uses booleans for exclusive bounds, 3.1 uses the bound itself.
	if s.ExclusiveMinimum != nil {
		if s.ExclusiveMinimum.IsA() {
			out.ExclusiveMinimum = s.ExclusiveMinimum.A
		} else {
			v := s.ExclusiveMinimum.B
			out.Minimum = &v
			out.ExclusiveMinimum = true
		}
	}
	if s.ExclusiveMaximum != nil {
		if s.ExclusiveMaximum.IsA() {
			out.ExclusiveMaximum = s.ExclusiveMaximum.A
		} else {
			v := s.ExclusiveMaximum.B
			out.Maximum = &v
			out.ExclusiveMaximum = true
		}
	}

	if s.Default != nil {
		out.Default = decodeNode(s.Default)
	}
	if s.Example != nil {
		out.Example = decodeNode(s.Example)
	}
	for _, node := range s.Enum {
		if node != nil {
			out.Enum = append(out.Enum, decodeNode(node))
		}
	}

	if s.Properties != nil {
		for pair := s.Properties.First(); pair != nil; pair = pair.Next() {
			prop, err := c.inline(pair.Value(), where+"."+pair.Key())
			if err != nil {
				return nil, err
			}
			out.Properties = append(out.Properties, models.Property{Name: pair.Key(), Schema: prop})
		}
	}

	if s.Items != nil && s.Items.IsA() {
		items, err := c.inline(s.Items.A, where+"[]")
		if err != nil {
			return nil, err
		}
		out.Items = items
	}

	if s.AdditionalProperties != nil {
		allowed := true
		if s.AdditionalProperties.IsB() {
			allowed = s.AdditionalProperties.B
		}
		out.AdditionalProperties = &allowed
	}

	if out.AllOf, err = c.inlineAll(s.AllOf, where+".allOf"); err != nil {
		return nil, err
	}
	if out.OneOf, err = c.inlineAll(s.OneOf, where+".oneOf"); err != nil {
		return nil, err
	}
	if out.AnyOf, err = c.inlineAll(s.AnyOf, where+".anyOf"); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *schemaInliner) inlineAll(proxies []*base.SchemaProxy, where string) ([]*models.Schema, error) {
	var out []*models.Schema
	for i, p := range proxies {
		s, err := c.inline(p, fmt.Sprintf("%s[%d]", where, i))
		if err != nil {
			return nil, err
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func decodeNode(node yamlValue) any {
	var v any
	if err := node.Decode(&v); err != nil {
		return nil
	}
	return v
}

// refName turns "#/components/schemas/Todo" into "Todo"
func refName(ref string) string {
	if ref == "" {
		return ""
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
