package models

import "strings"

// ParameterLocation is where a parameter is placed in the HTTP request
type ParameterLocation string

const (
	LocationPath   ParameterLocation = "path"
	LocationQuery  ParameterLocation = "query"
	LocationHeader ParameterLocation = "header"
	LocationCookie ParameterLocation = "cookie"
)

// Valid reports whether l is one of the four OpenAPI parameter locations
func (l ParameterLocation) Valid() bool {
	switch l {
	case LocationPath, LocationQuery, LocationHeader, LocationCookie:
		return true
	}
	return false
}

// Operation is the normalized descriptor of one REST endpoint
type Operation struct {
	ID          string
	Method      string
	ServerURL   string
	Path        string
	Summary     string
	Description string
	Tags        []string
	Parameters  []*Parameter
	RequestBody *RequestBody
	Security    []string // names of the security schemes that apply
}

// Parameter describes a single operation parameter
type Parameter struct {
	Name        string
	Location    ParameterLocation
	Required    bool
	Description string
	Schema      *Schema
}

// RequestBody describes the payload an operation accepts
type RequestBody struct {
	Required     bool
	Description  string
	ContentTypes []string // declaration order
	Content      map[string]*Schema
}

// ParametersIn returns the parameters declared for the given location, in order
func (o *Operation) ParametersIn(loc ParameterLocation) []*Parameter {
	var params []*Parameter
	for _, p := range o.Parameters {
		if p.Location == loc {
			params = append(params, p)
		}
	}
	return params
}

// Parameter looks up a parameter by name and location
func (o *Operation) Parameter(name string, loc ParameterLocation) (*Parameter, bool) {
	for _, p := range o.Parameters {
		if p.Location != loc {
			continue
		}
		if loc == LocationHeader && strings.EqualFold(p.Name, name) {
			return p, true
		}
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// URL returns the server URL joined with the unexpanded path template
func (o *Operation) URL() string {
	return o.ServerURL + o.Path
}

// Schema is a fully inlined JSON schema. References are resolved when the
// operation is extracted, so a Schema never points back into the source document.
type Schema struct {
	Ref         string // component name the schema was inlined from, informational only
	Type        []string
	Format      string
	Title       string
	Description string
	Enum        []any
	Default     any
	Example     any
	Nullable    bool

	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum bool
	ExclusiveMaximum bool
	MinLength        *int64
	MaxLength        *int64
	Pattern          string
	MinItems         *int64
	MaxItems         *int64

	Required             []string
	Properties           []Property
	Items                *Schema
	AdditionalProperties *bool
	AllOf                []*Schema
	OneOf                []*Schema
	AnyOf                []*Schema

	// Circular is set on the node where a reference cycle was cut.
	Circular bool
}

// Property is one named entry in Schema.Properties. A slice keeps declaration order.
type Property struct {
	Name   string
	Schema *Schema
}

// HasType reports whether the schema declares t among its types
func (s *Schema) HasType(t string) bool {
	if s == nil {
		return false
	}
	for _, st := range s.Type {
		if st == t {
			return true
		}
	}
	return false
}

// Property returns the schema of the named property
func (s *Schema) Property(name string) (*Schema, bool) {
	if s == nil {
		return nil, false
	}
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// IsRequired reports whether the named property is listed as required
func (s *Schema) IsRequired(name string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}
