package plugin

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/models"
	"github.com/moamenhredeen/oasplugin/internal/runner"
)

const (
	// PayloadArgument carries the whole request body when dynamic payloads are off.
	PayloadArgument = "payload"
	// ContentTypeArgument selects one of the declared request content types.
	ContentTypeArgument = "content_type"
)

// LocationBody marks arguments that feed the request body
const LocationBody models.ParameterLocation = "body"

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// Argument describes one named input of a Function
type Argument struct {
	Name        string
	Description string
	Required    bool
	Location    models.ParameterLocation
	Schema      *models.Schema

	// source is the parameter name in the document, path the property path
	// inside the body for dynamic payload arguments
	source string
	path   []string
}

// Function is an operation exposed to a model as a callable function
type Function struct {
	pluginName  string
	name        string
	description string
	operation   *models.Operation
	arguments   []Argument
	runner      *runner.Runner
	// flattened is set when the body is assembled from per-property arguments
	flattened bool
}

func newFunction(pluginName string, op *models.Operation, r *runner.Runner) *Function {
	params := r.Parameters()
	description := op.Description
	if description == "" {
		description = op.Summary
	}

	f := &Function{
		pluginName:  pluginName,
		name:        SanitizeName(op.ID),
		description: description,
		operation:   op,
		runner:      r,
	}
	f.arguments = buildArguments(op, params.EnableDynamicPayload, params.EnablePayloadNamespacing)
	f.flattened = params.EnableDynamicPayload && op.RequestBody != nil && jsonBodySchema(op.RequestBody) != nil
	return f
}

// SanitizeName replaces characters that are not valid in function names
func SanitizeName(name string) string {
	return strings.Trim(invalidNameChars.ReplaceAllString(name, "_"), "_")
}

// Name returns the function name within its plugin
func (f *Function) Name() string { return f.name }

// PluginName returns the owning plugin's name
func (f *Function) PluginName() string { return f.pluginName }

// FullyQualifiedName joins plugin and function name, e.g. "todo-getTodos"
func (f *Function) FullyQualifiedName() string {
	return f.pluginName + "-" + f.name
}

// Description returns the operation description, or its summary
func (f *Function) Description() string { return f.description }

// Operation returns the operation the function calls
func (f *Function) Operation() *models.Operation { return f.operation }

// Arguments returns the argument metadata in declaration order
func (f *Function) Arguments() []Argument {
	return append([]Argument(nil), f.arguments...)
}

// Parameters renders the arguments as a JSON schema object, the shape
// function calling APIs expect.
func (f *Function) Parameters() map[string]any {
	properties := make(map[string]any, len(f.arguments))
	required := []string{}
	for _, arg := range f.arguments {
		prop := SchemaJSON(arg.Schema)
		if arg.Description != "" {
			prop["description"] = arg.Description
		}
		properties[arg.Name] = prop
		if arg.Required {
			required = append(required, arg.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Invoke maps flat arguments onto the operation's parameters and body and
// runs it.
func (f *Function) Invoke(ctx context.Context, args map[string]any) (*models.RunnerResult, error) {
	runArgs := runner.Arguments{
		PathParams:   map[string]any{},
		QueryParams:  map[string]any{},
		HeaderParams: map[string]any{},
		Cookies:      map[string]any{},
	}

	for _, arg := range f.arguments {
		if arg.Location == LocationBody {
			continue
		}
		v, ok := lookup(args, arg.Name, arg.source)
		if !ok && arg.Schema != nil && arg.Schema.Default != nil {
			v, ok = arg.Schema.Default, true
		}
		if !ok {
			continue
		}
		switch arg.Location {
		case models.LocationPath:
			runArgs.PathParams[arg.source] = v
		case models.LocationQuery:
			runArgs.QueryParams[arg.source] = v
		case models.LocationHeader:
			runArgs.HeaderParams[arg.source] = v
		case models.LocationCookie:
			runArgs.Cookies[arg.source] = v
		}
	}

	body, err := f.body(args)
	if err != nil {
		return nil, err
	}
	runArgs.Body = body
	if ct, ok := args[ContentTypeArgument].(string); ok {
		runArgs.ContentType = ct
	}

	return f.runner.RunOperation(ctx, f.operation, runArgs)
}

func (f *Function) body(args map[string]any) (any, error) {
	rb := f.operation.RequestBody
	if rb == nil {
		if f.hasArgument(PayloadArgument) {
			return nil, nil
		}
		return args[PayloadArgument], nil
	}
	if !f.flattened {
		return args[PayloadArgument], nil
	}

	payload := make(map[string]any)
	for _, arg := range f.arguments {
		if arg.Location != LocationBody {
			continue
		}
		v, ok := lookup(args, arg.Name)
		if !ok {
			if arg.Required {
				return nil, &errs.MissingParameterError{OperationID: f.operation.ID, Name: arg.Name, Location: string(LocationBody)}
			}
			continue
		}
		setPath(payload, arg.path, v)
	}
	if len(payload) == 0 && !rb.Required {
		return nil, nil
	}
	return payload, nil
}

func (f *Function) hasArgument(name string) bool {
	for _, arg := range f.arguments {
		if arg.Name == name {
			return true
		}
	}
	return false
}

func lookup(args map[string]any, names ...string) (any, bool) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if v, ok := args[n]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func setPath(m map[string]any, path []string, v any) {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}

func buildArguments(op *models.Operation, dynamic, namespacing bool) []Argument {
	var args []Argument
	for _, p := range op.Parameters {
		description := p.Description
		if description == "" && p.Schema != nil {
			description = p.Schema.Description
		}
		args = append(args, Argument{
			Name:        SanitizeName(p.Name),
			Description: description,
			Required:    p.Required,
			Location:    p.Location,
			Schema:      p.Schema,
			source:      p.Name,
		})
	}

	rb := op.RequestBody
	if rb == nil {
		return args
	}

	if dynamic {
		if schema := jsonBodySchema(rb); schema != nil {
			return append(args, bodyArguments(schema, nil, rb.Required, namespacing)...)
		}
	}

	args = append(args, Argument{
		Name:        PayloadArgument,
		Description: payloadDescription(rb),
		Required:    rb.Required,
		Location:    LocationBody,
		Schema:      firstSchema(rb),
	})
	if len(rb.ContentTypes) > 1 {
		args = append(args, Argument{
			Name:        ContentTypeArgument,
			Description: fmt.Sprintf("Content type of the payload, one of %s", strings.Join(rb.ContentTypes, ", ")),
			Location:    LocationBody,
			Schema:      &models.Schema{Type: []string{"string"}, Enum: toAny(rb.ContentTypes)},
		})
	}
	return args
}

// bodyArguments flattens object properties into one argument per leaf
func bodyArguments(schema *models.Schema, parent []string, required, namespacing bool) []Argument {
	var args []Argument
	for _, prop := range schema.Properties {
		path := append(append([]string(nil), parent...), prop.Name)
		propRequired := required && schema.IsRequired(prop.Name)

		if s := prop.Schema; s != nil && !s.Circular && s.HasType("object") && len(s.Properties) > 0 {
			args = append(args, bodyArguments(s, path, propRequired, namespacing)...)
			continue
		}

		name := prop.Name
		if namespacing {
			name = strings.Join(path, ".")
		}
		var description string
		if prop.Schema != nil {
			description = prop.Schema.Description
		}
		args = append(args, Argument{
			Name:        name,
			Description: description,
			Required:    propRequired,
			Location:    LocationBody,
			Schema:      prop.Schema,
			path:        path,
		})
	}
	return args
}

// jsonBodySchema returns the object schema of the first JSON-like content type
func jsonBodySchema(rb *models.RequestBody) *models.Schema {
	for _, ct := range rb.ContentTypes {
		if runner.ParseContentType(ct) != runner.ContentTypeJSON {
			continue
		}
		if s := rb.Content[ct]; s != nil && len(s.Properties) > 0 {
			return s
		}
	}
	return nil
}

func firstSchema(rb *models.RequestBody) *models.Schema {
	for _, ct := range rb.ContentTypes {
		if s := rb.Content[ct]; s != nil {
			return s
		}
	}
	return nil
}

func payloadDescription(rb *models.RequestBody) string {
	if rb.Description != "" {
		return rb.Description
	}
	return "REST API request body."
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
