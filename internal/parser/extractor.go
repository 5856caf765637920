package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/execution"
	"github.com/moamenhredeen/oasplugin/internal/models"
	"github.com/pb33f/libopenapi/datamodel/high/base"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
)

var nonIdentifier = regexp.MustCompile(`[^A-Za-z0-9]+`)

// CreateOperations builds one operation descriptor per (path, method) pair,
// keyed by operation id. params may be nil.
func CreateOperations(doc *Document, params *execution.Parameters) (map[string]*models.Operation, error) {
	if doc == nil || doc.model == nil {
		return nil, &errs.DocumentError{Code: errs.CodeModelBuild, Message: "document is nil"}
	}

	model := &doc.model.Model
	operations := make(map[string]*models.Operation)
	inliner := newSchemaInliner()
	if model.Paths == nil || model.Paths.PathItems == nil {
		return operations, nil
	}

	for pair := model.Paths.PathItems.First(); pair != nil; pair = pair.Next() {
		path := pair.Key()
		pathItem := pair.Value()
		if pathItem == nil {
			continue
		}

		for _, m := range methodsOf(pathItem) {
			op, err := buildOperation(inliner, model, path, m.method, pathItem, m.op, params)
			if err != nil {
				return nil, err
			}
			if params.Excluded(op.ID) {
				continue
			}
			if existing, ok := operations[op.ID]; ok {
				return nil, &errs.DocumentError{
					Code: errs.CodeDuplicateOperation,
					Message: fmt.Sprintf("operation id %q is used by %s %s and %s %s",
						op.ID, existing.Method, existing.Path, op.Method, op.Path),
				}
			}
			operations[op.ID] = op
		}
	}

	return operations, nil
}

type methodOperation struct {
	method string
	op     *v3.Operation
}

// methodsOf lists the operations of a path item in a fixed method order
func methodsOf(item *v3.PathItem) []methodOperation {
	all := []methodOperation{
		{"GET", item.Get},
		{"PUT", item.Put},
		{"POST", item.Post},
		{"DELETE", item.Delete},
		{"OPTIONS", item.Options},
		{"HEAD", item.Head},
		{"PATCH", item.Patch},
		{"TRACE", item.Trace},
	}
	ops := all[:0]
	for _, m := range all {
		if m.op != nil {
			ops = append(ops, m)
		}
	}
	return ops
}

func buildOperation(
	inliner *schemaInliner,
	model *v3.Document,
	path, method string,
	pathItem *v3.PathItem,
	op *v3.Operation,
	params *execution.Parameters,
) (*models.Operation, error) {
	id := op.OperationId
	if id == "" {
		id = OperationName(method, path)
	}

	server := resolveServer(params, op.Servers, pathItem.Servers, model.Servers)
	if server == "" {
		return nil, &errs.ConfigurationError{
			OperationID: id,
			Message:     "no absolute server URL declared by the operation, path or document and no override configured",
		}
	}

	parameters, err := mergeParameters(inliner, id, pathItem.Parameters, op.Parameters)
	if err != nil {
		return nil, err
	}

	body, err := buildRequestBody(inliner, id, op.RequestBody)
	if err != nil {
		return nil, err
	}

	security := op.Security
	if security == nil {
		security = model.Security
	}

	return &models.Operation{
		ID:          id,
		Method:      method,
		ServerURL:   server,
		Path:        path,
		Summary:     op.Summary,
		Description: op.Description,
		Tags:        append([]string(nil), op.Tags...),
		Parameters:  parameters,
		RequestBody: body,
		Security:    securityNames(security),
	}, nil
}

// OperationName derives an operation id for operations that do not declare one,
// e.g. GET /todos/{id} becomes "get_todos_id".
func OperationName(method, path string) string {
	clean := strings.Trim(nonIdentifier.ReplaceAllString(path, "_"), "_")
	if clean == "" {
		return strings.ToLower(method)
	}
	return strings.ToLower(method) + "_" + clean
}

// resolveServer applies override > operation > path > document
func resolveServer(params *execution.Parameters, levels ...[]*v3.Server) string {
	if params != nil && params.ServerURLOverride != "" {
		return strings.TrimRight(params.ServerURLOverride, "/")
	}
	for _, servers := range levels {
		for _, s := range servers {
			if u := serverURL(s); isAbsoluteURL(u) {
				return u
			}
		}
	}
	return ""
}

// serverURL expands server variables with their defaults
func serverURL(server *v3.Server) string {
	if server == nil || server.URL == "" {
		return ""
	}
	u := server.URL
	if server.Variables != nil {
		for pair := server.Variables.First(); pair != nil; pair = pair.Next() {
			if pair.Value() == nil {
				continue
			}
			u = strings.ReplaceAll(u, "{"+pair.Key()+"}", pair.Value().Default)
		}
	}
	return strings.TrimRight(u, "/")
}

// isAbsoluteURL reports whether raw carries both a scheme and a host.
// Relative server URLs such as /api/v3 cannot be called on their own.
func isAbsoluteURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// mergeParameters combines path level and operation level parameters. An
// operation parameter with the same name and location replaces the path one.
func mergeParameters(inliner *schemaInliner, opID string, pathParams, opParams []*v3.Parameter) ([]*models.Parameter, error) {
	var merged []*models.Parameter
	index := make(map[string]int)

	add := func(p *v3.Parameter) error {
		if p == nil {
			return nil
		}
		param, err := convertParameter(inliner, opID, p)
		if err != nil {
			return err
		}
		key := paramKey(param)
		if i, ok := index[key]; ok {
			merged[i] = param
			return nil
		}
		index[key] = len(merged)
		merged = append(merged, param)
		return nil
	}

	for _, p := range pathParams {
		if err := add(p); err != nil {
			return nil, err
		}
	}
	for _, p := range opParams {
		if err := add(p); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func paramKey(p *models.Parameter) string {
	name := p.Name
	if p.Location == models.LocationHeader {
		name = strings.ToLower(name)
	}
	return string(p.Location) + ":" + name
}

func convertParameter(inliner *schemaInliner, opID string, p *v3.Parameter) (*models.Parameter, error) {
	loc := models.ParameterLocation(p.In)
	if p.Name == "" || !loc.Valid() {
		return nil, &errs.DocumentError{
			Code:    errs.CodeInvalidParameter,
			Message: fmt.Sprintf("operation %q: parameter %q has invalid location %q", opID, p.Name, p.In),
		}
	}

	proxy := p.Schema
	if proxy == nil && p.Content != nil {
		if first := p.Content.First(); first != nil && first.Value() != nil {
			proxy = first.Value().Schema
		}
	}
	schema, err := inliner.inline(proxy, fmt.Sprintf("%s.parameters.%s", opID, p.Name))
	if err != nil {
		return nil, err
	}

	required := p.Required != nil && *p.Required
	// path parameters are always required
	if loc == models.LocationPath {
		required = true
	}

	return &models.Parameter{
		Name:        p.Name,
		Location:    loc,
		Required:    required,
		Description: p.Description,
		Schema:      schema,
	}, nil
}

func buildRequestBody(inliner *schemaInliner, opID string, rb *v3.RequestBody) (*models.RequestBody, error) {
	if rb == nil {
		return nil, nil
	}

	body := &models.RequestBody{
		Required:    rb.Required != nil && *rb.Required,
		Description: rb.Description,
		Content:     make(map[string]*models.Schema),
	}
	if rb.Content == nil {
		return body, nil
	}

	for pair := rb.Content.First(); pair != nil; pair = pair.Next() {
		var proxy *base.SchemaProxy
		if pair.Value() != nil {
			proxy = pair.Value().Schema
		}
		schema, err := inliner.inline(proxy, fmt.Sprintf("%s.requestBody.%s", opID, pair.Key()))
		if err != nil {
			return nil, err
		}
		body.ContentTypes = append(body.ContentTypes, pair.Key())
		body.Content[pair.Key()] = schema
	}
	return body, nil
}

func securityNames(reqs []*base.SecurityRequirement) []string {
	var names []string
	seen := make(map[string]bool)
	for _, req := range reqs {
		if req == nil || req.Requirements == nil {
			continue
		}
		for pair := req.Requirements.First(); pair != nil; pair = pair.Next() {
			if !seen[pair.Key()] {
				seen[pair.Key()] = true
				names = append(names, pair.Key())
			}
		}
	}
	return names
}
