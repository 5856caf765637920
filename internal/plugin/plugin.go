// Package plugin turns OpenAPI documents and OpenAI plugin manifests into
// named collections of callable functions.
package plugin

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/execution"
	"github.com/moamenhredeen/oasplugin/internal/parser"
	"github.com/moamenhredeen/oasplugin/internal/runner"
)

var validPluginName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Plugin is a named set of functions backed by one OpenAPI document
type Plugin struct {
	name        string
	description string
	functions   map[string]*Function
}

// FromOpenAPI loads a document from a file path or inline text and exposes
// every operation as a function.
func FromOpenAPI(name, source string, params *execution.Parameters) (*Plugin, error) {
	doc, err := parser.Parse(source, parser.WithLogger(params.WithDefaults().Logger))
	if err != nil {
		return nil, err
	}
	return FromDocument(name, doc, params)
}

// FromDocument builds a plugin from an already parsed document
func FromDocument(name string, doc *parser.Document, params *execution.Parameters) (*Plugin, error) {
	if !validPluginName.MatchString(name) {
		return nil, fmt.Errorf("%w: invalid plugin name %q, only letters, digits and underscores are allowed", errs.ErrPlugin, name)
	}

	p := params.WithDefaults()
	if p.PluginName == "" {
		p.PluginName = name
	}

	ops, err := parser.CreateOperations(doc, &p)
	if err != nil {
		return nil, err
	}

	r := runner.New(&p)
	plugin := &Plugin{
		name:        name,
		description: doc.Description(),
		functions:   make(map[string]*Function, len(ops)),
	}
	for _, op := range ops {
		fn := newFunction(name, op, r)
		if existing, ok := plugin.functions[fn.Name()]; ok {
			return nil, fmt.Errorf("%w: operations %q and %q map to the same function name %q",
				errs.ErrPlugin, existing.Operation().ID, op.ID, fn.Name())
		}
		plugin.functions[fn.Name()] = fn
	}

	p.Logger.Debug("plugin loaded", "plugin", name, "functions", len(plugin.functions))
	return plugin, nil
}

// FromOpenAI loads a manifest, downloads the OpenAPI document it points to
// and builds the plugin. An empty name falls back to the manifest's
// name_for_model. The manifest's auth block is handed to the auth callback.
func FromOpenAI(ctx context.Context, name string, manifestData []byte, params *execution.Parameters) (*Plugin, error) {
	manifest, err := ParseManifest(manifestData)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = manifest.NameForModel
	}

	p := params.WithDefaults()
	p.PluginName = name
	authConfig := manifest.Auth
	p.AuthConfig = &authConfig

	var doc *parser.Document
	if isRemote(manifest.API.URL) {
		data, err := FetchDocument(ctx, p.HTTPClient, manifest.API.URL, DefaultFetchOptions)
		if err != nil {
			return nil, err
		}
		doc, err = parser.ParseBytes(data, parser.WithLogger(p.Logger))
		if err != nil {
			return nil, err
		}
	} else {
		doc, err = parser.ParseFile(manifest.API.URL, parser.WithLogger(p.Logger))
		if err != nil {
			return nil, err
		}
	}

	plugin, err := FromDocument(name, doc, &p)
	if err != nil {
		return nil, err
	}
	if manifest.DescriptionForModel != "" {
		plugin.description = manifest.DescriptionForModel
	}
	return plugin, nil
}

func isRemote(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Name returns the plugin name
func (p *Plugin) Name() string { return p.name }

// Description returns the plugin description
func (p *Plugin) Description() string { return p.description }

// Function looks a function up by name
func (p *Plugin) Function(name string) (*Function, bool) {
	fn, ok := p.functions[name]
	return fn, ok
}

// Functions returns every function sorted by name
func (p *Plugin) Functions() []*Function {
	fns := make([]*Function, 0, len(p.functions))
	for _, fn := range p.functions {
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Name() < fns[j].Name() })
	return fns
}

// Len returns the number of functions
func (p *Plugin) Len() int { return len(p.functions) }
