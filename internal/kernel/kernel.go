// Package kernel keeps the registry of loaded plugins and dispatches
// function calls to them.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/execution"
	"github.com/moamenhredeen/oasplugin/internal/models"
	"github.com/moamenhredeen/oasplugin/internal/plugin"
)

var (
	// ErrPluginNotFound is returned for unknown plugin names
	ErrPluginNotFound = fmt.Errorf("%w: plugin not found", errs.ErrPlugin)
	// ErrFunctionNotFound is returned for unknown function names
	ErrFunctionNotFound = fmt.Errorf("%w: function not found", errs.ErrPlugin)
)

// Kernel holds plugins by name. It is safe for concurrent use.
type Kernel struct {
	plugins map[string]*plugin.Plugin
	logger  *slog.Logger
	mu      sync.RWMutex
}

// Option configures a Kernel
type Option func(*Kernel)

// WithLogger sets the kernel's logger
func WithLogger(logger *slog.Logger) Option {
	return func(k *Kernel) {
		k.logger = logger
	}
}

// New creates an empty kernel
func New(opts ...Option) *Kernel {
	k := &Kernel{
		plugins: make(map[string]*plugin.Plugin),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// AddPlugin registers p. Plugin names must be unique.
func (k *Kernel) AddPlugin(p *plugin.Plugin) error {
	if p == nil {
		return fmt.Errorf("%w: plugin cannot be nil", errs.ErrPlugin)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.plugins[p.Name()]; exists {
		return fmt.Errorf("%w: plugin %s already registered", errs.ErrPlugin, p.Name())
	}
	k.plugins[p.Name()] = p
	k.logger.Info("plugin registered", "plugin", p.Name(), "functions", p.Len())
	return nil
}

// AddPluginFromOpenAPI loads an OpenAPI document and registers it as a plugin
func (k *Kernel) AddPluginFromOpenAPI(name, source string, params *execution.Parameters) (*plugin.Plugin, error) {
	p, err := plugin.FromOpenAPI(name, source, k.withLogger(params))
	if err != nil {
		return nil, err
	}
	if err := k.AddPlugin(p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddPluginFromOpenAI loads an OpenAI plugin manifest and registers it
func (k *Kernel) AddPluginFromOpenAI(ctx context.Context, name string, manifest []byte, params *execution.Parameters) (*plugin.Plugin, error) {
	p, err := plugin.FromOpenAI(ctx, name, manifest, k.withLogger(params))
	if err != nil {
		return nil, err
	}
	if err := k.AddPlugin(p); err != nil {
		return nil, err
	}
	return p, nil
}

// withLogger hands the kernel's logger to plugins that were not given one
func (k *Kernel) withLogger(params *execution.Parameters) *execution.Parameters {
	var p execution.Parameters
	if params != nil {
		p = *params
	}
	if p.Logger == nil {
		p.Logger = k.logger
	}
	return &p
}

// RemovePlugin unregisters a plugin and reports whether it was present
func (k *Kernel) RemovePlugin(name string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	_, exists := k.plugins[name]
	delete(k.plugins, name)
	return exists
}

// Plugin returns the plugin registered under name
func (k *Kernel) Plugin(name string) (*plugin.Plugin, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	p, exists := k.plugins[name]
	return p, exists
}

// Plugins returns the registered plugin names, sorted
func (k *Kernel) Plugins() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	names := make([]string, 0, len(k.plugins))
	for name := range k.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Function resolves a function by plugin and function name
func (k *Kernel) Function(pluginName, functionName string) (*plugin.Function, error) {
	p, ok := k.Plugin(pluginName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, pluginName)
	}
	fn, ok := p.Function(functionName)
	if !ok {
		return nil, fmt.Errorf("%w: %s-%s", ErrFunctionNotFound, pluginName, functionName)
	}
	return fn, nil
}

// FunctionByName resolves a fully qualified "plugin-function" name, the form
// used in function calling declarations.
func (k *Kernel) FunctionByName(fullyQualifiedName string) (*plugin.Function, error) {
	pluginName, functionName, ok := strings.Cut(fullyQualifiedName, "-")
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a fully qualified name", ErrFunctionNotFound, fullyQualifiedName)
	}
	return k.Function(pluginName, functionName)
}

// Invoke calls a function with flat arguments
func (k *Kernel) Invoke(ctx context.Context, pluginName, functionName string, args map[string]any) (*models.RunnerResult, error) {
	fn, err := k.Function(pluginName, functionName)
	if err != nil {
		return nil, err
	}
	return fn.Invoke(ctx, args)
}

// Filter narrows the functions advertised to a model. Plugin filters match
// plugin names, function filters match fully qualified names. Empty include
// lists include everything.
type Filter struct {
	IncludePlugins   []string
	ExcludePlugins   []string
	IncludeFunctions []string
	ExcludeFunctions []string
}

func (f Filter) allows(fn *plugin.Function) bool {
	if len(f.IncludePlugins) > 0 && !slices.Contains(f.IncludePlugins, fn.PluginName()) {
		return false
	}
	if slices.Contains(f.ExcludePlugins, fn.PluginName()) {
		return false
	}
	fqn := fn.FullyQualifiedName()
	if len(f.IncludeFunctions) > 0 && !slices.Contains(f.IncludeFunctions, fqn) {
		return false
	}
	return !slices.Contains(f.ExcludeFunctions, fqn)
}

// Declaration is a function advertised for function calling
type Declaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// Functions returns the declarations of every function allowed by filter,
// sorted by fully qualified name.
func (k *Kernel) Functions(filter Filter) []Declaration {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var decls []Declaration
	for _, p := range k.plugins {
		for _, fn := range p.Functions() {
			if !filter.allows(fn) {
				continue
			}
			decls = append(decls, Declaration{
				Name:        fn.FullyQualifiedName(),
				Description: fn.Description(),
				Parameters:  fn.Parameters(),
			})
		}
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls
}
