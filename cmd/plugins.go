/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/moamenhredeen/oasplugin/internal/generator"
	"github.com/moamenhredeen/oasplugin/internal/kernel"
	"github.com/moamenhredeen/oasplugin/internal/parser"
	"github.com/moamenhredeen/oasplugin/internal/plugin"
	"github.com/spf13/cobra"
)

var (
	isTTY = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	white  = color.New(color.FgWhite, color.Bold).SprintFunc()
)

// pluginFlags are shared by every command that loads a plugin
type pluginFlags struct {
	name     string
	manifest bool
}

func (f *pluginFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Plugin name (default derived from the file name)")
	cmd.Flags().BoolVar(&f.manifest, "manifest", false, "Source is an OpenAI plugin manifest (ai-plugin.json)")
}

// pluginName derives a valid plugin name from a file path or URL
func (f *pluginFlags) pluginName(source string) string {
	if f.name != "" {
		return f.name
	}
	base := filepath.Base(source)
	if isRemote(source) {
		base = path.Base(strings.SplitN(source, "?", 2)[0])
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if name := strings.Trim(plugin.SanitizeName(base), "_"); name != "" {
		return name
	}
	return "plugin"
}

// loadPlugin registers the plugin at source with a fresh kernel. client
// carries the configured default headers.
func (f *pluginFlags) loadPlugin(ctx context.Context, source string, client *http.Client) (*kernel.Kernel, *plugin.Plugin, error) {
	k := kernel.New(kernel.WithLogger(logger))
	params := cfg.Parameters(client, logger)

	if f.manifest {
		data, err := readSource(ctx, source, client)
		if err != nil {
			return nil, nil, err
		}
		// without --name the manifest's name_for_model is used
		p, err := k.AddPluginFromOpenAI(ctx, f.name, data, params)
		return k, p, err
	}

	name := f.pluginName(source)

	if !isRemote(source) {
		p, err := k.AddPluginFromOpenAPI(name, source, params)
		return k, p, err
	}

	data, err := plugin.FetchDocument(ctx, client, source, plugin.DefaultFetchOptions)
	if err != nil {
		return nil, nil, err
	}
	doc, err := parser.ParseBytes(data, parser.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	p, err := plugin.FromDocument(name, doc, params)
	if err != nil {
		return nil, nil, err
	}
	if err := k.AddPlugin(p); err != nil {
		return nil, nil, err
	}
	return k, p, nil
}

func readSource(ctx context.Context, source string, client *http.Client) ([]byte, error) {
	if isRemote(source) {
		return plugin.FetchDocument(ctx, client, source, plugin.DefaultFetchOptions)
	}
	return os.ReadFile(source)
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// parseKeyValues turns k=v pairs into arguments. Values that parse as JSON
// keep their type, so id=42 is a number and tags=["a"] an array.
func parseKeyValues(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, raw, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid argument %q: expected key=value", pair)
		}
		var val any
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			val = raw
		}
		out[k] = val
	}
	return out, nil
}

// parseHeaders turns k=v pairs into header values, kept as strings
func parseHeaders(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, val, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid header %q: expected name=value", pair)
		}
		out[k] = val
	}
	return out, nil
}

// readPayload accepts inline JSON or @file
func readPayload(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	data := []byte(raw)
	if file, ok := strings.CutPrefix(raw, "@"); ok {
		var err error
		if data, err = os.ReadFile(file); err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return payload, nil
}

// fillExamples generates values for required arguments the caller left out
func fillExamples(fn *plugin.Function, args map[string]any, gen *generator.Generator) error {
	for _, arg := range fn.Arguments() {
		if !arg.Required {
			continue
		}
		if _, ok := args[arg.Name]; ok {
			continue
		}

		if arg.Name == plugin.PayloadArgument && arg.Location == plugin.LocationBody {
			body, contentType, err := gen.GenerateRequestBody(fn.Operation().RequestBody)
			if err != nil {
				return fmt.Errorf("generate %s: %w", arg.Name, err)
			}
			args[arg.Name] = body
			if _, ok := args[plugin.ContentTypeArgument]; !ok {
				args[plugin.ContentTypeArgument] = contentType
			}
			continue
		}

		if arg.Schema == nil {
			args[arg.Name] = "test"
			continue
		}
		val, err := gen.GenerateValue(arg.Schema)
		if err != nil {
			return fmt.Errorf("generate %s: %w", arg.Name, err)
		}
		args[arg.Name] = val
	}
	return nil
}
