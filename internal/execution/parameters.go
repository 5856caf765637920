// Package execution holds the cross-cutting settings shared by the operation
// extractor and the runner.
package execution

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a single operation call when no timeout is configured.
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent is sent when the caller does not set one.
	DefaultUserAgent = "oasplugin/1.0"
)

// HTTPDoer is the transport the runner issues requests through.
// *http.Client satisfies it; it must be safe for concurrent use.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthRequest is the metadata handed to an AuthCallback.
type AuthRequest struct {
	PluginName  string
	AuthConfig  *AuthConfig
	OperationID string
	Method      string
	URL         string
}

// AuthCallback returns headers to add to an outgoing request. A nil map adds nothing.
type AuthCallback func(ctx context.Context, req AuthRequest) (map[string]string, error)

// Parameters configures operation extraction and execution. The zero value is
// usable; call WithDefaults to get a copy with every default filled in.
type Parameters struct {
	// ServerURLOverride replaces every server URL declared in the document.
	ServerURLOverride string
	// AuthCallback, when set, is invoked once per request before it is sent.
	AuthCallback AuthCallback
	// HTTPClient is owned by the caller and never closed by the runner.
	HTTPClient HTTPDoer
	// EnableDynamicPayload skips request body schema validation and lets the
	// plugin layer build bodies from flat arguments.
	EnableDynamicPayload bool
	// EnablePayloadNamespacing names nested dynamic payload arguments by their
	// property path, so "owner.name" feeds the "name" property of "owner".
	EnablePayloadNamespacing bool
	// Timeout bounds one call. Zero means DefaultTimeout; it is never infinite.
	Timeout time.Duration
	// UserAgent is sent on every request.
	UserAgent string
	// PluginName and AuthConfig identify the plugin to the auth callback.
	PluginName string
	AuthConfig *AuthConfig
	// OperationsToExclude lists operation ids the extractor should skip.
	OperationsToExclude []string
	Logger              *slog.Logger
}

// WithDefaults returns a copy of p with unset fields defaulted. A nil receiver
// yields the defaults.
func (p *Parameters) WithDefaults() Parameters {
	var out Parameters
	if p != nil {
		out = *p
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.UserAgent == "" {
		out.UserAgent = DefaultUserAgent
	}
	if out.HTTPClient == nil {
		out.HTTPClient = http.DefaultClient
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Excluded reports whether the operation id is listed in OperationsToExclude.
func (p *Parameters) Excluded(operationID string) bool {
	if p == nil {
		return false
	}
	for _, id := range p.OperationsToExclude {
		if id == operationID {
			return true
		}
	}
	return false
}
