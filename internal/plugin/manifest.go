package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/execution"
)

// Manifest is an OpenAI plugin manifest (ai-plugin.json)
type Manifest struct {
	SchemaVersion       string               `json:"schema_version"`
	NameForModel        string               `json:"name_for_model"`
	NameForHuman        string               `json:"name_for_human"`
	DescriptionForModel string               `json:"description_for_model"`
	DescriptionForHuman string               `json:"description_for_human"`
	Auth                execution.AuthConfig `json:"auth"`
	API                 ManifestAPI          `json:"api"`
	LogoURL             string               `json:"logo_url,omitempty"`
	ContactEmail        string               `json:"contact_email,omitempty"`
	LegalInfoURL        string               `json:"legal_info_url,omitempty"`
}

// ManifestAPI points at the OpenAPI document behind a manifest
type ManifestAPI struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ParseManifest decodes and checks a manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", errs.ErrPlugin, err)
	}
	if m.API.URL == "" {
		return nil, fmt.Errorf("%w: manifest has no api.url", errs.ErrPlugin)
	}
	if m.API.Type != "" && !strings.EqualFold(m.API.Type, "openapi") {
		return nil, fmt.Errorf("%w: unsupported api type %q", errs.ErrPlugin, m.API.Type)
	}
	if m.Auth.Type == "" {
		m.Auth.Type = execution.AuthNone
	}
	return &m, nil
}

// FetchOptions tune remote document downloads
type FetchOptions struct {
	Attempts uint
	Delay    time.Duration
}

// DefaultFetchOptions retries three times with a short backoff
var DefaultFetchOptions = FetchOptions{Attempts: 3, Delay: 200 * time.Millisecond}

// statusError is a non-success download response. 5xx and 429 are retried.
type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.url, e.status)
}

func (e *statusError) retryable() bool {
	return e.status >= 500 || e.status == http.StatusTooManyRequests
}

// FetchDocument downloads a remote document through client, retrying
// transient failures.
func FetchDocument(ctx context.Context, client execution.HTTPDoer, url string, opts FetchOptions) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Attempts == 0 {
		opts = DefaultFetchOptions
	}

	var data []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			req.Header.Set("User-Agent", execution.DefaultUserAgent)

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return &statusError{url: url, status: resp.StatusCode}
			}
			data, err = io.ReadAll(resp.Body)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(opts.Attempts),
		retry.Delay(opts.Delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.retryable()
			}
			return ctx.Err() == nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrPlugin, err)
	}
	return data, nil
}
