// Package auth provides an auth callback for OpenAI plugin manifests. It
// turns the manifest's auth block into an Authorization header.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/moamenhredeen/oasplugin/internal/execution"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJSON = "application/json"
)

var (
	// ErrMissingAuthorizationURL is returned for oauth configs without an authorization_url.
	ErrMissingAuthorizationURL = errors.New("authorization url is required for oauth")
	// ErrNoOAuthValues is returned when no client values are registered for the token host.
	ErrNoOAuthValues = errors.New("no oauth values registered for authorization host")
	// ErrUnsupportedAuthContentType is returned for token endpoints that are neither form nor JSON.
	ErrUnsupportedAuthContentType = errors.New("unsupported authorization content type")
)

// OAuthValues are the client values posted to a token endpoint, for example
// client_id, client_secret and grant_type.
type OAuthValues map[string]string

// Provider authenticates plugin requests. OAuth values are keyed by the host
// of the manifest's authorization_url, e.g. "login.microsoftonline.com".
type Provider struct {
	oauthValues map[string]OAuthValues
	client      *http.Client

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// Option configures a Provider
type Option func(*Provider)

// WithHTTPClient sets the client used to reach token endpoints
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// NewProvider creates a provider with the given per-host OAuth values
func NewProvider(oauthValues map[string]OAuthValues, opts ...Option) *Provider {
	p := &Provider{
		oauthValues: oauthValues,
		client:      http.DefaultClient,
		sources:     make(map[string]oauth2.TokenSource),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Authenticate matches execution.AuthCallback. It returns no headers for
// "none", a token from the authorization server for "oauth" and the plugin's
// verification token for the http kinds.
func (p *Provider) Authenticate(ctx context.Context, req execution.AuthRequest) (map[string]string, error) {
	cfg := req.AuthConfig
	if cfg == nil || cfg.Type == "" || cfg.Type == execution.AuthNone {
		return nil, nil
	}

	var scheme, credential string
	switch cfg.Type {
	case execution.AuthOAuth:
		tok, err := p.oauthToken(ctx, cfg)
		if err != nil {
			return nil, err
		}
		scheme, credential = tok.Type(), tok.AccessToken
	case execution.AuthUserHTTP, execution.AuthServiceHTTP:
		scheme = cfg.AuthorizationType.Scheme()
		credential = cfg.VerificationTokens[req.PluginName]
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	return map[string]string{"Authorization": scheme + " " + credential}, nil
}

func (p *Provider) oauthToken(ctx context.Context, cfg *execution.AuthConfig) (*oauth2.Token, error) {
	if cfg.AuthorizationURL == "" {
		return nil, ErrMissingAuthorizationURL
	}
	u, err := url.Parse(cfg.AuthorizationURL)
	if err != nil {
		return nil, fmt.Errorf("parse authorization url: %w", err)
	}
	values, ok := p.oauthValues[u.Host]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoOAuthValues, u.Host)
	}

	contentType := cfg.AuthorizationContentType
	if contentType == "" {
		contentType = contentTypeForm
	}

	switch contentType {
	case contentTypeForm:
		tok, err := p.tokenSource(cfg, values).Token()
		if err != nil {
			return nil, fmt.Errorf("fetch token from %s: %w", u.Host, err)
		}
		return tok, nil
	case contentTypeJSON:
		return p.jsonToken(ctx, cfg, values)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAuthContentType, contentType)
	}
}

// tokenSource returns a cached client credentials source, so tokens are reused until they expire
func (p *Provider) tokenSource(cfg *execution.AuthConfig, values OAuthValues) oauth2.TokenSource {
	key := cfg.AuthorizationURL + " " + cfg.Scope

	p.mu.Lock()
	defer p.mu.Unlock()
	if ts, ok := p.sources[key]; ok {
		return ts
	}

	params := url.Values{}
	for k, v := range values {
		switch k {
		case "client_id", "client_secret", "grant_type", "scope":
		default:
			params.Set(k, v)
		}
	}

	cc := &clientcredentials.Config{
		ClientID:       values["client_id"],
		ClientSecret:   values["client_secret"],
		TokenURL:       cfg.AuthorizationURL,
		Scopes:         strings.Fields(cfg.Scope),
		EndpointParams: params,
		AuthStyle:      oauth2.AuthStyleInParams,
	}
	// the source outlives the request, so it must not inherit its cancellation
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, p.client)
	ts := cc.TokenSource(ctx)
	p.sources[key] = ts
	return ts
}

type tokenResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
}

// jsonToken posts the client values as a JSON document, for token endpoints
// that do not accept form bodies.
func (p *Provider) jsonToken(ctx context.Context, cfg *execution.AuthConfig, values OAuthValues) (*oauth2.Token, error) {
	body := make(map[string]string, len(values)+1)
	for k, v := range values {
		body[k] = v
	}
	body["scope"] = cfg.Scope

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.AuthorizationURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, raw)
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &oauth2.Token{TokenType: tr.TokenType, AccessToken: tr.AccessToken}, nil
}
