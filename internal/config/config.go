// Package config loads CLI settings from oasplugin.toml and OASPLUGIN_*
// environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/moamenhredeen/oasplugin/internal/auth"
	"github.com/moamenhredeen/oasplugin/internal/execution"
	"github.com/spf13/viper"
)

// Config is the resolved CLI configuration
type Config struct {
	Server             string            `mapstructure:"server"`
	Timeout            time.Duration     `mapstructure:"timeout"`
	UserAgent          string            `mapstructure:"user_agent"`
	DynamicPayload     bool              `mapstructure:"dynamic_payload"`
	PayloadNamespacing bool              `mapstructure:"payload_namespacing"`
	Exclude            []string          `mapstructure:"exclude"`
	Headers            map[string]string `mapstructure:"headers"`
	Auth               AuthConfig        `mapstructure:"auth"`
	Log                LogConfig         `mapstructure:"log"`
	Benchmark          BenchmarkConfig   `mapstructure:"benchmark"`
}

// AuthConfig selects how requests are authenticated. Token is sent as a
// static bearer token; otherwise an oauth or http auth block is resolved by
// the auth provider.
type AuthConfig struct {
	Token                    string            `mapstructure:"token"`
	Type                     string            `mapstructure:"type"`
	AuthorizationType        string            `mapstructure:"authorization_type"`
	AuthorizationURL         string            `mapstructure:"authorization_url"`
	AuthorizationContentType string            `mapstructure:"authorization_content_type"`
	Scope                    string            `mapstructure:"scope"`
	VerificationTokens       map[string]string `mapstructure:"verification_tokens"`
	OAuth                    []OAuthClient     `mapstructure:"oauth"`
}

// OAuthClient holds client credentials for one authorization host. It is a
// list entry because host names contain the key delimiter.
type OAuthClient struct {
	Host         string `mapstructure:"host"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	GrantType    string `mapstructure:"grant_type"`
}

// LogConfig configures the slog handler
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BenchmarkConfig holds defaults for the benchmark command
type BenchmarkConfig struct {
	Iterations  int     `mapstructure:"iterations"`
	Concurrency int     `mapstructure:"concurrency"`
	Warmup      int     `mapstructure:"warmup"`
	Rate        float64 `mapstructure:"rate"`
	NoKeepAlive bool    `mapstructure:"no_keepalive"`
}

// SetDefaults registers default values on v. Every key that may come from
// the environment needs a default, otherwise Unmarshal does not see it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server", "")
	v.SetDefault("dynamic_payload", false)
	v.SetDefault("payload_namespacing", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("timeout", execution.DefaultTimeout)
	v.SetDefault("user_agent", execution.DefaultUserAgent)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("benchmark.iterations", 100)
	v.SetDefault("benchmark.concurrency", 1)
	v.SetDefault("benchmark.warmup", 5)
}

// Load reads configuration into v. An explicit path must exist; without one
// ./oasplugin.toml is read when present.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("OASPLUGIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("oasplugin")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Logger builds the slog logger described by the log section
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(c.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Parameters converts the configuration into execution parameters. client
// may be nil.
func (c *Config) Parameters(client *http.Client, logger *slog.Logger) *execution.Parameters {
	params := &execution.Parameters{
		ServerURLOverride:        c.Server,
		EnableDynamicPayload:     c.DynamicPayload,
		EnablePayloadNamespacing: c.PayloadNamespacing,
		Timeout:                  c.Timeout,
		UserAgent:                c.UserAgent,
		OperationsToExclude:      c.Exclude,
		Logger:                   logger,
	}
	if client != nil {
		params.HTTPClient = client
	}
	params.AuthConfig, params.AuthCallback = c.authCallback(client)
	return params
}

// HTTPClient returns a client that adds the configured headers to every
// request that does not already carry them. base may be nil.
func (c *Config) HTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if len(c.Headers) == 0 {
		return base
	}

	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	client := *base
	client.Transport = &headerTransport{headers: c.Headers, next: next}
	return &client
}

type headerTransport struct {
	headers map[string]string
	next    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.next.RoundTrip(req)
}

func (c *Config) authCallback(client *http.Client) (*execution.AuthConfig, execution.AuthCallback) {
	a := c.Auth
	if a.Token != "" {
		header := "Bearer " + a.Token
		return nil, func(context.Context, execution.AuthRequest) (map[string]string, error) {
			return map[string]string{"Authorization": header}, nil
		}
	}
	if a.Type == "" || a.Type == string(execution.AuthNone) {
		return nil, nil
	}

	cfg := &execution.AuthConfig{
		Type:                     execution.AuthType(a.Type),
		AuthorizationType:        execution.AuthorizationType(a.AuthorizationType),
		AuthorizationURL:         a.AuthorizationURL,
		AuthorizationContentType: a.AuthorizationContentType,
		Scope:                    a.Scope,
		VerificationTokens:       a.VerificationTokens,
	}

	values := make(map[string]auth.OAuthValues, len(a.OAuth))
	for _, oc := range a.OAuth {
		grant := oc.GrantType
		if grant == "" {
			grant = "client_credentials"
		}
		values[oc.Host] = auth.OAuthValues{
			"client_id":     oc.ClientID,
			"client_secret": oc.ClientSecret,
			"grant_type":    grant,
		}
	}
	var opts []auth.Option
	if client != nil {
		opts = append(opts, auth.WithHTTPClient(client))
	}
	return cfg, auth.NewProvider(values, opts...).Authenticate
}
