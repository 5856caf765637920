package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/moamenhredeen/oasplugin/internal/execution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hostOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Host
}

func TestAuthenticateNone(t *testing.T) {
	p := NewProvider(nil)

	headers, err := p.Authenticate(context.Background(), execution.AuthRequest{
		AuthConfig: &execution.AuthConfig{Type: execution.AuthNone},
	})
	require.NoError(t, err)
	assert.Nil(t, headers)

	headers, err = p.Authenticate(context.Background(), execution.AuthRequest{})
	require.NoError(t, err)
	assert.Nil(t, headers)
}

func TestAuthenticateVerificationTokens(t *testing.T) {
	p := NewProvider(nil)
	cfg := &execution.AuthConfig{
		Type:               execution.AuthServiceHTTP,
		AuthorizationType:  execution.AuthorizationBearer,
		VerificationTokens: map[string]string{"todo": "secret-token"},
	}

	headers, err := p.Authenticate(context.Background(), execution.AuthRequest{PluginName: "todo", AuthConfig: cfg})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer secret-token"}, headers)

	cfg.Type = execution.AuthUserHTTP
	cfg.AuthorizationType = execution.AuthorizationBasic
	headers, err = p.Authenticate(context.Background(), execution.AuthRequest{PluginName: "todo", AuthConfig: cfg})
	require.NoError(t, err)
	assert.Equal(t, "Basic secret-token", headers["Authorization"])
}

func TestAuthenticateOAuthForm(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "my-client", r.PostForm.Get("client_id"))
		assert.Equal(t, "my-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "https://vault.azure.net/.default", r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "vault-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	p := NewProvider(map[string]OAuthValues{
		hostOf(t, server.URL): {
			"client_id":     "my-client",
			"client_secret": "my-secret",
			"grant_type":    "client_credentials",
		},
	}, WithHTTPClient(server.Client()))

	req := execution.AuthRequest{
		PluginName: "AzureKeyVault",
		AuthConfig: &execution.AuthConfig{
			Type:                     execution.AuthOAuth,
			Scope:                    "https://vault.azure.net/.default",
			AuthorizationURL:         server.URL + "/oauth2/v2.0/token",
			AuthorizationContentType: "application/x-www-form-urlencoded",
		},
	}

	headers, err := p.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer vault-token"}, headers)

	_, err = p.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "token should be reused until it expires")
}

func TestAuthenticateOAuthJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "my-client", body["client_id"])
		assert.Equal(t, "read", body["scope"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"json-token","token_type":"Bearer"}`))
	}))
	defer server.Close()

	p := NewProvider(map[string]OAuthValues{
		hostOf(t, server.URL): {"client_id": "my-client"},
	}, WithHTTPClient(server.Client()))

	headers, err := p.Authenticate(context.Background(), execution.AuthRequest{
		AuthConfig: &execution.AuthConfig{
			Type:                     execution.AuthOAuth,
			Scope:                    "read",
			AuthorizationURL:         server.URL + "/token",
			AuthorizationContentType: "application/json",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer json-token", headers["Authorization"])
}

func TestAuthenticateOAuthErrors(t *testing.T) {
	p := NewProvider(map[string]OAuthValues{"login.example.com": {"client_id": "x"}})

	tests := []struct {
		name string
		cfg  *execution.AuthConfig
		want error
	}{
		{
			name: "missing url",
			cfg:  &execution.AuthConfig{Type: execution.AuthOAuth},
			want: ErrMissingAuthorizationURL,
		},
		{
			name: "unknown host",
			cfg:  &execution.AuthConfig{Type: execution.AuthOAuth, AuthorizationURL: "https://other.example.com/token"},
			want: ErrNoOAuthValues,
		},
		{
			name: "unsupported content type",
			cfg: &execution.AuthConfig{
				Type:                     execution.AuthOAuth,
				AuthorizationURL:         "https://login.example.com/token",
				AuthorizationContentType: "text/xml",
			},
			want: ErrUnsupportedAuthContentType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Authenticate(context.Background(), execution.AuthRequest{AuthConfig: tt.cfg})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
		})
	}
}

func TestAuthenticateOAuthRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer server.Close()

	p := NewProvider(map[string]OAuthValues{hostOf(t, server.URL): {"client_id": "x"}}, WithHTTPClient(server.Client()))

	_, err := p.Authenticate(context.Background(), execution.AuthRequest{
		AuthConfig: &execution.AuthConfig{
			Type:                     execution.AuthOAuth,
			AuthorizationURL:         server.URL + "/token",
			AuthorizationContentType: "application/json",
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
