package execution

// AuthType is the authentication kind declared by an OpenAI plugin manifest.
type AuthType string

const (
	AuthNone        AuthType = "none"
	AuthUserHTTP    AuthType = "user_http"
	AuthServiceHTTP AuthType = "service_http"
	AuthOAuth       AuthType = "oauth"
)

// AuthorizationType is the HTTP authorization scheme used by the http auth kinds.
type AuthorizationType string

const (
	AuthorizationBearer AuthorizationType = "bearer"
	AuthorizationBasic  AuthorizationType = "basic"
)

// Scheme returns the value to put before the credential in an Authorization header.
func (t AuthorizationType) Scheme() string {
	switch t {
	case AuthorizationBasic:
		return "Basic"
	default:
		return "Bearer"
	}
}

// AuthConfig describes how a plugin expects to be authenticated. It mirrors
// the "auth" object of an OpenAI plugin manifest.
type AuthConfig struct {
	Type                     AuthType          `json:"type"`
	AuthorizationType        AuthorizationType `json:"authorization_type,omitempty"`
	AuthorizationURL         string            `json:"authorization_url,omitempty"`
	AuthorizationContentType string            `json:"authorization_content_type,omitempty"`
	ClientURL                string            `json:"client_url,omitempty"`
	Scope                    string            `json:"scope,omitempty"`
	VerificationTokens       map[string]string `json:"verification_tokens,omitempty"`
}
