// Package auth turns credential bundles into per-request authentication.
//
// Every variant implements Strategy: Authenticate derives an AuthContext
// from a bundle (fetching a token when the variant needs one) and Decorate
// attaches that context to an outbound request. Variants are registered by
// name in a Registry consulted by the enrichment facade:
//
//   - oauth2_client_credentials (alias oauth2): token endpoint POST through
//     golang.org/x/oauth2/clientcredentials, optional shared token cache
//   - api_key: static header or query parameter
//   - basic: precomputed HTTP Basic Authorization header
//
// Adding a variant means implementing Strategy and registering a Factory;
// the facade never changes.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"metadata-enricher/internal/common/logging"
	"metadata-enricher/internal/common/registry"
	"metadata-enricher/internal/common/utils"
	"metadata-enricher/internal/credentials"
)

// Strategy is the contract every authentication variant implements.
type Strategy interface {
	// Authenticate derives the per-invocation AuthContext. Network-backed
	// variants return retryable errors for transient transport failures
	// and AuthenticationFailed for everything else.
	Authenticate(ctx context.Context, bundle *credentials.Bundle, endpoint Endpoint) (*AuthContext, error)

	// Decorate attaches authentication to req in place.
	Decorate(req *http.Request, authCtx *AuthContext) error

	// Name returns the registry name of the strategy.
	Name() string
}

// Endpoint describes where and how to authenticate.
type Endpoint struct {
	SecretRef string
	TokenURL  string
	Config    Config
}

// AuthContext holds what Decorate needs for one invocation. It is never
// shared between invocations except through the explicit token cache.
type AuthContext struct {
	Strategy string

	// Token is set by bearer-token strategies.
	Token *oauth2.Token

	// Header/HeaderValue carry a precomputed static header.
	Header      string
	HeaderValue string

	// QueryParam/QueryValue carry a static query parameter.
	QueryParam string
	QueryValue string

	// AdditionalHeaders come from the credential bundle.
	AdditionalHeaders map[string]string

	// FromCache is true when the token was served by the token cache.
	FromCache bool
}

// ExpiresAt returns the token expiry, or the zero time for static strategies.
func (a *AuthContext) ExpiresAt() time.Time {
	if a == nil || a.Token == nil {
		return time.Time{}
	}
	return a.Token.Expiry
}

func applyAdditionalHeaders(req *http.Request, authCtx *AuthContext) {
	for name, value := range authCtx.AdditionalHeaders {
		req.Header.Set(name, value)
	}
}

func copyHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}

// Config is the auth_config block of an enrichment configuration.
type Config struct {
	TimeoutSeconds         float64 `json:"timeout_seconds" yaml:"timeout_seconds" validate:"min=0"`
	Scope                  Scopes  `json:"scope,omitempty" yaml:"scope,omitempty"`
	Audience               string  `json:"audience,omitempty" yaml:"audience,omitempty"`
	AuthStyle              string  `json:"auth_style" yaml:"auth_style" validate:"omitempty,oneof=auto header params"`
	APIKeyHeader           string  `json:"api_key_header" yaml:"api_key_header"`
	APIKeyLocation         string  `json:"api_key_location" yaml:"api_key_location" validate:"omitempty,oneof=header query"`
	APIKeyParam            string  `json:"api_key_param" yaml:"api_key_param"`
	TokenExpirySkewSeconds float64 `json:"token_expiry_skew_seconds" yaml:"token_expiry_skew_seconds" validate:"min=0"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	if c.AuthStyle == "" {
		c.AuthStyle = "auto"
	}
	if c.APIKeyHeader == "" {
		c.APIKeyHeader = "X-API-Key"
	}
	if c.APIKeyLocation == "" {
		c.APIKeyLocation = "header"
	}
	if c.APIKeyParam == "" {
		c.APIKeyParam = "api_key"
	}
	if c.TokenExpirySkewSeconds == 0 {
		c.TokenExpirySkewSeconds = 30
	}
}

// Timeout is the per-attempt token request timeout.
func (c Config) Timeout() time.Duration {
	return utils.DurationOr(c.TimeoutSeconds, 30*time.Second)
}

// Scopes accepts either a space-separated string or a list.
type Scopes []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scopes) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = strings.Fields(single)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("scope must be a string or a list of strings")
	}
	*s = list
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Scopes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = strings.Fields(node.Value)
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return fmt.Errorf("scope must be a string or a list of strings")
	}
	*s = list
	return nil
}

// Dependencies are handed to every Factory.
type Dependencies struct {
	HTTPClient *http.Client
	TokenCache *TokenCache
	Logger     logging.Logger
}

// Factory builds a Strategy.
type Factory func(deps Dependencies) Strategy

// Registry maps strategy names to factories.
type Registry = registry.Registry[Factory]

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *Registry {
	r := registry.New[Factory]("auth strategy")
	r.Register(credentials.KindOAuth2ClientCredentials, func(deps Dependencies) Strategy {
		return NewOAuth2ClientCredentials(deps.HTTPClient, deps.TokenCache, deps.Logger)
	}, "oauth2")
	r.Register(credentials.KindAPIKey, func(deps Dependencies) Strategy {
		return NewAPIKey()
	})
	r.Register(credentials.KindBasic, func(deps Dependencies) Strategy {
		return NewBasicAuth()
	})
	return r
}
