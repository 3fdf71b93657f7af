// Package credentials resolves secret references into credential bundles.
//
// Resolution is a pure lookup: the reference is checked against the
// namespace convention before any store is contacted, the stored JSON is
// decoded into a Bundle, and the bundle is checked for the fields the
// configured auth kind needs. Nothing here retries.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"metadata-enricher/internal/common/errors"
	"metadata-enricher/internal/common/logging"
)

// DefaultNamespacePrefix is the prefix every secret reference must carry.
const DefaultNamespacePrefix = "medialake/external-metadata/"

// Auth kinds a bundle can be validated for.
const (
	KindOAuth2ClientCredentials = "oauth2_client_credentials"
	KindAPIKey                  = "api_key"
	KindBasic                   = "basic"
)

var refRemainder = regexp.MustCompile(`^[A-Za-z0-9/_+=.@-]+$`)

// Bundle is the decoded secret. It is created once per invocation and
// never persisted.
type Bundle struct {
	ClientID          string            `json:"client_id,omitempty"`
	ClientSecret      string            `json:"client_secret,omitempty"`
	APIKey            string            `json:"api_key,omitempty"`
	Username          string            `json:"username,omitempty"`
	Password          string            `json:"password,omitempty"`
	AdditionalHeaders map[string]string `json:"additional_headers,omitempty"`
}

// String redacts every secret value.
func (b *Bundle) String() string {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	return fmt.Sprintf("Bundle{client_id=%s client_secret=%s api_key=%s username=%s password=%s headers=%d}",
		b.ClientID, mask(b.ClientSecret), mask(b.APIKey), b.Username, mask(b.Password), len(b.AdditionalHeaders))
}

// Validate checks that the fields required by authKind are present.
// Unknown kinds have no requirements; the strategy registry rejects them.
func (b *Bundle) Validate(authKind string) error {
	var missing []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	switch authKind {
	case KindOAuth2ClientCredentials:
		require(b.ClientID, "client_id")
		require(b.ClientSecret, "client_secret")
	case KindAPIKey:
		require(b.APIKey, "api_key")
	case KindBasic:
		require(b.Username, "username")
		require(b.Password, "password")
	}

	if len(missing) > 0 {
		return errors.SecretMalformedError(fmt.Sprintf("secret for %s auth is missing %s",
			authKind, strings.Join(missing, ", ")))
	}
	return nil
}

// ParseBundle decodes the stored secret document.
func ParseBundle(data []byte) (*Bundle, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.SecretMalformedError("secret is not a JSON object")
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, errors.SecretMalformedError(fmt.Sprintf("secret has invalid field types: %v", err))
	}
	return &bundle, nil
}

// CheckReference enforces the namespace convention on a secret reference.
func CheckReference(ref, prefix string) error {
	if prefix == "" {
		prefix = DefaultNamespacePrefix
	}
	rest, ok := strings.CutPrefix(ref, prefix)
	if !ok || !refRemainder.MatchString(rest) {
		return errors.SecretNamespaceError(ref, prefix)
	}
	return nil
}

// Store fetches the raw secret document for a reference. A missing secret
// is reported as a SecretNotFound error.
type Store interface {
	GetSecret(ctx context.Context, ref string) ([]byte, error)
	Name() string
}

// Provider resolves references through a Store.
type Provider struct {
	store  Store
	prefix string
	logger logging.Logger
}

// NewProvider creates a provider. An empty prefix means DefaultNamespacePrefix.
func NewProvider(store Store, prefix string, logger logging.Logger) *Provider {
	if prefix == "" {
		prefix = DefaultNamespacePrefix
	}
	return &Provider{
		store:  store,
		prefix: prefix,
		logger: logging.OrGlobal(logger),
	}
}

// Resolve checks the reference, reads the secret and validates it for authKind.
func (p *Provider) Resolve(ctx context.Context, ref, authKind string) (*Bundle, error) {
	if err := CheckReference(ref, p.prefix); err != nil {
		return nil, err
	}

	data, err := p.store.GetSecret(ctx, ref)
	if err != nil {
		p.logger.WithContext(ctx).Warn("Secret lookup failed",
			logging.Field{Key: "secret_ref", Value: ref},
			logging.Field{Key: "store", Value: p.store.Name()},
			logging.Field{Key: "error_type", Value: string(errors.GetType(err))})
		return nil, err
	}

	bundle, err := ParseBundle(data)
	if err != nil {
		return nil, err
	}
	if err := bundle.Validate(authKind); err != nil {
		return nil, err
	}

	p.logger.WithContext(ctx).Debug("Resolved credentials",
		logging.Field{Key: "secret_ref", Value: ref},
		logging.Field{Key: "store", Value: p.store.Name()})
	return bundle, nil
}
