package auth

import (
	"context"
	"encoding/base64"
	"net/http"

	"metadata-enricher/internal/common/errors"
	"metadata-enricher/internal/credentials"
)

// APIKey sends the bundle's api_key as a header (default X-API-Key) or as
// a query parameter (default api_key), per auth_config.
type APIKey struct{}

// NewAPIKey creates the strategy.
func NewAPIKey() *APIKey { return &APIKey{} }

// Name returns the registry name.
func (s *APIKey) Name() string { return credentials.KindAPIKey }

// Authenticate only fails on a malformed bundle.
func (s *APIKey) Authenticate(ctx context.Context, bundle *credentials.Bundle, endpoint Endpoint) (*AuthContext, error) {
	if err := bundle.Validate(credentials.KindAPIKey); err != nil {
		return nil, err
	}

	authCtx := &AuthContext{
		Strategy:          s.Name(),
		AdditionalHeaders: copyHeaders(bundle.AdditionalHeaders),
	}
	cfg := endpoint.Config
	cfg.SetDefaults()
	if cfg.APIKeyLocation == "query" {
		authCtx.QueryParam = cfg.APIKeyParam
		authCtx.QueryValue = bundle.APIKey
	} else {
		authCtx.Header = cfg.APIKeyHeader
		authCtx.HeaderValue = bundle.APIKey
	}
	return authCtx, nil
}

// Decorate adds the key to the request.
func (s *APIKey) Decorate(req *http.Request, authCtx *AuthContext) error {
	if authCtx == nil {
		return errors.InternalError("api key decorate called without context", nil)
	}
	applyAdditionalHeaders(req, authCtx)
	if authCtx.QueryParam != "" {
		q := req.URL.Query()
		q.Set(authCtx.QueryParam, authCtx.QueryValue)
		req.URL.RawQuery = q.Encode()
		return nil
	}
	req.Header.Set(authCtx.Header, authCtx.HeaderValue)
	return nil
}

// BasicAuth precomputes an HTTP Basic Authorization header.
type BasicAuth struct{}

// NewBasicAuth creates the strategy.
func NewBasicAuth() *BasicAuth { return &BasicAuth{} }

// Name returns the registry name.
func (s *BasicAuth) Name() string { return credentials.KindBasic }

// Authenticate only fails on a malformed bundle.
func (s *BasicAuth) Authenticate(ctx context.Context, bundle *credentials.Bundle, endpoint Endpoint) (*AuthContext, error) {
	if err := bundle.Validate(credentials.KindBasic); err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(bundle.Username + ":" + bundle.Password))
	return &AuthContext{
		Strategy:          s.Name(),
		Header:            "Authorization",
		HeaderValue:       "Basic " + encoded,
		AdditionalHeaders: copyHeaders(bundle.AdditionalHeaders),
	}, nil
}

// Decorate sets the Authorization header.
func (s *BasicAuth) Decorate(req *http.Request, authCtx *AuthContext) error {
	if authCtx == nil {
		return errors.InternalError("basic decorate called without context", nil)
	}
	applyAdditionalHeaders(req, authCtx)
	req.Header.Set(authCtx.Header, authCtx.HeaderValue)
	return nil
}
