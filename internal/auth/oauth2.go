package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"metadata-enricher/internal/common/errors"
	httpx "metadata-enricher/internal/common/http"
	"metadata-enricher/internal/common/logging"
	"metadata-enricher/internal/credentials"
)

// defaultTokenLifetime applies when the token response carries no expires_in.
const defaultTokenLifetime = time.Hour

// OAuth2ClientCredentials fetches a bearer token with the client
// credentials grant.
//
// Token endpoint responses map onto the error taxonomy as follows:
//   - 5xx, connection failures and timeouts: retryable
//   - any other non-2xx status: AuthenticationFailed
//   - a 2xx response without access_token: AuthenticationFailed
//
// When a TokenCache is configured, tokens are reused until shortly
// before expiry for the same secret reference, token URL and client id.
type OAuth2ClientCredentials struct {
	client *http.Client
	cache  *TokenCache
	logger logging.Logger
	now    func() time.Time
}

// NewOAuth2ClientCredentials creates the strategy. A nil client uses a
// default pooled client; a nil cache disables caching.
func NewOAuth2ClientCredentials(client *http.Client, cache *TokenCache, logger logging.Logger) *OAuth2ClientCredentials {
	if client == nil {
		client = httpx.NewHTTPClient()
	}
	return &OAuth2ClientCredentials{
		client: client,
		cache:  cache,
		logger: logging.OrGlobal(logger),
		now:    time.Now,
	}
}

// Name returns the registry name.
func (s *OAuth2ClientCredentials) Name() string {
	return credentials.KindOAuth2ClientCredentials
}

// Authenticate returns a cached token or requests a new one.
func (s *OAuth2ClientCredentials) Authenticate(ctx context.Context, bundle *credentials.Bundle, endpoint Endpoint) (*AuthContext, error) {
	if err := bundle.Validate(credentials.KindOAuth2ClientCredentials); err != nil {
		return nil, err
	}
	if endpoint.TokenURL == "" {
		return nil, errors.ConfigError("auth_endpoint is required for oauth2 client credentials")
	}

	logger := s.logger.WithContext(ctx).WithFields(logging.String("token_url", endpoint.TokenURL))

	key := s.cache.Key(endpoint.SecretRef, endpoint.TokenURL, bundle.ClientID)
	if token, ok := s.cache.Get(ctx, key); ok {
		logger.Debug("Using cached access token",
			logging.Duration("expires_in", token.Expiry.Sub(s.now())))
		return s.authContext(bundle, token, true), nil
	}

	token, err := s.requestToken(ctx, bundle, endpoint)
	if err != nil {
		logger.Warn("Token request failed",
			logging.String("error_type", string(errors.GetType(err))),
			logging.Int("status", errors.StatusCode(err)))
		return nil, err
	}

	if token.Expiry.IsZero() {
		token.Expiry = s.now().Add(defaultTokenLifetime)
	}

	skew := time.Duration(endpoint.Config.TokenExpirySkewSeconds * float64(time.Second))
	s.cache.Put(ctx, key, token, skew)

	logger.Debug("Obtained access token", logging.Duration("expires_in", token.Expiry.Sub(s.now())))
	return s.authContext(bundle, token, false), nil
}

func (s *OAuth2ClientCredentials) authContext(bundle *credentials.Bundle, token *oauth2.Token, cached bool) *AuthContext {
	return &AuthContext{
		Strategy:          s.Name(),
		Token:             token,
		AdditionalHeaders: copyHeaders(bundle.AdditionalHeaders),
		FromCache:         cached,
	}
}

func (s *OAuth2ClientCredentials) requestToken(ctx context.Context, bundle *credentials.Bundle, endpoint Endpoint) (*oauth2.Token, error) {
	cfg := clientcredentials.Config{
		ClientID:     bundle.ClientID,
		ClientSecret: bundle.ClientSecret,
		TokenURL:     endpoint.TokenURL,
		Scopes:       endpoint.Config.Scope,
		AuthStyle:    authStyle(endpoint.Config.AuthStyle),
	}
	if endpoint.Config.Audience != "" {
		cfg.EndpointParams = url.Values{"audience": {endpoint.Config.Audience}}
	}

	attemptCtx, cancel := httpx.AttemptContext(ctx, endpoint.Config.Timeout())
	defer cancel()
	attemptCtx = context.WithValue(attemptCtx, oauth2.HTTPClient, s.client)

	token, err := cfg.Token(attemptCtx)
	if err != nil {
		return nil, classifyTokenError(ctx, err)
	}
	return token, nil
}

func classifyTokenError(parent context.Context, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status >= 500 {
			return errors.TransportError("token endpoint error", err).WithStatus(status)
		}
		appErr := errors.AuthenticationError("token endpoint rejected client credentials", nil).WithStatus(status)
		if retrieveErr.ErrorCode != "" {
			appErr.WithCode(retrieveErr.ErrorCode)
		}
		return appErr
	}

	var urlErr *url.Error
	if stderrors.As(err, &urlErr) || parent.Err() != nil {
		return httpx.ClassifyError(parent, "token request", err)
	}

	return errors.AuthenticationError(fmt.Sprintf("invalid token response: %v", err), nil)
}

func authStyle(style string) oauth2.AuthStyle {
	switch style {
	case "header":
		return oauth2.AuthStyleInHeader
	case "params":
		return oauth2.AuthStyleInParams
	default:
		return oauth2.AuthStyleAutoDetect
	}
}

// Decorate sets the Authorization header and bundle headers.
func (s *OAuth2ClientCredentials) Decorate(req *http.Request, authCtx *AuthContext) error {
	if authCtx == nil || authCtx.Token == nil {
		return errors.InternalError("oauth2 decorate called without a token", nil)
	}
	applyAdditionalHeaders(req, authCtx)
	authCtx.Token.SetAuthHeader(req)
	return nil
}
