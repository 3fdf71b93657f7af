package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/oauth2"

	"metadata-enricher/internal/common/cache"
	"metadata-enricher/internal/common/logging"
)

// TokenCache stores access tokens in a cache.Cache. Keys are derived from
// the secret reference, token URL and client id, so entries never cross
// secret references. Entries expire skew before the token does. A nil
// *TokenCache is a valid, disabled cache.
type TokenCache struct {
	store  cache.Cache
	logger logging.Logger
	now    func() time.Time
}

// NewTokenCache wraps store. A nil store returns a nil (disabled) cache.
func NewTokenCache(store cache.Cache, logger logging.Logger) *TokenCache {
	if store == nil {
		return nil
	}
	return &TokenCache{
		store:  store,
		logger: logging.OrGlobal(logger),
		now:    time.Now,
	}
}

// Key derives the cache key.
func (c *TokenCache) Key(secretRef, tokenURL, clientID string) string {
	sum := sha256.Sum256([]byte(secretRef + "|" + tokenURL + "|" + clientID))
	return "oauth2:" + hex.EncodeToString(sum[:])
}

// Get returns a still-valid token for key.
func (c *TokenCache) Get(ctx context.Context, key string) (*oauth2.Token, bool) {
	if c == nil {
		return nil, false
	}

	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Token cache read failed", logging.Err(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil || token.AccessToken == "" {
		_ = c.store.Delete(ctx, key)
		return nil, false
	}
	if !token.Expiry.IsZero() && !token.Expiry.After(c.now()) {
		return nil, false
	}
	return &token, true
}

// Put stores token until skew before its expiry. Tokens that are already
// inside the skew window are not stored.
func (c *TokenCache) Put(ctx context.Context, key string, token *oauth2.Token, skew time.Duration) {
	if c == nil || token == nil {
		return
	}

	ttl := token.Expiry.Sub(c.now()) - skew
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(token)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, string(data), ttl); err != nil {
		c.logger.Warn("Token cache write failed", logging.Err(err))
	}
}
