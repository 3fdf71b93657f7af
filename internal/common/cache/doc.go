// Package cache provides the short-lived key/value store behind the OAuth2
// token cache.
//
// Two backends are available:
//   - LocalCache, in-process, over github.com/patrickmn/go-cache
//   - RedisCache, shared across workers, over github.com/go-redis/redis/v8
//
// Values are plain strings; callers serialize their own payloads. Entries
// always carry a TTL, so nothing outlives the data it was derived from.
//
//	c, err := cache.New(cache.Config{Type: cache.TypeMemory})
//	_ = c.Set(ctx, "key", `{"access_token":"..."}`, 50*time.Minute)
//	val, found, err := c.Get(ctx, "key")
package cache
