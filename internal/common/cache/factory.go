package cache

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Type represents the cache backend type
type Type string

const (
	TypeNone   Type = "none"
	TypeMemory Type = "memory"
	TypeRedis  Type = "redis"
)

// Config holds cache configuration
type Config struct {
	Type            Type          `json:"type"`
	CleanupInterval time.Duration `json:"cleanup_interval,omitempty"`
	KeyPrefix       string        `json:"key_prefix,omitempty"`
	RedisClient     *redis.Client `json:"-"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		Type:            TypeNone,
		CleanupInterval: 10 * time.Minute,
		KeyPrefix:       "metadata-enricher:token:",
	}
}

// New creates a cache instance based on configuration. TypeNone yields a
// nil Cache, which callers treat as caching disabled.
func New(config Config) (Cache, error) {
	switch config.Type {
	case TypeNone, "":
		return nil, nil

	case TypeMemory:
		cleanup := config.CleanupInterval
		if cleanup <= 0 {
			cleanup = 10 * time.Minute
		}
		return NewLocalCache(time.Minute, cleanup), nil

	case TypeRedis:
		if config.RedisClient == nil {
			return nil, fmt.Errorf("redis client required for redis cache")
		}
		return NewRedisCache(config.RedisClient, config.KeyPrefix), nil

	default:
		return nil, fmt.Errorf("unknown cache type: %s", config.Type)
	}
}
