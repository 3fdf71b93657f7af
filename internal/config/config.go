// Package config provides process-level configuration for the metadata
// enricher. Values come from environment variables, optionally seeded from a
// .env file, with defaults suitable for local runs.
//
// Per-invocation settings (endpoints, auth type, mappings) are not read here;
// they arrive with each enrichment request.
//
// Environment Variables:
//
// Application Settings:
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FORMAT: "console" or "json" (default: console)
//   - METRICS_ENABLED: Register Prometheus collectors (default: false)
//
// Secret Store:
//   - SECRET_BACKEND: "aws", "vault" or "env" (default: aws)
//   - SECRET_NAMESPACE_PREFIX: Required prefix of every secret_ref (default: medialake/external-metadata/)
//   - AWS_REGION: Region for Secrets Manager and S3 config references
//   - AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_SESSION_TOKEN: Static AWS credentials (default: SDK chain)
//   - AWS_ENDPOINT_URL: Endpoint override for LocalStack-style setups
//   - VAULT_ADDR: Vault address (required for the vault backend)
//   - VAULT_TOKEN: Vault token
//   - VAULT_MOUNT: KV v2 mount (default: secret)
//
// Token Cache:
//   - TOKEN_CACHE: "none", "memory" or "redis" (default: memory)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//
// Example usage:
//
//	config.LoadDotEnv("")
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"metadata-enricher/internal/common/awsutil"
	"metadata-enricher/internal/common/logging"
	"metadata-enricher/internal/common/validation"
	"metadata-enricher/internal/credentials"
)

// Secret backends.
const (
	SecretBackendAWS   = "aws"
	SecretBackendVault = "vault"
	SecretBackendEnv   = "env"
)

// Token cache backends.
const (
	TokenCacheNone   = "none"
	TokenCacheMemory = "memory"
	TokenCacheRedis  = "redis"
)

// Config holds the process configuration.
type Config struct {
	LogLevel       string // Logging level (debug, info, warn, error)
	LogFormat      string // console or json
	MetricsEnabled bool   // Whether Prometheus collectors are registered

	// Secret store
	SecretBackend         string // aws, vault or env
	SecretNamespacePrefix string // Prefix every secret_ref must carry
	AWSRegion             string // Region for AWS clients, empty defers to the SDK chain
	AWSAccessKeyID        string
	AWSSecretAccessKey    string
	AWSSessionToken       string
	AWSEndpoint           string
	VaultAddress          string
	VaultToken            string
	VaultMount            string

	// Token cache
	TokenCache    string // none, memory or redis
	RedisAddress  string // Redis server address (host:port)
	RedisPassword string
	RedisDB       string // Redis database number (0-15)
}

// LoadDotEnv loads variables from path (".env" when empty) without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Load creates a Config from the environment. It does not validate; call
// Validate on the result.
func Load() *Config {
	return &Config{
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", logging.FormatConsole),
		MetricsEnabled: getBoolEnv("METRICS_ENABLED", false),

		SecretBackend:         getEnv("SECRET_BACKEND", SecretBackendAWS),
		SecretNamespacePrefix: getEnv("SECRET_NAMESPACE_PREFIX", credentials.DefaultNamespacePrefix),
		AWSRegion:             getEnv("AWS_REGION", ""),
		AWSAccessKeyID:        getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSSessionToken:       getEnv("AWS_SESSION_TOKEN", ""),
		AWSEndpoint:           getEnv("AWS_ENDPOINT_URL", ""),
		VaultAddress:          getEnv("VAULT_ADDR", ""),
		VaultToken:            getEnv("VAULT_TOKEN", ""),
		VaultMount:            getEnv("VAULT_MOUNT", "secret"),

		TokenCache:    getEnv("TOKEN_CACHE", TokenCacheMemory),
		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts the strconv.ParseBool forms; anything else yields defaultValue.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// AWSSettings returns the settings shared by every AWS client.
func (c *Config) AWSSettings() awsutil.Settings {
	return awsutil.Settings{
		Region:          c.AWSRegion,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		SessionToken:    c.AWSSessionToken,
		Endpoint:        c.AWSEndpoint,
	}
}

// RedisDBNumber returns REDIS_DB as an int. Validate guarantees it parses.
func (c *Config) RedisDBNumber() int {
	db, _ := strconv.Atoi(c.RedisDB)
	return db
}

// Validate reports every invalid setting at once as a config error.
func (c *Config) Validate() error {
	v := validation.NewValidator()

	v.RequireOneOf(c.LogFormat, []string{logging.FormatConsole, logging.FormatJSON}, "LOG_FORMAT")
	v.RequireOneOf(c.SecretBackend, []string{SecretBackendAWS, SecretBackendVault, SecretBackendEnv}, "SECRET_BACKEND")
	v.RequireString(c.SecretNamespacePrefix, "SECRET_NAMESPACE_PREFIX")
	v.RequireOneOf(c.TokenCache, []string{TokenCacheNone, TokenCacheMemory, TokenCacheRedis}, "TOKEN_CACHE")

	if c.AWSEndpoint != "" {
		v.RequireURL(c.AWSEndpoint, "AWS_ENDPOINT_URL")
	}
	if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		v.Validate(func() error {
			return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		})
	}

	if c.SecretBackend == SecretBackendVault {
		v.RequireURL(c.VaultAddress, "VAULT_ADDR")
		v.RequireString(c.VaultMount, "VAULT_MOUNT")
	}

	if c.TokenCache == TokenCacheRedis {
		v.RequireString(c.RedisAddress, "REDIS_ADDRESS")
		v.RequireIntInRange(c.RedisDB, 0, 15, "REDIS_DB")
	}

	return v.Error()
}
