package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metadata-enricher/internal/common/errors"
)

var envVars = []string{
	"LOG_LEVEL", "LOG_FORMAT", "METRICS_ENABLED", "SECRET_BACKEND", "SECRET_NAMESPACE_PREFIX",
	"AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN", "AWS_ENDPOINT_URL", "VAULT_ADDR", "VAULT_TOKEN", "VAULT_MOUNT", "TOKEN_CACHE",
	"REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB",
}

// clearEnv blanks every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, SecretBackendAWS, cfg.SecretBackend)
	assert.Equal(t, "medialake/external-metadata/", cfg.SecretNamespacePrefix)
	assert.Equal(t, "secret", cfg.VaultMount)
	assert.Equal(t, TokenCacheMemory, cfg.TokenCache)
	assert.Equal(t, "localhost:6379", cfg.RedisAddress)
	assert.Equal(t, 0, cfg.RedisDBNumber())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("SECRET_BACKEND", "vault")
	t.Setenv("VAULT_ADDR", "https://vault.internal:8200")
	t.Setenv("VAULT_MOUNT", "kv")
	t.Setenv("TOKEN_CACHE", "redis")
	t.Setenv("REDIS_ADDRESS", "redis:6379")
	t.Setenv("REDIS_DB", "4")

	cfg := Load()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, SecretBackendVault, cfg.SecretBackend)
	assert.Equal(t, "kv", cfg.VaultMount)
	assert.Equal(t, 4, cfg.RedisDBNumber())
	assert.NoError(t, cfg.Validate())
}

func TestConfig_AWSSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKID")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_ENDPOINT_URL", "http://localhost:4566")

	cfg := Load()
	require.NoError(t, cfg.Validate())
	settings := cfg.AWSSettings()
	assert.Equal(t, "eu-central-1", settings.Region)
	assert.True(t, settings.HasStaticCredentials())
	assert.Equal(t, "http://localhost:4566", settings.Endpoint)
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		value      string
		defaultVal bool
		want       bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"F", true, false},
		{"yes", true, true},
		{"yes", false, false},
		{"", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			assert.Equal(t, tt.want, getBoolEnv("TEST_BOOL", tt.defaultVal))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "unknown secret backend",
			mutate: func(c *Config) { c.SecretBackend = "gcp" },
			want:   []string{"SECRET_BACKEND must be one of: aws, vault, env"},
		},
		{
			name:   "vault without address",
			mutate: func(c *Config) { c.SecretBackend = SecretBackendVault },
			want:   []string{"VAULT_ADDR is required"},
		},
		{
			name:   "unknown log format",
			mutate: func(c *Config) { c.LogFormat = "logfmt" },
			want:   []string{"LOG_FORMAT must be one of: console, json"},
		},
		{
			name:   "half of a static key pair",
			mutate: func(c *Config) { c.AWSAccessKeyID = "AKID" },
			want:   []string{"AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together"},
		},
		{
			name:   "relative aws endpoint",
			mutate: func(c *Config) { c.AWSEndpoint = "localhost:4566" },
			want:   []string{"AWS_ENDPOINT_URL must be a complete URL"},
		},
		{
			name:   "unknown token cache",
			mutate: func(c *Config) { c.TokenCache = "memcached" },
			want:   []string{"TOKEN_CACHE must be one of: none, memory, redis"},
		},
		{
			name: "redis db out of range",
			mutate: func(c *Config) {
				c.TokenCache = TokenCacheRedis
				c.RedisDB = "16"
			},
			want: []string{"REDIS_DB must be a number between 0 and 15"},
		},
		{
			name: "every error reported",
			mutate: func(c *Config) {
				c.SecretBackend = ""
				c.SecretNamespacePrefix = " "
				c.TokenCache = "disk"
			},
			want: []string{"validation failed", "SECRET_BACKEND is required", "SECRET_NAMESPACE_PREFIX is required", "TOKEN_CACHE must be one of"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := Load()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
			for _, want := range tt.want {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("TOKEN_CACHE")
	t.Setenv("LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=debug\nTOKEN_CACHE=none\n"), 0o600))

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("TOKEN_CACHE") })

	cfg := Load()
	assert.Equal(t, "warn", cfg.LogLevel, "existing variables win")
	assert.Equal(t, TokenCacheNone, cfg.TokenCache)

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
