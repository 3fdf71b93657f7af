package enrichment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"metadata-enricher/internal/adapters"
	"metadata-enricher/internal/auth"
	"metadata-enricher/internal/canonical"
	"metadata-enricher/internal/common/errors"
	"metadata-enricher/internal/common/validation"
	"metadata-enricher/internal/normalizer"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1.0
)

// Config is the per-invocation configuration handed over by the pipeline.
type Config struct {
	AdapterType           string   `json:"adapter_type" yaml:"adapter_type" validate:"required"`
	AuthType              string   `json:"auth_type" yaml:"auth_type" validate:"required"`
	SecretRef             string   `json:"secret_ref" yaml:"secret_ref" validate:"required"`
	AuthEndpoint          string   `json:"auth_endpoint,omitempty" yaml:"auth_endpoint,omitempty" validate:"omitempty,url"`
	MetadataEndpoint      string   `json:"metadata_endpoint" yaml:"metadata_endpoint" validate:"required"`
	MaxRetries            *int     `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"omitempty,min=0,max=10"`
	InitialBackoffSeconds *float64 `json:"initial_backoff_seconds,omitempty" yaml:"initial_backoff_seconds,omitempty" validate:"omitempty,min=0"`
	CorrelationIDPattern  string   `json:"correlation_id_pattern,omitempty" yaml:"correlation_id_pattern,omitempty" validate:"omitempty,regexp"`

	AdapterConfig adapters.Config `json:"adapter_config" yaml:"adapter_config"`
	AuthConfig    auth.Config     `json:"auth_config" yaml:"auth_config"`
	Normalizer    NormalizerSpec  `json:"normalizer" yaml:"normalizer"`
}

// NormalizerSpec selects the normalizer and its configuration. Inline
// config overrides the referenced document group by group.
type NormalizerSpec struct {
	SourceType string         `json:"source_type" yaml:"source_type"`
	Config     *canonical.Map `json:"config,omitempty" yaml:"config,omitempty"`
	ConfigRef  string         `json:"config_ref,omitempty" yaml:"config_ref,omitempty"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.MaxRetries == nil {
		n := defaultMaxRetries
		c.MaxRetries = &n
	}
	if c.InitialBackoffSeconds == nil {
		s := defaultInitialBackoff
		c.InitialBackoffSeconds = &s
	}
	if c.Normalizer.SourceType == "" {
		c.Normalizer.SourceType = normalizer.GenericName
	}
	c.AdapterConfig.SetDefaults()
	c.AuthConfig.SetDefaults()
}

var structValidator = validation.NewStructValidator()

// Validate checks field rules and the rules that span fields.
func (c *Config) Validate() error {
	if err := structValidator.ValidateStruct(c); err != nil {
		return err
	}

	v := validation.NewValidator()
	v.RequireURL(strings.ReplaceAll(c.MetadataEndpoint, "{correlation_id}", "id"), "metadata_endpoint")
	v.ValidateIf(isOAuth2(c.AuthType), func() error {
		if c.AuthEndpoint == "" {
			return fmt.Errorf("auth_endpoint is required for %s auth", c.AuthType)
		}
		return nil
	})
	v.ValidateIf(c.AdapterConfig.CorrelationIDLocation == "path", func() error {
		if !strings.Contains(c.MetadataEndpoint, "{correlation_id}") {
			return fmt.Errorf("metadata_endpoint must contain {correlation_id} when correlation_id_location is path")
		}
		return nil
	})
	return v.Error()
}

func isOAuth2(authType string) bool {
	return authType == "oauth2" || authType == "oauth2_client_credentials"
}

// RetryPolicy returns the configured max_retries and initial backoff.
func (c *Config) RetryPolicy() (int, float64) {
	maxRetries, backoff := defaultMaxRetries, defaultInitialBackoff
	if c.MaxRetries != nil {
		maxRetries = *c.MaxRetries
	}
	if c.InitialBackoffSeconds != nil {
		backoff = *c.InitialBackoffSeconds
	}
	return maxRetries, backoff
}

// ParseConfig decodes an invocation config. name picks YAML for .yaml and
// .yml, JSON for .json; other names are sniffed. Unknown keys are errors.
func ParseConfig(data []byte, name string) (*Config, error) {
	var cfg Config

	switch ext := strings.ToLower(filepath.Ext(name)); {
	case ext == ".yaml" || ext == ".yml" || (ext != ".json" && !looksLikeJSON(data)):
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("invalid enrichment config: %v", err))
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("invalid enrichment config: %v", err))
		}
	}
	return &cfg, nil
}

func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
