// Package adapters fetches per-asset metadata from source systems and
// returns it as a canonical tree.
//
// An Adapter performs exactly one attempt per Fetch call; retries are
// applied around it by the enrichment facade. Only the generic REST
// adapter is built in. Other transports plug in by registering a Factory.
package adapters

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"metadata-enricher/internal/auth"
	"metadata-enricher/internal/canonical"
	"metadata-enricher/internal/common/logging"
	"metadata-enricher/internal/common/registry"
	"metadata-enricher/internal/common/utils"
)

// Adapter fetches the metadata record for one correlation id.
type Adapter interface {
	Fetch(ctx context.Context, req Request) (*canonical.Map, error)
	Name() string
}

// Request carries everything one fetch needs.
type Request struct {
	Endpoint      string
	CorrelationID string
	Config        Config
	Strategy      auth.Strategy
	AuthContext   *auth.AuthContext
}

// Config is the adapter_config block of an enrichment configuration.
type Config struct {
	HTTPMethod            string            `json:"http_method" yaml:"http_method" validate:"omitempty,http_method"`
	CorrelationIDParam    string            `json:"correlation_id_param" yaml:"correlation_id_param"`
	CorrelationIDLocation string            `json:"correlation_id_location" yaml:"correlation_id_location" validate:"omitempty,oneof=query body path"`
	ExtraParams           map[string]string `json:"extra_params,omitempty" yaml:"extra_params,omitempty"`
	ExtraHeaders          map[string]string `json:"extra_headers,omitempty" yaml:"extra_headers,omitempty"`
	TimeoutSeconds        float64           `json:"timeout_seconds" yaml:"timeout_seconds" validate:"min=0"`
	ResponseFormat        string            `json:"response_format" yaml:"response_format" validate:"omitempty,oneof=auto json xml"`
	ResponseMetadataPath  string            `json:"response_metadata_path,omitempty" yaml:"response_metadata_path,omitempty" validate:"dotted_path"`
	RateLimitPerSecond    float64           `json:"rate_limit_per_second,omitempty" yaml:"rate_limit_per_second,omitempty" validate:"min=0"`
	RateLimitBurst        int               `json:"rate_limit_burst,omitempty" yaml:"rate_limit_burst,omitempty" validate:"min=0"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.HTTPMethod == "" {
		c.HTTPMethod = http.MethodGet
	}
	if c.CorrelationIDParam == "" {
		c.CorrelationIDParam = "id"
	}
	if c.CorrelationIDLocation == "" {
		c.CorrelationIDLocation = "query"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	if c.ResponseFormat == "" {
		c.ResponseFormat = "auto"
	}
}

// Timeout is the per-attempt fetch timeout.
func (c Config) Timeout() time.Duration {
	return utils.DurationOr(c.TimeoutSeconds, 30*time.Second)
}

// RateLimiters hands out one token bucket per key, shared by every
// invocation in the process. A nil *RateLimiters disables limiting.
type RateLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiters creates an empty set.
func NewRateLimiters() *RateLimiters {
	return &RateLimiters{limiters: make(map[string]*rate.Limiter)}
}

// For returns the limiter for key, creating it on first use. A
// non-positive rate returns nil.
func (r *RateLimiters) For(key string, perSecond float64, burst int) *rate.Limiter {
	if r == nil || perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, ok := r.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		r.limiters[key] = limiter
	}
	return limiter
}

// Dependencies are handed to every Factory.
type Dependencies struct {
	HTTPClient   *http.Client
	RateLimiters *RateLimiters
	Logger       logging.Logger
}

// Factory builds an Adapter.
type Factory func(deps Dependencies) Adapter

// Registry maps adapter types to factories.
type Registry = registry.Registry[Factory]

// NewRegistry returns a registry holding the generic REST adapter.
func NewRegistry() *Registry {
	r := registry.New[Factory]("adapter type")
	r.Register(GenericRestName, func(deps Dependencies) Adapter {
		return NewGenericRestAdapter(deps.HTTPClient, deps.RateLimiters, deps.Logger)
	}, "rest", "generic")
	return r
}
