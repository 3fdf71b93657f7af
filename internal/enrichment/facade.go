// Package enrichment is the single entry point the pipeline calls to
// enrich one asset.
//
// Facade.Enrich resolves credentials, authenticates, fetches the source
// record and normalizes it, and always returns a Result whose Status is
// one of success, no_match, auth_error or error. Network stages run under
// the configured retry policy; nothing is retried across stages.
package enrichment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"metadata-enricher/internal/adapters"
	"metadata-enricher/internal/auth"
	"metadata-enricher/internal/canonical"
	"metadata-enricher/internal/common/errors"
	httpx "metadata-enricher/internal/common/http"
	"metadata-enricher/internal/common/logging"
	"metadata-enricher/internal/common/utils"
	"metadata-enricher/internal/credentials"
	"metadata-enricher/internal/metrics"
	"metadata-enricher/internal/normalizer"
)

// Input identifies the asset being enriched.
type Input struct {
	// FileName is the asset file name or path the correlation id is
	// extracted from.
	FileName string
	// CorrelationID overrides extraction when set.
	CorrelationID string
	// AssetID is the caller's own asset id, used for logging only.
	AssetID string
}

// Facade wires the enrichment components together. It holds no
// per-invocation state and is safe for concurrent use.
type Facade struct {
	credentials *credentials.Provider
	strategies  *auth.Registry
	adapters    *adapters.Registry
	normalizers *normalizer.Registry
	loader      *normalizer.Loader
	httpClient  *http.Client
	tokenCache  *auth.TokenCache
	limiters    *adapters.RateLimiters
	metrics     *metrics.Recorder
	logger      logging.Logger
	retryTweak  func(*utils.RetryConfig)
}

// Option configures a Facade.
type Option func(*Facade)

// WithStrategies replaces the auth strategy registry.
func WithStrategies(r *auth.Registry) Option { return func(f *Facade) { f.strategies = r } }

// WithAdapters replaces the adapter registry.
func WithAdapters(r *adapters.Registry) Option { return func(f *Facade) { f.adapters = r } }

// WithNormalizers replaces the normalizer registry.
func WithNormalizers(r *normalizer.Registry) Option { return func(f *Facade) { f.normalizers = r } }

// WithLoader sets the loader for normalizer config references.
func WithLoader(l *normalizer.Loader) Option { return func(f *Facade) { f.loader = l } }

// WithHTTPClient sets the client used for token and metadata requests.
func WithHTTPClient(c *http.Client) Option { return func(f *Facade) { f.httpClient = c } }

// WithTokenCache enables OAuth2 token caching across invocations.
func WithTokenCache(c *auth.TokenCache) Option { return func(f *Facade) { f.tokenCache = c } }

// WithMetrics records outcomes on r.
func WithMetrics(r *metrics.Recorder) Option { return func(f *Facade) { f.metrics = r } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(f *Facade) { f.logger = l } }

// WithRetryTweak adjusts the retry policy built for each invocation.
func WithRetryTweak(fn func(*utils.RetryConfig)) Option {
	return func(f *Facade) { f.retryTweak = fn }
}

// New creates a Facade resolving secrets through provider.
func New(provider *credentials.Provider, opts ...Option) *Facade {
	f := &Facade{credentials: provider}
	for _, opt := range opts {
		opt(f)
	}
	if f.strategies == nil {
		f.strategies = auth.NewRegistry()
	}
	if f.adapters == nil {
		f.adapters = adapters.NewRegistry()
	}
	if f.normalizers == nil {
		f.normalizers = normalizer.NewRegistry()
	}
	if f.httpClient == nil {
		f.httpClient = httpx.NewHTTPClient()
	}
	if f.limiters == nil {
		f.limiters = adapters.NewRateLimiters()
	}
	f.logger = logging.OrGlobal(f.logger)
	if f.loader == nil {
		f.loader = normalizer.NewLoader(normalizer.WithLogger(f.logger))
	}
	return f
}

// invocation is the state of one Enrich call.
type invocation struct {
	cfg    *Config
	result *Result
	logger logging.Logger
	start  time.Time
	stage  string
}

// Enrich runs one invocation. It never returns a nil Result and never
// panics; every failure, including a panic in a registered strategy,
// adapter or normalizer, becomes a terminal status.
func (f *Facade) Enrich(ctx context.Context, cfg *Config, in Input) (result *Result) {
	inv := &invocation{
		cfg:   cfg,
		start: time.Now(),
		stage: StageConfig,
		result: &Result{
			Status:       StatusPending,
			InvocationID: utils.NewInvocationID(),
		},
	}
	ctx = logging.ContextWith(ctx, logging.InvocationIDKey, inv.result.InvocationID)
	ctx = logging.ContextWith(ctx, logging.AssetIDKey, in.AssetID)
	inv.logger = f.logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			result = f.finish(inv, inv.stage,
				errors.InternalError(fmt.Sprintf("panic during %s stage: %v", inv.stage, r), nil), nil)
		}
	}()

	if cfg == nil {
		return f.finish(inv, StageConfig, errors.ConfigError("enrichment config is required"), nil)
	}
	copied := *cfg
	cfg = &copied
	cfg.SetDefaults()
	inv.cfg = cfg
	if err := cfg.Validate(); err != nil {
		return f.finish(inv, StageConfig, err, nil)
	}

	correlationID, err := ExtractCorrelationID(in.FileName, in.CorrelationID, cfg.CorrelationIDPattern)
	if err != nil {
		return f.finish(inv, StageConfig, errors.ConfigError(err.Error()), nil)
	}
	if correlationID == "" {
		return f.finish(inv, StageCorrelation,
			errors.MetadataNotFoundError("").WithContext("file_name", in.FileName), nil)
	}
	inv.result.CorrelationID = correlationID
	ctx = logging.ContextWith(ctx, logging.CorrelationIDKey, correlationID)
	inv.logger = f.logger.WithContext(ctx)

	strategyFactory, err := f.strategies.Get(cfg.AuthType)
	if err != nil {
		return f.finish(inv, StageConfig, err, nil)
	}
	adapterFactory, err := f.adapters.Get(cfg.AdapterType)
	if err != nil {
		return f.finish(inv, StageConfig, err, nil)
	}
	normalizerFactory, err := f.normalizers.Get(cfg.Normalizer.SourceType)
	if err != nil {
		return f.finish(inv, StageConfig, err, nil)
	}

	normCfg, conflicts, err := f.loader.Resolve(ctx, cfg.Normalizer.Config, cfg.Normalizer.ConfigRef)
	if err != nil {
		return f.finish(inv, StageConfig, err, nil)
	}
	for _, c := range conflicts {
		inv.result.ConfigConflicts = append(inv.result.ConfigConflicts, c.String())
	}

	inv.stage = StageCredentials
	authKind := f.strategies.Canonical(cfg.AuthType)
	bundle, err := f.credentials.Resolve(ctx, cfg.SecretRef, authKind)
	if err != nil {
		return f.finish(inv, StageCredentials, err, nil)
	}

	inv.stage = StageAuth
	strategy := strategyFactory(auth.Dependencies{
		HTTPClient: f.httpClient,
		TokenCache: f.tokenCache,
		Logger:     f.logger,
	})
	endpoint := auth.Endpoint{
		SecretRef: cfg.SecretRef,
		TokenURL:  cfg.AuthEndpoint,
		Config:    cfg.AuthConfig,
	}

	var authCtx *auth.AuthContext
	err = f.retry(ctx, inv, StageAuth, func() error {
		inv.result.Attempts.Auth++
		var attemptErr error
		authCtx, attemptErr = strategy.Authenticate(ctx, bundle, endpoint)
		return attemptErr
	})
	if err != nil {
		return f.finish(inv, StageAuth, err, nil)
	}

	inv.stage = StageFetch
	adapter := adapterFactory(adapters.Dependencies{
		HTTPClient:   f.httpClient,
		RateLimiters: f.limiters,
		Logger:       f.logger,
	})
	request := adapters.Request{
		Endpoint:      cfg.MetadataEndpoint,
		CorrelationID: correlationID,
		Config:        cfg.AdapterConfig,
		Strategy:      strategy,
		AuthContext:   authCtx,
	}

	var raw *canonical.Map
	err = f.retry(ctx, inv, StageFetch, func() error {
		inv.result.Attempts.Fetch++
		var attemptErr error
		raw, attemptErr = adapter.Fetch(ctx, request)
		return attemptErr
	})
	if err != nil {
		return f.finish(inv, StageFetch, err, nil)
	}

	inv.stage = StageNormalize
	normalized, err := normalizerFactory().Normalize(raw, normCfg)
	if err != nil {
		return f.finish(inv, StageNormalize, err, nil)
	}
	return f.finish(inv, StageNormalize, nil, normalized)
}

// retry runs fn under the invocation's retry policy. Only transport
// failures and timeouts are retried.
func (f *Facade) retry(ctx context.Context, inv *invocation, stage string, fn func() error) error {
	maxRetries, backoff := inv.cfg.RetryPolicy()
	policy := utils.NewRetryConfig(maxRetries, backoff)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		inv.logger.Warn("Retrying after transient failure",
			logging.String("stage", stage),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.String("error_type", string(errors.GetType(err))),
			logging.Int("http_status", errors.StatusCode(err)))
	}
	if f.retryTweak != nil {
		f.retryTweak(&policy)
	}

	return utils.RetryWithBackoff(ctx, policy, func() error {
		f.metrics.ObserveAttempt(stage)
		return fn()
	})
}

func (f *Facade) finish(inv *invocation, stage string, err error, normalized *normalizer.Metadata) *Result {
	result := inv.result
	result.Status = StatusFor(stage, err)
	result.EnrichmentStatus = result.Status
	result.Normalized = normalized
	elapsed := time.Since(inv.start)
	result.DurationMS = elapsed.Milliseconds()

	fields := []logging.Field{
		logging.String("status", string(result.Status)),
		logging.Int("auth_attempts", result.Attempts.Auth),
		logging.Int("fetch_attempts", result.Attempts.Fetch),
		logging.Duration("duration", elapsed),
	}

	if err != nil {
		result.Error = newResultError(stage, err)
		fields = append(fields,
			logging.String("stage", stage),
			logging.String("error_type", result.Error.Type))
		if result.Status == StatusError {
			inv.logger.Error("Enrichment failed", err, fields...)
		} else {
			inv.logger.Warn("Enrichment finished without metadata", append(fields, logging.Err(err))...)
		}
	} else {
		inv.logger.Info("Enrichment succeeded", fields...)
	}

	f.metrics.ObserveResult(string(result.Status), elapsed)
	return result
}
