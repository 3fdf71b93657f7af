package app

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"metadata-enricher/internal/auth"
	"metadata-enricher/internal/common/logging"
	"metadata-enricher/internal/config"
	"metadata-enricher/internal/credentials"
	"metadata-enricher/internal/enrichment"
	"metadata-enricher/internal/metrics"
	"metadata-enricher/internal/normalizer"
)

// App holds the long-lived dependencies shared by every invocation.
type App struct {
	Config      *config.Config
	Store       credentials.Store
	TokenCache  *auth.TokenCache
	RedisClient *redis.Client
	Metrics     *metrics.Recorder
	Registry    *prometheus.Registry
	Facade      *enrichment.Facade
	Logger      logging.Logger
}

// New builds the application from process configuration. store, when
// non-nil, replaces the configured secret backend.
func New(ctx context.Context, cfg *config.Config, store credentials.Store) (*App, error) {
	app := &App{
		Config: cfg,
		Store:  store,
		Logger: logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
	}

	if app.Store == nil {
		if err := app.initializeSecrets(ctx); err != nil {
			return nil, err
		}
	}

	if err := app.initializeTokenCache(ctx); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.initializeMetrics()

	provider := credentials.NewProvider(app.Store, cfg.SecretNamespacePrefix, app.Logger)
	app.Facade = enrichment.New(provider,
		enrichment.WithTokenCache(app.TokenCache),
		enrichment.WithMetrics(app.Metrics),
		enrichment.WithLoader(normalizer.NewLoader(
			normalizer.WithAWSSettings(cfg.AWSSettings()),
			normalizer.WithLogger(app.Logger),
		)),
		enrichment.WithLogger(app.Logger),
	)
	return app, nil
}

func (app *App) initializeSecrets(ctx context.Context) error {
	switch app.Config.SecretBackend {
	case config.SecretBackendVault:
		store, err := credentials.NewVaultStoreFromAddress(app.Config.VaultAddress, app.Config.VaultToken, app.Config.VaultMount)
		if err != nil {
			return err
		}
		app.Store = store
	case config.SecretBackendEnv:
		app.Store = credentials.NewEnvStore()
	default:
		store, err := credentials.NewSecretsManagerStoreFromSettings(ctx, app.Config.AWSSettings())
		if err != nil {
			return err
		}
		app.Store = store
	}

	app.Logger.Info("Secrets: configured", logging.String("backend", app.Store.Name()))
	return nil
}

func (app *App) initializeMetrics() {
	if !app.Config.MetricsEnabled {
		return
	}
	app.Registry = prometheus.NewRegistry()
	app.Metrics = metrics.NewRecorder(app.Registry)
}

// Cleanup releases held connections.
func (app *App) Cleanup() {
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			app.Logger.Warn("Failed to close redis client", logging.Err(err))
		}
	}
}
