package app

import (
	"context"

	"github.com/go-redis/redis/v8"

	"metadata-enricher/internal/auth"
	"metadata-enricher/internal/common/cache"
	"metadata-enricher/internal/common/errors"
	"metadata-enricher/internal/common/logging"
	"metadata-enricher/internal/config"
)

func (app *App) initializeTokenCache(ctx context.Context) error {
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Type = cache.Type(app.Config.TokenCache)

	if app.Config.TokenCache == config.TokenCacheRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     app.Config.RedisAddress,
			Password: app.Config.RedisPassword,
			DB:       app.Config.RedisDBNumber(),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return errors.ConfigError("failed to connect to redis").WithContext("address", app.Config.RedisAddress)
		}
		app.RedisClient = client
		cacheCfg.RedisClient = client
	}

	store, err := cache.New(cacheCfg)
	if err != nil {
		return errors.ConfigError(err.Error())
	}
	if store == nil {
		app.Logger.Info("Token cache: disabled")
		return nil
	}

	app.TokenCache = auth.NewTokenCache(store, app.Logger)
	app.Logger.Info("Token cache: enabled", logging.String("backend", app.Config.TokenCache))
	return nil
}
