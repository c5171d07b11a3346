package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/passcode/config"
	"github.com/tech-arch1tect/passcode/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var RedisModule = fx.Options(
	fx.Provide(ProvideRedisFx),
)

func ProvideRedis(ctx context.Context, cfg config.RedisConfig, logger *logging.Service) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if logger != nil {
			logger.Error("failed to connect to redis", zap.Error(err), zap.String("addr", opts.Addr))
		}
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if logger != nil {
		logger.Info("redis connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	}

	return client, nil
}

func ProvideRedisFx(lc fx.Lifecycle, cfg *config.Config, logger *logging.Service) (redis.UniversalClient, error) {
	client, err := ProvideRedis(context.Background(), cfg.Redis, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return client, nil
}
