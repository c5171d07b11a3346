package otp

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/passcode/config"
	"github.com/tech-arch1tect/passcode/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(ProvideService),
	fx.Provide(ProvideWorker),
	fx.Invoke(func(*Worker) {}),
)

type StoreParams struct {
	fx.In

	Config *config.Config
	DB     *gorm.DB              `optional:"true"`
	Redis  redis.UniversalClient `optional:"true"`
	Logger *logging.Service      `optional:"true"`
}

func ProvideStore(p StoreParams) (Store, error) {
	switch p.Config.OTP.Store {
	case config.StoreDatabase:
		if p.DB == nil {
			return nil, errors.New("otp database store requires a database connection")
		}
		return NewGormStore(p.DB), nil
	case config.StoreRedis:
		if p.Redis == nil {
			return nil, errors.New("otp redis store requires a redis client")
		}
		return NewRedisStore(p.Redis, p.Config.Redis.Prefix), nil
	case config.StoreMemory:
		if p.Logger != nil {
			p.Logger.Warn("using in-memory otp store; outstanding codes are lost on restart")
		}
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported OTP store: %s", p.Config.OTP.Store)
	}
}

func ProvideService(cfg *config.Config, store Store, logger *logging.Service) (*Service, error) {
	service, err := NewService(cfg.OTP, store, WithObserver(NewLoggingObserver(logger)))
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("initializing otp service",
			zap.String("store", cfg.OTP.Store),
			zap.Int("code_length", cfg.OTP.CodeLength),
			zap.Duration("expiry", cfg.OTP.Expiry),
			zap.Duration("retention", cfg.OTP.Retention))
	}

	return service, nil
}

func ProvideWorker(lc fx.Lifecycle, cfg *config.Config, service *Service, logger *logging.Service) *Worker {
	worker := NewWorker(service, cfg.OTP.CleanupInterval, logger)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			worker.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return worker.Stop(ctx)
		},
	})

	return worker
}
