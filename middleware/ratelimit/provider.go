package ratelimit

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/passcode/config"
	"github.com/tech-arch1tect/passcode/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(ProvideLimiter),
)

// Limiter hands out the configured middleware, or a pass-through when rate
// limiting is disabled.
type Limiter struct {
	enabled bool
	cfg     *Config
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *Limiter) Middleware() echo.MiddlewareFunc {
	if !l.Enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return Middleware(l.cfg)
}

type Params struct {
	fx.In

	Config *config.Config
	Redis  redis.UniversalClient `optional:"true"`
	Logger *logging.Service      `optional:"true"`
}

func ProvideLimiter(p Params) (*Limiter, error) {
	rl := p.Config.RateLimit
	if !rl.Enabled {
		return &Limiter{}, nil
	}

	var store Store
	switch rl.Store {
	case config.StoreRedis:
		if p.Redis == nil {
			return nil, errors.New("redis rate limit store requires a redis client")
		}
		store = NewRedisStore(p.Redis, p.Config.Redis.Prefix+":")
	default:
		store = NewMemoryStore()
	}

	if p.Logger != nil {
		p.Logger.Info("rate limiting enabled",
			zap.String("store", rl.Store),
			zap.Int("rate", rl.Rate),
			zap.Duration("period", rl.Period))
	}

	return &Limiter{
		enabled: true,
		cfg: &Config{
			Store:  store,
			Rate:   rl.Rate,
			Period: rl.Period,
			Logger: p.Logger,
		},
	}, nil
}
