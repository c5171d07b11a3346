package app

import (
	"errors"
	"fmt"

	"github.com/tech-arch1tect/passcode/config"
	"github.com/tech-arch1tect/passcode/database"
	"github.com/tech-arch1tect/passcode/handlers"
	"github.com/tech-arch1tect/passcode/middleware/ratelimit"
	"github.com/tech-arch1tect/passcode/openapi"
	"github.com/tech-arch1tect/passcode/server"
	"github.com/tech-arch1tect/passcode/services/logging"
	"github.com/tech-arch1tect/passcode/services/mail"
	"github.com/tech-arch1tect/passcode/services/otp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

type AppBuilder struct {
	config    *config.Config
	http      bool
	fxOptions []fx.Option
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		http:      true,
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

// WithoutHTTP builds the passcode manager and its cleanup worker only, for
// embedding in a host process that owns its own transport.
func (b *AppBuilder) WithoutHTTP() *AppBuilder {
	b.http = false
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	if b.config == nil {
		if err := b.WithAutoConfig().validate(); err != nil {
			return nil, err
		}
	}

	app := &App{config: b.config}

	options := b.buildFxOptions()
	options = append(options, fx.Populate(&app.logger, &app.service))
	if b.http {
		options = append(options, fx.Populate(&app.server))
	}

	fxApp := fx.New(options...)
	if err := fxApp.Err(); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	app.fx = fxApp

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, errors.New(msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(b.errors...))
	}
	return nil
}

func (b *AppBuilder) buildFxOptions() []fx.Option {
	cfg := b.config

	options := []fx.Option{
		config.NewProvider(cfg),
		logging.Module,
		fx.WithLogger(fxLogger(cfg)),
	}

	if cfg.OTP.Store == config.StoreDatabase {
		options = append(options,
			database.Module,
			fx.Supply(database.WithModels(&otp.Record{})),
		)
	}
	if b.needsRedis() {
		options = append(options, database.RedisModule)
	}

	options = append(options, otp.Module)

	if b.http {
		if cfg.Mail.Enabled {
			options = append(options, mail.Module)
		}
		options = append(options,
			server.Module,
			ratelimit.Module,
			openapi.Module,
			handlers.Module,
		)
	}

	return append(options, b.fxOptions...)
}

func (b *AppBuilder) needsRedis() bool {
	if b.config.OTP.Store == config.StoreRedis {
		return true
	}
	return b.http && b.config.RateLimit.Enabled && b.config.RateLimit.Store == config.StoreRedis
}

// fxLogger routes fx's own events through zap at debug level and drops them
// otherwise.
func fxLogger(cfg *config.Config) func(*logging.Service) fxevent.Logger {
	return func(logger *logging.Service) fxevent.Logger {
		if cfg.Log.Level != string(logging.Debug) || logger.Logger() == nil {
			return fxevent.NopLogger
		}
		return &fxevent.ZapLogger{Logger: logger.Logger()}
	}
}
