package app

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/passcode/config"
	"github.com/tech-arch1tect/passcode/server"
	"github.com/tech-arch1tect/passcode/services/logging"
	"github.com/tech-arch1tect/passcode/services/otp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultStopTimeout = 30 * time.Second

type App struct {
	fx      *fx.App
	config  *config.Config
	logger  *logging.Service
	service *otp.Service
	server  *server.Server
}

func (a *App) Start(ctx context.Context) error {
	return a.fx.Start(ctx)
}

// Run starts the application and blocks until SIGINT, SIGTERM or an fx
// shutdown request, then stops it. A non-zero shutdown exit code is
// returned as an error.
func (a *App) Run() error {
	startCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	sig := <-a.fx.Wait()
	source := "shutdowner"
	if sig.Signal != nil {
		source = sig.Signal.String()
	}
	a.logger.Info("shutdown requested", zap.String("source", source), zap.Int("exit_code", sig.ExitCode))

	if err := a.Stop(); err != nil {
		return err
	}
	if sig.ExitCode != 0 {
		return fmt.Errorf("application exited with code %d", sig.ExitCode)
	}
	return nil
}

func (a *App) Stop() error {
	timeout := a.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.fx.Stop(ctx); err != nil {
		a.logger.Error("failed to stop application gracefully", zap.Error(err))
		return fmt.Errorf("failed to stop application: %w", err)
	}
	return nil
}

func (a *App) Service() *otp.Service {
	return a.service
}

// Server is nil when the app was built WithoutHTTP.
func (a *App) Server() *server.Server {
	return a.server
}

func (a *App) Echo() *echo.Echo {
	if a.server == nil {
		return nil
	}
	return a.server.Echo()
}

func (a *App) Logger() *logging.Service {
	return a.logger
}

func (a *App) Config() *config.Config {
	return a.config
}
