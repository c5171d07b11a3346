package server

import (
	"context"
	"time"

	"github.com/tech-arch1tect/passcode/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

// startupGrace is how long OnStart waits for an immediate listen error.
const startupGrace = 100 * time.Millisecond

func registerLifecycle(lc fx.Lifecycle, shutdowner fx.Shutdowner, srv *Server, logger *logging.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			errCh := make(chan error, 1)
			go func() {
				defer close(errCh)
				if err := srv.Start(); err != nil {
					logger.Error("http server stopped", zap.Error(err))
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(startupGrace):
			}

			go func() {
				if err := <-errCh; err != nil {
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
