package main

import (
	"os"

	"github.com/tech-arch1tect/passcode"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(zap.NewProduction))
}

// run returns the process exit code. Failures before the app logger exists
// go through a bootstrap logger.
func run(newBootstrap func(...zap.Option) (*zap.Logger, error)) int {
	bootstrap, err := newBootstrap()
	if err != nil {
		bootstrap = zap.NewNop()
	}
	defer func() { _ = bootstrap.Sync() }()

	app, err := passcode.New(nil)
	if err != nil {
		bootstrap.Error("failed to build application", zap.Error(err))
		return 1
	}

	if err := app.Run(); err != nil {
		app.Logger().Error("application stopped with error", zap.Error(err))
		_ = app.Logger().Sync()
		return 1
	}
	return 0
}
