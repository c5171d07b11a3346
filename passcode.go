// Package passcode issues and verifies short numeric one-time passcodes
// bound to an email address and a purpose.
package passcode

import (
	"github.com/tech-arch1tect/passcode/app"
	"github.com/tech-arch1tect/passcode/config"
)

type App = app.App

// New builds the full HTTP service. A nil cfg is loaded from the
// environment.
func New(cfg *config.Config) (*App, error) {
	builder := app.NewApp()
	if cfg != nil {
		builder.WithConfig(cfg)
	}
	return builder.Build()
}

// NewManager builds the passcode manager and cleanup worker without the
// HTTP transport.
func NewManager(cfg *config.Config) (*App, error) {
	builder := app.NewApp().WithoutHTTP()
	if cfg != nil {
		builder.WithConfig(cfg)
	}
	return builder.Build()
}
