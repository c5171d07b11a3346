package handlers

import (
	"errors"

	"github.com/tech-arch1tect/passcode/config"
	"github.com/tech-arch1tect/passcode/middleware/ratelimit"
	"github.com/tech-arch1tect/passcode/openapi"
	"github.com/tech-arch1tect/passcode/server"
	"github.com/tech-arch1tect/passcode/services/logging"
	"github.com/tech-arch1tect/passcode/services/mail"
	"github.com/tech-arch1tect/passcode/services/otp"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(ProvideDeliverer, ProvideOTPHandler),
	fx.Invoke(registerRoutes),
)

type DelivererParams struct {
	fx.In

	Config *config.Config
	Mail   *mail.Service    `optional:"true"`
	Logger *logging.Service `optional:"true"`
}

// ProvideDeliverer sends codes by mail when mail is enabled and uses
// LogDeliverer when it is disabled.
func ProvideDeliverer(p DelivererParams) (Deliverer, error) {
	if p.Config.Mail.Enabled {
		if p.Mail == nil {
			return nil, errors.New("mail is enabled but no mail service is configured")
		}
		return p.Mail, nil
	}
	p.Logger.Warn("mail disabled, issued codes are not delivered")
	return NewLogDeliverer(p.Logger), nil
}

func ProvideOTPHandler(service *otp.Service, deliverer Deliverer, logger *logging.Service) *OTPHandler {
	return NewOTPHandler(service, deliverer, logger)
}

type RouteParams struct {
	fx.In

	Server  *server.Server
	Handler *OTPHandler
	Limiter *ratelimit.Limiter `optional:"true"`
	API     *openapi.OpenAPI   `optional:"true"`
}

func registerRoutes(p RouteParams) {
	p.Handler.Register(p.Server.Group("/otp", p.Limiter.Middleware()))
	if p.API != nil {
		p.Handler.Document(p.API)
	}
}
