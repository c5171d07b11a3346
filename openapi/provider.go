package openapi

import (
	"net/http"

	"github.com/tech-arch1tect/passcode/config"
	"github.com/tech-arch1tect/passcode/server"
	"go.uber.org/fx"
)

const APIVersion = "1.0.0"

var Module = fx.Options(
	fx.Provide(ProvideOpenAPI),
	fx.Invoke(registerRoutes),
)

func ProvideOpenAPI(cfg *config.Config) *OpenAPI {
	return New(cfg.App.Name+" API", APIVersion).
		Description("Issues and verifies one-time passcodes bound to an email address and a purpose.").
		Server(cfg.App.URL, cfg.App.Name).
		Tag("otp", "One-time passcode lifecycle").
		Tag("meta", "Service metadata")
}

func registerRoutes(srv *server.Server, api *OpenAPI) {
	api.Register(srv.Echo())

	api.Document(http.MethodGet, "/healthz").
		Summary("Liveness probe").
		Tags("meta").
		Response(http.StatusOK, map[string]string{"status": "ok"}, "Service is up").
		Build()
}
