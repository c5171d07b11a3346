package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/passcode/config"
	"github.com/tech-arch1tect/passcode/handlers"
	"github.com/tech-arch1tect/passcode/testutils"
	"go.uber.org/fx"
)

type capturingDeliverer struct {
	mu    sync.Mutex
	codes []string
}

func (d *capturingDeliverer) SendCode(_ context.Context, _, _, code string, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codes = append(d.codes, code)
	return nil
}

func (d *capturingDeliverer) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.codes) == 0 {
		return ""
	}
	return d.codes[len(d.codes)-1]
}

func startApp(t *testing.T, app *App) {
	t.Helper()
	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() { assert.NoError(t, app.Stop()) })
}

func TestApp_DatabaseStoreWithoutHTTP(t *testing.T) {
	cfg := testutils.GetTestConfig()

	app, err := NewApp().WithConfig(cfg).WithoutHTTP().Build()
	require.NoError(t, err)
	startApp(t, app)

	assert.Nil(t, app.Server())
	assert.Nil(t, app.Echo())
	assert.Same(t, cfg, app.Config())
	assert.NotNil(t, app.Logger())
	require.NotNil(t, app.Service())

	ctx := context.Background()
	code, err := app.Service().Generate(ctx, "user@example.com", "login")
	require.NoError(t, err)

	ok, err := app.Service().Validate(ctx, "user@example.com", code, "login")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = app.Service().Validate(ctx, "user@example.com", code, "login")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApp_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testutils.GetTestConfig()
	cfg.OTP.Store = config.StoreRedis
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"

	app, err := NewApp().WithConfig(cfg).WithoutHTTP().Build()
	require.NoError(t, err)
	startApp(t, app)

	ctx := context.Background()
	code, err := app.Service().Generate(ctx, "user@example.com", "login")
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())

	ok, err := app.Service().Validate(ctx, "user@example.com", code, "login")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestApp_RedisUnavailable(t *testing.T) {
	cfg := testutils.GetTestConfig()
	cfg.OTP.Store = config.StoreRedis
	cfg.Redis.URL = "redis://127.0.0.1:1/0"

	app, err := NewApp().WithConfig(cfg).WithoutHTTP().Build()

	assert.Nil(t, app)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestApp_HTTP(t *testing.T) {
	cfg := testutils.GetTestConfig()
	cfg.OTP.Store = config.StoreMemory
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Rate = 100

	deliverer := &capturingDeliverer{}
	app, err := NewApp().
		WithConfig(cfg).
		WithFxOptions(fx.Decorate(func(handlers.Deliverer) handlers.Deliverer { return deliverer })).
		Build()
	require.NoError(t, err)
	startApp(t, app)

	e := app.Echo()
	require.NotNil(t, e)

	paths := make(map[string]bool)
	for _, route := range e.Routes() {
		paths[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{"GET /healthz", "GET /openapi.json", "GET /openapi.yaml", "POST /otp/issue", "POST /otp/verify"} {
		assert.True(t, paths[want], "missing route %s", want)
	}

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/otp/issue", `{"email":"user@example.com","purpose":"login"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))

	code := deliverer.last()
	require.Len(t, code, cfg.OTP.CodeLength)

	rec = post("/otp/verify", `{"email":"user@example.com","purpose":"login","code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var verify handlers.VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verify))
	assert.True(t, verify.Valid)

	doc := httptest.NewRecorder()
	e.ServeHTTP(doc, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, doc.Code)
	assert.Contains(t, doc.Body.String(), "/otp/verify")
}

func TestApp_Run(t *testing.T) {
	cfg := testutils.GetTestConfig()
	cfg.OTP.Store = config.StoreMemory

	app, err := NewApp().
		WithConfig(cfg).
		WithoutHTTP().
		WithFxOptions(fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						time.Sleep(50 * time.Millisecond)
						_ = shutdowner.Shutdown(fx.ExitCode(3))
					}()
					return nil
				},
			})
		})).
		Build()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run() }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exited with code 3")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
}
