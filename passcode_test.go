package passcode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/passcode/config"
	"github.com/tech-arch1tect/passcode/testutils"
)

func TestNewManager(t *testing.T) {
	cfg := testutils.GetTestConfig()
	cfg.OTP.Store = config.StoreMemory

	app, err := NewManager(cfg)
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))
	defer func() { assert.NoError(t, app.Stop()) }()

	assert.Nil(t, app.Server())
	code, err := app.Service().Generate(context.Background(), "user@example.com", "login")
	require.NoError(t, err)
	assert.Len(t, code, cfg.OTP.CodeLength)
}

func TestNew(t *testing.T) {
	cfg := testutils.GetTestConfig()
	cfg.OTP.Store = config.StoreMemory

	app, err := New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, app.Server())
}
