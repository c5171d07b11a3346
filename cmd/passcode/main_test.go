package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRun_BuildFailureIsLogged(t *testing.T) {
	t.Setenv("OTP_CODE_LENGTH", "0")

	core, logs := observer.New(zapcore.DebugLevel)
	code := run(func(...zap.Option) (*zap.Logger, error) { return zap.New(core), nil })

	assert.Equal(t, 1, code)
	entries := logs.FilterMessage("failed to build application").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Contains(t, entries[0].ContextMap()["error"], "OTP code length")
	}
}
