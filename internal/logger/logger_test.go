package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFieldsAreStructured(t *testing.T) {

	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	Info("callback completed", map[string]any{
		"user_id": "u-1",
		"error":   errors.New("boom"),
	})

	entries := logs.All()
	require.Len(t, entries, 1)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "callback completed", entries[0].Message)
	assert.Equal(t, "u-1", ctx["user_id"])
	assert.Equal(t, "boom", ctx["error"])

}

func TestParseLevel(t *testing.T) {

	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))

}
