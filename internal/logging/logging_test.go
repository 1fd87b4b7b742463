package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLevel(t *testing.T) {
	prev := Level()
	defer level.SetLevel(prev)

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, Level())

	require.NoError(t, SetLevel("error"))
	assert.Equal(t, zapcore.ErrorLevel, Level())

	assert.Error(t, SetLevel("chatty"))
	assert.Equal(t, zapcore.ErrorLevel, Level())
}

func TestLogger_Named(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	mu.RLock()
	prev := base
	mu.RUnlock()
	SetLogger(zap.New(core))
	defer SetLogger(prev)

	Logger("correlate").Debugw("dropped completion", "key", 42)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "correlate", entries[0].LoggerName)
	assert.Equal(t, "dropped completion", entries[0].Message)
	assert.Equal(t, int64(42), entries[0].ContextMap()["key"])
}
