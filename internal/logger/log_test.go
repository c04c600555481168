package logger

import (
	"io"
	"testing"

	"realtime-chart-engine/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_FieldsAndLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("frame", NewField("kind", "pong"))
	l.With(NewField("symbol", "CME_MINI:MNQ1!")).Info("subscribed")
	l.Warn("slow subscriber")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "frame", entries[0].Message)
	assert.Equal(t, "pong", entries[0].ContextMap()["kind"])
	assert.Equal(t, "CME_MINI:MNQ1!", entries[1].ContextMap()["symbol"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}

func TestLogger_ErrorStack(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	l := New(zap.New(core))

	l.Error(apperr.Upstream(io.EOF, "fetch series"), NewField("symbol", "X"))
	l.Error(nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "fetch series: EOF", entries[0].Message)
	assert.NotEmpty(t, entries[0].Stack)
}

func TestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, Level("DEBUG").zapLevel())
	assert.Equal(t, zapcore.WarnLevel, WarnLevel.zapLevel())
	assert.Equal(t, zapcore.InfoLevel, Level("verbose").zapLevel())
}
