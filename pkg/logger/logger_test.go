package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger_WritesToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "app.log")
	InitLogger(Options{Level: "debug", File: file, MaxSizeMB: 1})
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	Sugar.Infow("hello", "code", "abc")
	_ = Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "abc")
	assert.Same(t, Logger, zap.L())
}

func TestInitLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	InitLogger(Options{Level: "verbose"})
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	assert.True(t, Logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, Logger.Core().Enabled(zapcore.DebugLevel))
}
