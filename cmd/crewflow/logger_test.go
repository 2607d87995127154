package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/crewflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crewflow.log")
	logger := initLogger(config.LogConfig{
		Level:       "warn",
		Format:      "json",
		OutputPaths: []string{path},
	})

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger.Warn("venue not found")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"venue not found"`)
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestInitLogger_BadLevel(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "loud", Format: "console"})
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
