package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitkeep/fitdb/internal/config"
)

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fitdb.log")
	cfg := config.Default().Log
	cfg.File = path

	logger, closer, err := New(cfg)
	require.NoError(t, err)
	logger.Info("hello from test")
	logger.Debug("below level")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello from test"`)
	assert.NotContains(t, string(data), "below level")
}

func TestNewRejectsBadLevel(t *testing.T) {
	cfg := config.Default().Log
	cfg.Level = "chatty"
	_, _, err := New(cfg)
	assert.Error(t, err)
}

func TestNewStderrOnly(t *testing.T) {
	cfg := config.Default().Log
	cfg.Development = true
	logger, closer, err := New(cfg)
	require.NoError(t, err)
	logger.Info("stderr only")
	assert.NoError(t, closer())
}
