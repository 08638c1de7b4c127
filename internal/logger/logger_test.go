package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "booking.log")

	log, err := New(config.LogConfig{File: path})
	require.NoError(t, err)

	log.Info("hello")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestNew_DebugLevel(t *testing.T) {
	log, err := New(config.LogConfig{Debug: true})
	require.NoError(t, err)
	assert.NotNil(t, log.Check(zap.DebugLevel, "debug enabled"))
}
