package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nijaru/interview-feedback/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesRotatingFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	cfg := config.Default().Log
	cfg.Dir = dir
	cfg.Level = "warn"

	logger, closer, err := New(cfg, false)
	require.NoError(t, err)

	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger.WithField("component", "test").Warn("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestNewDebugAndBadLevel(t *testing.T) {
	cfg := config.Default().Log
	cfg.Dir = t.TempDir()
	cfg.Level = "loud"

	logger, closer, err := New(cfg, true)
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}
