package logging

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter_JSONFormat(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log-*.json")
	assert.NoError(t, err)
	defer f.Close()

	logger := NewWithWriter(f, Config{Level: "debug", Format: "json"})
	logger.Info("hello", "key", "value")

	data, err := os.ReadFile(f.Name())
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestNewWithWriter_TextFormatIsDefault(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log-*.txt")
	assert.NoError(t, err)
	defer f.Close()

	logger := NewWithWriter(f, Config{})
	logger.Info("hello")

	data, err := os.ReadFile(f.Name())
	assert.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
}

func TestLevelFromString_UnrecognizedDefaultsToInfo(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log-*.txt")
	assert.NoError(t, err)
	defer f.Close()

	logger := NewWithWriter(f, Config{Level: "nonsense"})
	logger.Debug("should not appear")
	logger.Info("should appear")

	data, err := os.ReadFile(f.Name())
	assert.NoError(t, err)
	assert.NotContains(t, string(data), "should not appear")
	assert.Contains(t, string(data), "should appear")
}

func TestForMode_JSONModeForcesJSONFormat(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log-*.json")
	assert.NoError(t, err)
	defer f.Close()

	cfg := Config{Format: "text"}
	cfg.Format = "text"
	logger := ForMode(cfg, true)
	assert.NotNil(t, logger)
	assert.IsType(t, &slog.JSONHandler{}, logger.Handler())
}
