package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile_FallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, 8, cfg.Loop.MaxRounds)
	assert.Equal(t, "./.push/sessions", cfg.Session.Dir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_NoPath_UsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
}

func TestLoad_ParsesYAMLAndExpandsEnv(t *testing.T) {
	t.Setenv("PUSH_TEST_API_KEY", "sk-from-env")

	path := filepath.Join(t.TempDir(), "push.yaml")
	contents := `
provider:
  name: anthropic
  model: claude-opus-4-20250514
  api_key: ${PUSH_TEST_API_KEY}
loop:
  max_rounds: 12
session:
  dir: /tmp/push-sessions
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4-20250514", cfg.Provider.Model)
	assert.Equal(t, "sk-from-env", cfg.Provider.APIKey)
	assert.Equal(t, 12, cfg.Loop.MaxRounds)
	assert.Equal(t, "/tmp/push-sessions", cfg.Session.Dir)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "push.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  nmae: anthropic\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsMultiDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "push.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  name: anthropic\n---\nprovider:\n  name: ollama\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesBeatFileAndDefaults(t *testing.T) {
	t.Setenv("PUSH_PROVIDER", "ollama")
	t.Setenv("PUSH_MODEL", "llama3")
	t.Setenv("PUSH_MAX_ROUNDS", "20")
	t.Setenv("PUSH_LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "push.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  name: anthropic\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider.Name)
	assert.Equal(t, "llama3", cfg.Provider.Model)
	assert.Equal(t, 20, cfg.Loop.MaxRounds)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_AnthropicAPIKeyEnv_OnlyFillsWhenEmpty(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")

	path := filepath.Join(t.TempDir(), "push.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  api_key: sk-ant-file\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-file", cfg.Provider.APIKey, "file-configured key wins over ANTHROPIC_API_KEY fallback")
}

func TestLoad_PushAPIKeyEnv_HardOverride(t *testing.T) {
	t.Setenv("PUSH_API_KEY", "sk-push-env")

	path := filepath.Join(t.TempDir(), "push.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  api_key: sk-ant-file\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-push-env", cfg.Provider.APIKey)
}

func TestApplyDefaults_FillsTimeoutsWhenZero(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, 180*time.Second, cfg.Loop.RoundTimeout)
}

func TestClampMaxRounds(t *testing.T) {
	assert.Equal(t, 1, ClampMaxRounds(0))
	assert.Equal(t, 1, ClampMaxRounds(-5))
	assert.Equal(t, 30, ClampMaxRounds(100))
	assert.Equal(t, 15, ClampMaxRounds(15))
}
