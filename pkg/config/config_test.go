package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
app:
  name: kestrel
  workspace: ./ws
providers:
  openai:
    api_key: sk-test
    enabled: true
models:
  aliases:
    planner:
      model: gpt-4o
      family: legacy
      temperature: 0.2
    executor:
      model: o3-mini
      family: reasoning
      temperature: 0.5
  retry:
    max_attempts: 3
    initial_delay: 500ms
    max_delay: 10s
engine:
  max_steps: 12
  compress_threshold: 30
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "kestrel", cfg.App.Name)
	assert.Equal(t, 3, cfg.Models.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Models.Retry.InitialDelay.Std())
	assert.Equal(t, 12, cfg.Engine.MaxSteps)
	assert.Equal(t, "reasoning", cfg.Models.Aliases["executor"].Family)

	name, provider := cfg.GetDefaultProvider()
	assert.Equal(t, "openai", name)
	assert.Equal(t, "sk-test", provider.APIKey)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: kestrel\n"))
	require.NoError(t, err)

	// Unspecified sections fall back to built-in defaults.
	assert.Equal(t, 4, cfg.Models.Retry.MaxAttempts)
	assert.Equal(t, 15, cfg.Engine.MaxSteps)
	assert.Equal(t, 40, cfg.Engine.CompressThreshold)
	assert.True(t, cfg.Engine.Clarify)
	assert.Equal(t, "kestrel.db", cfg.Memory.Path)
}

func TestLoadRejectsBadAlias(t *testing.T) {
	_, err := Load(writeConfig(t, `
models:
  aliases:
    planner:
      model: gpt-4o
      family: quantum
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown family")
}

func TestLoadRejectsMissingModel(t *testing.T) {
	_, err := Load(writeConfig(t, `
models:
  aliases:
    planner:
      family: legacy
`))
	require.Error(t, err)
}

func TestGetGateway(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
gateways:
  telegram:
    token: tg-token
    enabled: true
  discord:
    token: dc-token
    enabled: false
`))
	require.NoError(t, err)

	tg, ok := cfg.GetGateway("telegram")
	require.True(t, ok)
	assert.Equal(t, "tg-token", tg.Token)

	_, ok = cfg.GetGateway("discord")
	assert.False(t, ok)
}
