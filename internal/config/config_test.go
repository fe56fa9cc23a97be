package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Backends.Preference)
	assert.Equal(t, "sk-from-env", cfg.Backends.Cloud.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Backends.Cloud.Model)
	assert.Equal(t, 10*time.Second, cfg.Backends.Cloud.Timeout)
	assert.True(t, cfg.Backends.Cloud.Streaming)
	assert.Equal(t, "http://localhost:11434", cfg.Backends.Local.Endpoint)
	assert.Equal(t, "llama3.2:3b", cfg.Backends.Local.Model)
	assert.Equal(t, 30*time.Second, cfg.Backends.Local.Timeout)
	assert.Equal(t, 150, cfg.Backends.Local.NumPredict)

	assert.True(t, cfg.Breaker.Enabled)
	assert.Equal(t, 3, cfg.Breaker.CloudFailureThreshold)
	assert.Equal(t, 2, cfg.Breaker.LocalFailureThreshold)
	assert.Equal(t, time.Minute, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, 2, cfg.Breaker.SuccessThreshold)

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 100, cfg.Cache.MaxSize)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)

	assert.True(t, cfg.Latency.Enabled)
	assert.Equal(t, 50, cfg.Latency.Window)
	assert.Equal(t, 3*time.Second, cfg.Latency.CloudSlowThreshold)
	assert.Equal(t, 10, cfg.Latency.MinSamples)

	assert.False(t, cfg.Race.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Race.TriggerThreshold)
	assert.Equal(t, 5*time.Second, cfg.Race.LoserTimeout)

	assert.True(t, cfg.Transports.HTTP.Enabled)
	assert.Equal(t, 8080, cfg.Transports.HTTP.Port)
	assert.False(t, cfg.Transports.MQTT.Enabled)
	assert.Equal(t, "turnout/ask", cfg.Transports.MQTT.AskTopic)
	assert.Equal(t, "turnout/answer", cfg.Transports.MQTT.AnswerTopic)
	assert.Equal(t, 8081, cfg.Server.HealthPort)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "turnout.yaml")
	yaml := `
backends:
  preference: local_only
  cloud:
    timeout: 2s
cache:
  max_size: 10
race:
  enabled: true
  trigger_threshold: 1500ms
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "local_only", cfg.Backends.Preference)
	assert.Equal(t, 2*time.Second, cfg.Backends.Cloud.Timeout)
	assert.Equal(t, 10, cfg.Cache.MaxSize)
	assert.True(t, cfg.Race.Enabled)
	assert.Equal(t, 1500*time.Millisecond, cfg.Race.TriggerThreshold)

	// Untouched sections keep their defaults.
	assert.Equal(t, "llama3.2:3b", cfg.Backends.Local.Model)
	assert.True(t, cfg.Cache.Enabled)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TURNOUT_CACHE_ENABLED", "false")
	t.Setenv("TURNOUT_BACKENDS_LOCAL_MODEL", "qwen2.5:1.5b")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "qwen2.5:1.5b", cfg.Backends.Local.Model)
}

func TestInvalidPreferenceRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "turnout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backends:\n  preference: both\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backends.preference")
}

func TestInvalidCacheSizeRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "turnout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  max_size: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.max_size")
}

func TestResolveEnvRef(t *testing.T) {
	t.Setenv("TURNOUT_TEST_SECRET", "hunter2")

	assert.Equal(t, "hunter2", resolveEnvRef("${TURNOUT_TEST_SECRET}"))
	assert.Equal(t, "literal-key", resolveEnvRef("literal-key"))
	assert.Equal(t, "", resolveEnvRef("${TURNOUT_TEST_UNSET_VAR}"))
}
