// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("MCP_PROXY_URL", "")
	t.Setenv("MCP_PROXY_API_KEY", "")
	t.Setenv("OPENROUTER_MODEL", "")
	t.Setenv("CALORIE_LOG_TIMEZONE", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_DB", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "0.0.0.0:8011", cfg.Addr())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("MCP_PROXY_URL", "")
	t.Setenv("MCP_PROXY_API_KEY", "")
	t.Setenv("OPENROUTER_MODEL", "")
	t.Setenv("CALORIE_LOG_TIMEZONE", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
storage:
  driver: redis
  redis:
    addr: localhost:6379
    key_prefix: "cl:"
gateway:
  timeout: 5s
  requests_per_second: 2
ledger:
  timezone: America/New_York
  persist_timeout: 750ms
mqtt:
  enabled: true
  broker: localhost:1883
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, "cl:", cfg.Storage.Redis.KeyPrefix)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 2.0, cfg.Gateway.RequestsPerSecond)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", cfg.Gateway.Model)
	assert.Equal(t, "America/New_York", cfg.Ledger.Timezone)
	assert.Equal(t, 750*time.Millisecond, cfg.Ledger.PersistTimeout)
	assert.True(t, cfg.MQTT.Enabled)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MCP_PROXY_URL", "http://proxy:1234")
	t.Setenv("MCP_PROXY_API_KEY", "k")
	t.Setenv("OPENROUTER_MODEL", "meta/llama")
	t.Setenv("CALORIE_LOG_TIMEZONE", "Asia/Tokyo")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://proxy:1234", cfg.Gateway.ProxyURL)
	assert.Equal(t, "k", cfg.Gateway.APIKey)
	assert.Equal(t, "meta/llama", cfg.Gateway.Model)
	assert.Equal(t, "Asia/Tokyo", cfg.Ledger.Timezone)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.Driver = "redis"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Ledger.PersistTimeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("MCP_PROXY_URL", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Storage.Path = "/tmp/x.db"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", loaded.Storage.Path)
	assert.Equal(t, 20*time.Second, loaded.Gateway.Timeout)
	assert.Equal(t, 5*time.Second, loaded.Ledger.PersistTimeout)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
