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
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
	assert.Equal(t, "registry.events", cfg.NATS.SubjectPrefix)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen: ":9090"
database:
  driver: postgres
  dsn: "host=db user=registry dbname=registry"
redis:
  addr: "redis:6379"
rate_limit:
  enabled: true
  max_requests: 10
  window: 30s
lifecycle:
  disallow_deprecated_to_deleted: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 10, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window.Std())
	assert.True(t, cfg.Lifecycle.DisallowDeprecatedToDeleted)
	// Untouched sections keep their defaults.
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL.Std())
	assert.Equal(t, 2*time.Second, cfg.Events.PollInterval.Std())
}

func TestLoadRejectsBadDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: oracle\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestLoadRejectsBadRateLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit:\n  enabled: true\n  max_requests: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_requests")
}
