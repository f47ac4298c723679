package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scheduler.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again, "the written file reads back to the same config")
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
vendor:
  app_id: app
  app_key: key
  app_secret: secret
  tables:
    shifts: custom
refresh:
  cooldown: 2s
cache:
  employees_ttl: 5m
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "custom", cfg.Vendor.Tables.Shifts)
	assert.Equal(t, "eykNOvrDY3", cfg.Vendor.Tables.Availability)
	assert.Equal(t, 2*time.Second, cfg.Refresh.Cooldown)
	assert.Equal(t, 5*time.Minute, cfg.Cache.EmployeesTTL)
	assert.Equal(t, time.Hour, cfg.Cache.TagsTTL)
	assert.Equal(t, 3, cfg.Cache.Retries)
	assert.Equal(t, 7, cfg.Schedule.AvailabilityBufferDays)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9000\"\n"), 0o600))
	t.Setenv("SCHEDULER_LISTEN", ":7000")
	t.Setenv("SCHEDULER_APP_SECRET", "s3cret")
	t.Setenv("SCHEDULER_COPY_DELAY", "1s")
	t.Setenv("SCHEDULER_CACHE_QUOTA", "1024")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, "s3cret", cfg.Vendor.AppSecret)
	assert.Equal(t, time.Second, cfg.Schedule.CopyDelay)
	assert.Equal(t, int64(1024), cfg.Cache.QuotaBytes)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	_, err = Load("")
	require.Error(t, err)
}

func TestNormalize_RepairsInvalidValues(t *testing.T) {
	cfg := &Config{LogLevel: "verbose", Vendor: VendorConfig{PageSize: 500}, Cache: CacheConfig{Retries: -1, QuotaBytes: -5}}
	cfg.Normalize()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.Vendor.PageSize)
	assert.Equal(t, 3, cfg.Cache.Retries)
	assert.Equal(t, int64(0), cfg.Cache.QuotaBytes)
	assert.Equal(t, 800*time.Millisecond, cfg.Refresh.Cooldown)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingCredentials)
}

func TestDerivedConfigs(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3, cfg.RetryPolicy().MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryPolicy().Delay)
	svc := cfg.ServiceConfig()
	assert.Equal(t, 30*time.Minute, svc.EmployeesTTL)
	assert.Equal(t, 800*time.Millisecond, svc.CopyDelay)
}
