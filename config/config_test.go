package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6379, cfg.Port)
	assert.Equal(t, "projcache", cfg.KeyPrefix)
	assert.Equal(t, 5*time.Minute, cfg.DefaultTTL)
	assert.Equal(t, 1024, cfg.CompressionThreshold)
	assert.True(t, cfg.MetricsEnabled)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: redis.internal
port: 6380
db: 2
keyPrefix: svc
defaultTTL: 90s
queryTimeout: 2s
compressionThreshold: 512
maxConnections: 32
metricsEnabled: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal", cfg.Host)
	assert.Equal(t, 6380, cfg.Port)
	assert.Equal(t, 2, cfg.DB)
	assert.Equal(t, "svc", cfg.KeyPrefix)
	assert.Equal(t, 90*time.Second, cfg.DefaultTTL)
	assert.Equal(t, 2*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 512, cfg.CompressionThreshold)
	assert.Equal(t, 32, cfg.MaxConnections)
	assert.False(t, cfg.MetricsEnabled)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: from-file\nport: 6380\n"), 0o644))

	t.Setenv("CACHE_REDIS_HOST", "from-env")
	t.Setenv("CACHE_DEFAULT_TTL", "600")
	t.Setenv("CACHE_QUERY_TIMEOUT", "1m30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Host)
	assert.Equal(t, 6380, cfg.Port)
	assert.Equal(t, 600*time.Second, cfg.DefaultTTL)
	assert.Equal(t, 90*time.Second, cfg.QueryTimeout)
}

func TestEnvExtendedDurationUnits(t *testing.T) {
	t.Setenv("CACHE_DEFAULT_TTL", "1d")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.DefaultTTL)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"empty host":      func(c *Config) { c.Host = "" },
		"bad port":        func(c *Config) { c.Port = 0 },
		"negative db":     func(c *Config) { c.DB = -1 },
		"zero ttl":        func(c *Config) { c.DefaultTTL = 0 },
		"zero timeout":    func(c *Config) { c.QueryTimeout = 0 },
		"zero pool":       func(c *Config) { c.MaxConnections = 0 },
		"reserved prefix": func(c *Config) { c.KeyPrefix = "a:b" },
		"wildcard prefix": func(c *Config) { c.KeyPrefix = "a*" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.Host = "cache.internal"
	cfg.Port = 7000
	cfg.DB = 3
	cfg.MaxConnections = 25

	opts := cfg.Options()
	assert.Equal(t, "cache.internal:7000", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 25, opts.PoolSize)
	assert.Equal(t, cfg.QueryTimeout, opts.ReadTimeout)
}

func TestInvalidEnvValue(t *testing.T) {
	t.Setenv("CACHE_REDIS_PORT", "not-a-number")
	_, err := Load("")
	assert.Error(t, err)
}
