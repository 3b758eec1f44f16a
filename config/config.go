// Package config resolves the cache layer's flat configuration once at
// startup, from an optional YAML file overlaid with CACHE_* environment
// variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Config is the flat configuration consumed by every component. It is
// resolved once and passed by value; nothing re-reads it per call.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`

	// KeyPrefix namespaces every key this process writes.
	KeyPrefix string `yaml:"keyPrefix"`

	// DefaultTTL applies to Set calls that pass no explicit TTL.
	DefaultTTL time.Duration `yaml:"-"`

	// CompressionThreshold is the encoded payload size, in bytes, at which
	// values are gzipped before storage.
	CompressionThreshold int `yaml:"compressionThreshold"`

	// MaxConnections caps the Redis connection pool.
	MaxConnections int `yaml:"maxConnections"`

	// QueryTimeout bounds every individual store round-trip.
	QueryTimeout time.Duration `yaml:"-"`

	MetricsEnabled bool `yaml:"metricsEnabled"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		Host:                 "localhost",
		Port:                 6379,
		DB:                   0,
		KeyPrefix:            "projcache",
		DefaultTTL:           5 * time.Minute,
		CompressionThreshold: 1024,
		MaxConnections:       10,
		QueryTimeout:         5 * time.Second,
		MetricsEnabled:       true,
	}
}

// yamlConfig mirrors Config with string durations so YAML files can use
// forms like "90s" or "1h30m".
type yamlConfig struct {
	Host                 *string `yaml:"host"`
	Port                 *int    `yaml:"port"`
	DB                   *int    `yaml:"db"`
	Password             *string `yaml:"password"`
	KeyPrefix            *string `yaml:"keyPrefix"`
	DefaultTTL           *string `yaml:"defaultTTL"`
	CompressionThreshold *int    `yaml:"compressionThreshold"`
	MaxConnections       *int    `yaml:"maxConnections"`
	QueryTimeout         *string `yaml:"queryTimeout"`
	MetricsEnabled       *bool   `yaml:"metricsEnabled"`
}

// Load resolves configuration in precedence order: defaults, then the YAML
// file at path (skipped when path is empty or the file does not exist), then
// environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "config: reading %s", path)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(buf, &yc); err != nil {
		return errors.Wrapf(err, "config: parsing %s", path)
	}
	if yc.Host != nil {
		cfg.Host = *yc.Host
	}
	if yc.Port != nil {
		cfg.Port = *yc.Port
	}
	if yc.DB != nil {
		cfg.DB = *yc.DB
	}
	if yc.Password != nil {
		cfg.Password = *yc.Password
	}
	if yc.KeyPrefix != nil {
		cfg.KeyPrefix = *yc.KeyPrefix
	}
	if yc.CompressionThreshold != nil {
		cfg.CompressionThreshold = *yc.CompressionThreshold
	}
	if yc.MaxConnections != nil {
		cfg.MaxConnections = *yc.MaxConnections
	}
	if yc.MetricsEnabled != nil {
		cfg.MetricsEnabled = *yc.MetricsEnabled
	}
	if yc.DefaultTTL != nil {
		d, err := str2duration.ParseDuration(*yc.DefaultTTL)
		if err != nil {
			return errors.Wrap(err, "config: defaultTTL")
		}
		cfg.DefaultTTL = d
	}
	if yc.QueryTimeout != nil {
		d, err := str2duration.ParseDuration(*yc.QueryTimeout)
		if err != nil {
			return errors.Wrap(err, "config: queryTimeout")
		}
		cfg.QueryTimeout = d
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("CACHE_REDIS_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("CACHE_REDIS_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("CACHE_KEY_PREFIX"); v != "" {
		cfg.KeyPrefix = v
	}
	var err error
	if cfg.Port, err = envInt("CACHE_REDIS_PORT", cfg.Port); err != nil {
		return err
	}
	if cfg.DB, err = envInt("CACHE_REDIS_DB", cfg.DB); err != nil {
		return err
	}
	if cfg.CompressionThreshold, err = envInt("CACHE_COMPRESSION_THRESHOLD", cfg.CompressionThreshold); err != nil {
		return err
	}
	if cfg.MaxConnections, err = envInt("CACHE_MAX_CONNECTIONS", cfg.MaxConnections); err != nil {
		return err
	}
	if cfg.DefaultTTL, err = envDuration("CACHE_DEFAULT_TTL", cfg.DefaultTTL); err != nil {
		return err
	}
	if cfg.QueryTimeout, err = envDuration("CACHE_QUERY_TIMEOUT", cfg.QueryTimeout); err != nil {
		return err
	}
	if v := os.Getenv("CACHE_METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "config: CACHE_METRICS_ENABLED")
		}
		cfg.MetricsEnabled = b
	}
	return nil
}

func envInt(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "config: %s", name)
	}
	return n, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	// Accept both "300" (seconds) and duration strings like "5m" or "1d".
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := str2duration.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "config: %s", name)
	}
	return d, nil
}

// Validate rejects configurations that cannot produce a working client.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("config: host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Newf("config: invalid port %d", c.Port)
	}
	if c.DB < 0 {
		return errors.Newf("config: invalid db index %d", c.DB)
	}
	if c.DefaultTTL <= 0 {
		return errors.New("config: defaultTTL must be positive")
	}
	if c.QueryTimeout <= 0 {
		return errors.New("config: queryTimeout must be positive")
	}
	if c.MaxConnections <= 0 {
		return errors.Newf("config: invalid maxConnections %d", c.MaxConnections)
	}
	if strings.ContainsAny(c.KeyPrefix, ":*") {
		return errors.Newf("config: keyPrefix %q contains reserved characters", c.KeyPrefix)
	}
	return nil
}

// Addr returns the host:port dial address.
func (c Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Options translates the configuration into go-redis client options.
func (c Config) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		DB:           c.DB,
		Password:     c.Password,
		PoolSize:     c.MaxConnections,
		ReadTimeout:  c.QueryTimeout,
		WriteTimeout: c.QueryTimeout,
	}
}
