// Package projcache wires the cache layer's components — key building,
// serialization, the Redis store adapter, distributed locks, invalidation,
// sessions, rate limiting, and metrics — behind one client constructed from
// a flat configuration.
//
// The client owns the single process-wide Redis connection pool. Construct
// it once at startup and inject it into the services that need caching:
//
//	cfg, err := config.Load("cache.yaml")
//	if err != nil { ... }
//	cc, err := projcache.New(ctx, cfg)
//	if err != nil { ... }
//	defer cc.Close()
//
// A store outage never surfaces as an error from cache operations; every
// component degrades to uncached behavior (see the store package).
package projcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uplandsoft/projcache/codec"
	"github.com/uplandsoft/projcache/config"
	"github.com/uplandsoft/projcache/invalidate"
	"github.com/uplandsoft/projcache/keys"
	"github.com/uplandsoft/projcache/lock"
	"github.com/uplandsoft/projcache/metrics"
	"github.com/uplandsoft/projcache/ratelimit"
	"github.com/uplandsoft/projcache/session"
	"github.com/uplandsoft/projcache/store"
)

type options struct {
	logger *zap.Logger
	codec  codec.Codec
}

// Option configures the Client.
type Option func(*options)

// WithLogger sets the logger shared by every component. Defaults to a nop
// logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCodec replaces the default JSON codec. Compression per the configured
// threshold is applied on top of whatever codec is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// Client bundles the cache layer. Fields are the individual components;
// consumers take the ones they need.
type Client struct {
	Keys         keys.Builder
	Store        *store.Store
	Locks        *lock.Manager
	Invalidation *invalidate.Engine
	Sessions     *session.Manager

	client    *redis.Client
	collector *metrics.Collector
	cfg       config.Config
	log       *zap.Logger
}

// New validates cfg, dials Redis, and assembles the cache layer. An
// unreachable store at startup is logged but not fatal — the layer comes up
// degraded and recovers when the store does.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		logger: zap.NewNop(),
		codec:  codec.JSON{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	client := redis.NewClient(cfg.Options())
	collector := metrics.NewCollector(cfg.MetricsEnabled)
	kb := keys.NewBuilder(cfg.KeyPrefix)

	st := store.New(client,
		store.WithCodec(codec.WithCompression(o.codec, cfg.CompressionThreshold)),
		store.WithLogger(o.logger),
		store.WithMetrics(collector),
		store.WithQueryTimeout(cfg.QueryTimeout),
	)

	c := &Client{
		Keys:  kb,
		Store: st,
		Locks: lock.New(client, kb,
			lock.WithLogger(o.logger), lock.WithQueryTimeout(cfg.QueryTimeout)),
		Invalidation: invalidate.New(st, kb, invalidate.WithLogger(o.logger)),
		Sessions:     session.New(st, kb),
		client:       client,
		collector:    collector,
		cfg:          cfg,
		log:          o.logger,
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		o.logger.Warn("cache store unreachable at startup, continuing degraded",
			zap.String("addr", cfg.Addr()), zap.Error(err))
	} else {
		o.logger.Info("cache store connected",
			zap.String("addr", cfg.Addr()), zap.String("prefix", cfg.KeyPrefix))
	}

	return c, nil
}

// NewLimiter returns a rate limiter allowing limit attempts per window,
// sharing this client's connection and key namespace.
func (c *Client) NewLimiter(limit int, window time.Duration) *ratelimit.Limiter {
	return ratelimit.New(c.client, c.Keys, limit, window, ratelimit.WithLogger(c.log))
}

// DefaultTTL returns the configured default entry lifetime, for callers
// that want their Set TTLs to track configuration.
func (c *Client) DefaultTTL() time.Duration {
	return c.cfg.DefaultTTL
}

// Flush removes every key under this client's prefix. Other tenants of the
// same Redis instance are untouched. Returns the number of keys removed.
func (c *Client) Flush(ctx context.Context) int {
	return c.Store.DeleteByPattern(ctx, c.cfg.KeyPrefix+":*")
}

// HealthCheck reports store reachability.
func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.Store.HealthCheck(ctx)
}

// Stats returns the current metrics snapshot.
func (c *Client) Stats() metrics.Stats {
	return c.collector.Stats()
}

// ResetMetrics zeroes the metrics counters.
func (c *Client) ResetMetrics() {
	c.collector.Reset()
}

// Metrics returns the underlying collector, e.g. for Prometheus
// registration via metrics.NewPrometheusCollector.
func (c *Client) Metrics() *metrics.Collector {
	return c.collector
}

// Close releases the Redis connection pool.
func (c *Client) Close() error {
	return c.client.Close()
}
