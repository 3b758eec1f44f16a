// Package store is the Redis adapter every other component goes through.
//
// All operations degrade instead of failing: a store outage, timeout, or
// corrupted entry yields the operation's empty result (nil/false/0), never an
// error to the caller. The service keeps running uncached while Redis is
// down. Programmatic misuse aside, nothing in this package can take down a
// request path.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/uplandsoft/projcache/codec"
	"github.com/uplandsoft/projcache/metrics"
)

// DefaultQueryTimeout bounds each store round-trip when no timeout is
// configured. Prevents indefinite hangs on unresponsive storage.
const DefaultQueryTimeout = 5 * time.Second

// scanBatch is the COUNT hint for SCAN and the DEL batch size used by
// DeleteByPattern.
const scanBatch = 200

type options struct {
	codec        codec.Codec
	logger       *zap.Logger
	collector    *metrics.Collector
	queryTimeout time.Duration
}

// Option configures a Store.
type Option func(*options)

// WithCodec replaces the default JSON-with-compression codec.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLogger sets the logger for degraded-operation diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the collector updated by every operation.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithQueryTimeout bounds each store round-trip. Defaults to
// DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(o *options) { o.queryTimeout = d }
}

// Store wraps a shared Redis client with serialization, metrics, and
// degrade-to-empty error handling. One Store is constructed at startup and
// injected into every consumer; the caller owns the client lifecycle.
type Store struct {
	client  *redis.Client
	codec   codec.Codec
	log     *zap.Logger
	metrics *metrics.Collector
	timeout time.Duration
	group   singleflight.Group
}

// New returns a Store over client.
func New(client *redis.Client, opts ...Option) *Store {
	o := options{
		codec:        codec.WithCompression(codec.JSON{}, 0),
		logger:       zap.NewNop(),
		collector:    metrics.NewCollector(false),
		queryTimeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		client:  client,
		codec:   o.codec,
		log:     o.logger,
		metrics: o.collector,
		timeout: o.queryTimeout,
	}
}

// Metrics returns the collector this store reports into.
func (s *Store) Metrics() *metrics.Collector {
	return s.metrics
}

func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

// Get reads key and decodes it into dest, which must be a pointer. It
// returns false on a miss, on any store failure, and on a corrupted entry —
// callers cannot distinguish these, by contract.
func (s *Store) Get(ctx context.Context, key string, dest any) bool {
	start := time.Now()
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	data, err := s.client.Get(qctx, key).Bytes()
	s.metrics.Observe(time.Since(start))
	if err == redis.Nil {
		s.metrics.Miss()
		return false
	}
	if err != nil {
		s.metrics.Error()
		s.metrics.Miss()
		s.log.Warn("cache get degraded", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := s.codec.Unmarshal(data, dest); err != nil {
		// Corrupted or foreign entry. Treat as a miss and drop it so the
		// next writer starts clean.
		s.metrics.Error()
		s.metrics.Miss()
		s.log.Warn("cache entry undecodable, evicting", zap.String("key", key), zap.Error(err))
		s.client.Del(qctx, key)
		return false
	}
	s.metrics.Hit()
	return true
}

// Get reads and decodes a typed value from s. The zero value with found ==
// false means miss, store failure, or undecodable entry alike.
func Get[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var v T
	if !s.Get(ctx, key, &v) {
		var zero T
		return zero, false
	}
	return v, true
}

// Set encodes val and writes it under key with the given TTL. A zero or
// negative ttl stores the key without expiry. Returns true only on a
// confirmed write.
func (s *Store) Set(ctx context.Context, key string, val any, ttl time.Duration) bool {
	data, err := s.codec.Marshal(val)
	if err != nil {
		s.metrics.Error()
		s.log.Warn("cache set: unencodable value", zap.String("key", key), zap.Error(err))
		return false
	}

	start := time.Now()
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	err = s.client.Set(qctx, key, data, ttl).Err()
	s.metrics.Observe(time.Since(start))
	if err != nil {
		s.metrics.Error()
		s.log.Warn("cache set degraded", zap.String("key", key), zap.Error(err))
		return false
	}
	s.metrics.Set()
	return true
}

// Delete removes key. Returns true when a key was actually removed.
func (s *Store) Delete(ctx context.Context, key string) bool {
	start := time.Now()
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	n, err := s.client.Del(qctx, key).Result()
	s.metrics.Observe(time.Since(start))
	if err != nil {
		s.metrics.Error()
		s.log.Warn("cache delete degraded", zap.String("key", key), zap.Error(err))
		return false
	}
	if n > 0 {
		s.metrics.Delete()
	}
	return n > 0
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) bool {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	n, err := s.client.Exists(qctx, key).Result()
	if err != nil {
		s.metrics.Error()
		s.log.Warn("cache exists degraded", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

// Expire resets key's TTL. Returns false if the key does not exist or the
// store is unreachable.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	ok, err := s.client.Expire(qctx, key, ttl).Result()
	if err != nil {
		s.metrics.Error()
		s.log.Warn("cache expire degraded", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

// TTL returns the remaining lifetime of key. found is false when the key
// does not exist, has no expiry, or the store is unreachable.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	d, err := s.client.TTL(qctx, key).Result()
	if err != nil {
		s.metrics.Error()
		return 0, false
	}
	if d < 0 {
		// -2 missing key, -1 no expiry.
		return 0, false
	}
	return d, true
}

// DeleteByPattern removes every key matching the glob pattern and returns
// how many were removed. Enumeration uses SCAN, not KEYS, so a large key
// family does not block the store. Best-effort: a failure mid-scan returns
// the count removed so far.
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) int {
	start := time.Now()
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.client.Scan(qctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			s.metrics.Error()
			s.log.Warn("cache pattern delete degraded",
				zap.String("pattern", pattern), zap.Int("removed", removed), zap.Error(err))
			break
		}
		if len(keys) > 0 {
			n, err := s.client.Del(qctx, keys...).Result()
			if err != nil {
				s.metrics.Error()
				s.log.Warn("cache pattern delete degraded",
					zap.String("pattern", pattern), zap.Int("removed", removed), zap.Error(err))
				break
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	s.metrics.Observe(time.Since(start))
	s.metrics.DeleteN(removed)
	return removed
}

// HealthCheck reports store reachability with a single PING round-trip.
func (s *Store) HealthCheck(ctx context.Context) bool {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if err := s.client.Ping(qctx).Err(); err != nil {
		s.metrics.Error()
		s.log.Warn("cache health check failed", zap.Error(err))
		return false
	}
	return true
}

// Loader produces a value on a cache miss. found == false means the backing
// source has no value; nothing is cached and subsequent calls load again.
type Loader[T any] func(ctx context.Context) (T, bool, error)

// GetOrLoad is the cache-aside path: return the cached value under key, or
// invoke load, cache its result with ttl, and return it. Concurrent callers
// for the same key share one load via singleflight, so a hot key that just
// expired does not stampede the backing source. Loader errors are returned
// to the caller; cache failures around a successful load are swallowed.
func GetOrLoad[T any](ctx context.Context, s *Store, key string, ttl time.Duration, load Loader[T]) (T, bool, error) {
	if v, ok := Get[T](ctx, s, key); ok {
		return v, true, nil
	}

	res, err, _ := s.group.Do(key, func() (any, error) {
		// Re-check under the flight lock: another caller may have populated
		// the key while this one waited.
		if v, ok := Get[T](ctx, s, key); ok {
			return v, nil
		}
		v, found, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errNotFound
		}
		s.Set(ctx, key, v, ttl)
		return v, nil
	})
	if errors.Is(err, errNotFound) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return res.(T), true, nil
}

// errNotFound is the sentinel a Loader's found=false collapses into inside
// the singleflight group.
var errNotFound = errors.New("store: loader found nothing")
