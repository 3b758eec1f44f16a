// Package ratelimit tracks fixed-window attempt counters in Redis.
//
// Each (subject, action) pair owns one counter record with explicit window
// timestamps, stored under a TTL equal to the remaining window so counters
// vanish on their own. The increment runs inside an optimistic WATCH/MULTI
// transaction: two simultaneous attempts cannot both read count=4 and both
// write count=5, one of them retries. (The service this layer replaces did
// the read-modify-write from calling code and carried exactly that race.)
//
// When the store is unreachable the limiter fails open — an outage slows the
// service down everywhere else, it should not also lock users out.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uplandsoft/projcache/codec"
	"github.com/uplandsoft/projcache/keys"
)

// txRetries bounds how often one attempt retries after losing a WATCH race.
// Every race round has a winner, so contention on one key drains quickly.
const txRetries = 100

// Counter is the stored rate-limit record. Timestamps are kept explicitly so
// callers can report "resets at" without consulting the store's TTL.
type Counter struct {
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	WindowStart time.Time `json:"windowStart"`
	LastAttempt time.Time `json:"lastAttempt"`
	ResetAt     time.Time `json:"resetAt"`
}

// Remaining returns how many attempts are left in the window.
func (c Counter) Remaining() int {
	if n := c.Limit - c.Count; n > 0 {
		return n
	}
	return 0
}

// Limiter enforces a fixed-window limit per (subject, action).
type Limiter struct {
	client *redis.Client
	keys   keys.Builder
	codec  codec.Codec
	log    *zap.Logger

	limit  int
	window time.Duration
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger for degraded-operation diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(lm *Limiter) { lm.log = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(lm *Limiter) { lm.now = now }
}

// New returns a Limiter allowing limit attempts per window.
func New(client *redis.Client, kb keys.Builder, limit int, window time.Duration, opts ...Option) *Limiter {
	lm := &Limiter{
		client: client,
		keys:   kb,
		codec:  codec.JSON{},
		log:    zap.NewNop(),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(lm)
	}
	return lm
}

// Attempt records one attempt for (subject, action) and reports whether it
// is allowed. Once the counter reaches the limit, further attempts are
// rejected without incrementing until the window resets. The returned
// Counter reflects the state after this attempt.
func (l *Limiter) Attempt(ctx context.Context, subject, action string) (Counter, bool) {
	key := l.keys.RateLimit(subject, action)

	var (
		result  Counter
		allowed bool
	)
	txn := func(tx *redis.Tx) error {
		now := l.now()
		c := l.read(ctx, tx, key, now)

		if c.Count >= c.Limit {
			c.LastAttempt = now
			result, allowed = c, false
			// Over-limit attempts are observed, not stored: the record
			// already says "full" and rewriting it would reset nothing.
			return nil
		}

		c.Count++
		c.LastAttempt = now
		result, allowed = c, true

		data, err := l.codec.Marshal(c)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ResetAt.Sub(now))
			return nil
		})
		return err
	}

	for i := 0; i < txRetries; i++ {
		err := l.client.Watch(ctx, txn, key)
		if err == nil {
			return result, allowed
		}
		if err == redis.TxFailedErr {
			continue
		}
		l.log.Warn("rate limit degraded, failing open",
			zap.String("key", key), zap.Error(err))
		return Counter{Limit: l.limit}, true
	}
	// Lost the race txRetries times in a row. The key is only this hot when
	// the subject is hammering, so fail closed.
	return result, false
}

// Peek returns the current counter without recording an attempt. found is
// false when no attempts were made this window or the store is unreachable.
func (l *Limiter) Peek(ctx context.Context, subject, action string) (Counter, bool) {
	key := l.keys.RateLimit(subject, action)
	data, err := l.client.Get(ctx, key).Bytes()
	if err != nil {
		return Counter{}, false
	}
	var c Counter
	if err := l.codec.Unmarshal(data, &c); err != nil {
		return Counter{}, false
	}
	if l.now().After(c.ResetAt) {
		return Counter{}, false
	}
	return c, true
}

// Reset clears the counter for (subject, action).
func (l *Limiter) Reset(ctx context.Context, subject, action string) bool {
	n, err := l.client.Del(ctx, l.keys.RateLimit(subject, action)).Result()
	if err != nil {
		l.log.Warn("rate limit reset degraded", zap.Error(err))
		return false
	}
	return n > 0
}

// read loads the current counter inside the transaction, starting a fresh
// window when none exists or the stored one has lapsed.
func (l *Limiter) read(ctx context.Context, tx *redis.Tx, key string, now time.Time) Counter {
	fresh := Counter{
		Limit:       l.limit,
		WindowStart: now,
		ResetAt:     now.Add(l.window),
	}
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		return fresh
	}
	var c Counter
	if err := l.codec.Unmarshal(data, &c); err != nil {
		return fresh
	}
	if now.After(c.ResetAt) {
		return fresh
	}
	return c
}
