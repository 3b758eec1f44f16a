// Package lock provides cross-process mutual exclusion over Redis.
//
// A lock is a key holding an opaque token, created with SET NX and a TTL.
// Ownership is proven by the token: release runs a compare-and-delete script
// so a holder can only remove a lock it still owns. There is no queueing —
// acquisition is a single non-blocking attempt and callers decide whether to
// retry. Expiry is handled entirely by the store's TTL; no sweeper runs.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uplandsoft/projcache/keys"
)

// releaseScript deletes the lock key only when it still holds the caller's
// token. The check and the delete must be one atomic step: between a GET and
// a DEL issued separately, the lock could expire and be re-acquired by
// another holder, whose lock the DEL would then destroy.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// DefaultTTL bounds a lock whose caller passes no TTL, so a crashed holder
// cannot wedge a resource forever.
const DefaultTTL = 30 * time.Second

// Manager acquires and releases distributed locks. All methods degrade on
// store failure: Acquire reports the lock as unavailable, Release reports
// not-owned.
type Manager struct {
	client  *redis.Client
	keys    keys.Builder
	log     *zap.Logger
	timeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for degraded-operation diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithQueryTimeout bounds each store round-trip.
func WithQueryTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// New returns a Manager issuing lock keys through kb.
func New(client *redis.Client, kb keys.Builder, opts ...Option) *Manager {
	m := &Manager{
		client:  client,
		keys:    kb,
		log:     zap.NewNop(),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, m.timeout)
}

// Acquire attempts to take the lock for (operation, resourceID). On success
// it returns the ownership token the caller must present to Release. ok is
// false when the lock is already held or the store is unreachable; the two
// are indistinguishable by design — treat both as "resource busy".
func (m *Manager) Acquire(ctx context.Context, operation, resourceID string, ttl time.Duration) (token string, ok bool) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	qctx, cancel := m.queryCtx(ctx)
	defer cancel()

	token = uuid.NewString()
	key := m.keys.Lock(operation, resourceID)
	created, err := m.client.SetNX(qctx, key, token, ttl).Result()
	if err != nil {
		m.log.Warn("lock acquire degraded", zap.String("key", key), zap.Error(err))
		return "", false
	}
	if !created {
		return "", false
	}
	return token, true
}

// IsLocked reports whether the lock for (operation, resourceID) is currently
// held by anyone.
func (m *Manager) IsLocked(ctx context.Context, operation, resourceID string) bool {
	qctx, cancel := m.queryCtx(ctx)
	defer cancel()

	n, err := m.client.Exists(qctx, m.keys.Lock(operation, resourceID)).Result()
	if err != nil {
		m.log.Warn("lock check degraded", zap.Error(err))
		return false
	}
	return n > 0
}

// Release frees the lock if token still owns it. A false return means the
// lock expired and may have been re-acquired by someone else, or the store
// was unreachable — either way the caller no longer holds it.
func (m *Manager) Release(ctx context.Context, operation, resourceID, token string) bool {
	qctx, cancel := m.queryCtx(ctx)
	defer cancel()

	key := m.keys.Lock(operation, resourceID)
	n, err := releaseScript.Run(qctx, m.client, []string{key}, token).Int()
	if err != nil {
		m.log.Warn("lock release degraded", zap.String("key", key), zap.Error(err))
		return false
	}
	return n == 1
}

// Remaining returns how long the lock for (operation, resourceID) has left
// before it expires on its own. held is false when no lock exists or the
// store is unreachable.
func (m *Manager) Remaining(ctx context.Context, operation, resourceID string) (ttl time.Duration, held bool) {
	qctx, cancel := m.queryCtx(ctx)
	defer cancel()

	d, err := m.client.PTTL(qctx, m.keys.Lock(operation, resourceID)).Result()
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}
