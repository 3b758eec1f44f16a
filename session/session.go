// Package session caches user sessions and token-validation results.
//
// Both families ride on the generic store: sessions are JSON records keyed
// by session id, token validations are keyed by a hash of the raw token so
// the token never appears in the keyspace. Token entries leave the cache
// only by TTL or explicit revocation — no user-scoped invalidation touches
// them.
package session

import (
	"context"
	"time"

	"github.com/uplandsoft/projcache/keys"
	"github.com/uplandsoft/projcache/store"
)

// DefaultSessionTTL keeps an idle session cached for a day.
const DefaultSessionTTL = 24 * time.Hour

// DefaultTokenTTL keeps a token-validation verdict for five minutes, so a
// revoked token is honored again within that bound even without explicit
// revocation.
const DefaultTokenTTL = 5 * time.Minute

// Session is a cached user session record.
type Session struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	CreatedAt time.Time         `json:"createdAt"`
	LastSeen  time.Time         `json:"lastSeen"`
	Data      map[string]string `json:"data,omitempty"`
}

// TokenValidation is a cached verdict about one bearer token.
type TokenValidation struct {
	UserID    string    `json:"userId"`
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expiresAt"`
	Scopes    []string  `json:"scopes,omitempty"`
}

// Manager stores sessions and token validations.
type Manager struct {
	store      *store.Store
	keys       keys.Builder
	sessionTTL time.Duration
	tokenTTL   time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(d time.Duration) Option {
	return func(m *Manager) { m.sessionTTL = d }
}

// WithTokenTTL overrides DefaultTokenTTL.
func WithTokenTTL(d time.Duration) Option {
	return func(m *Manager) { m.tokenTTL = d }
}

// New returns a Manager over s with keys built by kb.
func New(s *store.Store, kb keys.Builder, opts ...Option) *Manager {
	m := &Manager{
		store:      s,
		keys:       kb,
		sessionTTL: DefaultSessionTTL,
		tokenTTL:   DefaultTokenTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Save caches sess under its id.
func (m *Manager) Save(ctx context.Context, sess Session) bool {
	return m.store.Set(ctx, m.keys.Session(sess.ID), sess, m.sessionTTL)
}

// Get returns the cached session, if any.
func (m *Manager) Get(ctx context.Context, sessionID string) (Session, bool) {
	return store.Get[Session](ctx, m.store, m.keys.Session(sessionID))
}

// Delete removes a session (logout).
func (m *Manager) Delete(ctx context.Context, sessionID string) bool {
	return m.store.Delete(ctx, m.keys.Session(sessionID))
}

// Touch extends a live session's TTL without rewriting the record.
func (m *Manager) Touch(ctx context.Context, sessionID string) bool {
	return m.store.Expire(ctx, m.keys.Session(sessionID), m.sessionTTL)
}

// CacheToken stores the validation verdict for token.
func (m *Manager) CacheToken(ctx context.Context, token string, v TokenValidation) bool {
	return m.store.Set(ctx, m.keys.TokenValidation(token), v, m.tokenTTL)
}

// LookupToken returns the cached verdict for token, if present. A miss
// means the caller must validate against the auth service and re-cache.
func (m *Manager) LookupToken(ctx context.Context, token string) (TokenValidation, bool) {
	return store.Get[TokenValidation](ctx, m.store, m.keys.TokenValidation(token))
}

// RevokeToken drops the cached verdict so the next lookup re-validates.
func (m *Manager) RevokeToken(ctx context.Context, token string) bool {
	return m.store.Delete(ctx, m.keys.TokenValidation(token))
}
