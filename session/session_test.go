package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uplandsoft/projcache/keys"
	"github.com/uplandsoft/projcache/store"
)

func newTestManager(t *testing.T, opts ...Option) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, New(store.New(client), keys.NewBuilder("test"), opts...)
}

func TestSessionLifecycle(t *testing.T) {
	_, m := newTestManager(t)
	ctx := context.Background()

	sess := Session{
		ID:        "s1",
		UserID:    "u1",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		LastSeen:  time.Now().UTC().Truncate(time.Second),
		Data:      map[string]string{"locale": "en"},
	}
	require.True(t, m.Save(ctx, sess))

	got, ok := m.Get(ctx, "s1")
	require.True(t, ok)
	assert.Equal(t, sess, got)

	assert.True(t, m.Delete(ctx, "s1"))
	_, ok = m.Get(ctx, "s1")
	assert.False(t, ok)
}

func TestSessionExpiry(t *testing.T) {
	mr, m := newTestManager(t, WithSessionTTL(time.Hour))
	ctx := context.Background()

	require.True(t, m.Save(ctx, Session{ID: "s1", UserID: "u1"}))

	mr.FastForward(2 * time.Hour)
	_, ok := m.Get(ctx, "s1")
	assert.False(t, ok)
}

func TestTouchExtendsSession(t *testing.T) {
	mr, m := newTestManager(t, WithSessionTTL(time.Hour))
	ctx := context.Background()

	require.True(t, m.Save(ctx, Session{ID: "s1", UserID: "u1"}))

	// Just before expiry, the session is touched and survives the original
	// deadline.
	mr.FastForward(50 * time.Minute)
	assert.True(t, m.Touch(ctx, "s1"))

	mr.FastForward(50 * time.Minute)
	_, ok := m.Get(ctx, "s1")
	assert.True(t, ok)
}

func TestTouchMissingSession(t *testing.T) {
	_, m := newTestManager(t)
	assert.False(t, m.Touch(context.Background(), "nope"))
}

func TestTokenValidationLifecycle(t *testing.T) {
	_, m := newTestManager(t)
	ctx := context.Background()

	v := TokenValidation{
		UserID:    "u1",
		Valid:     true,
		ExpiresAt: time.Now().UTC().Add(time.Hour).Truncate(time.Second),
		Scopes:    []string{"projects:read"},
	}
	require.True(t, m.CacheToken(ctx, "bearer-abc", v))

	got, ok := m.LookupToken(ctx, "bearer-abc")
	require.True(t, ok)
	assert.Equal(t, v, got)

	// Other tokens do not collide.
	_, ok = m.LookupToken(ctx, "bearer-xyz")
	assert.False(t, ok)

	assert.True(t, m.RevokeToken(ctx, "bearer-abc"))
	_, ok = m.LookupToken(ctx, "bearer-abc")
	assert.False(t, ok)
}

func TestTokenVerdictExpires(t *testing.T) {
	mr, m := newTestManager(t, WithTokenTTL(time.Minute))
	ctx := context.Background()

	require.True(t, m.CacheToken(ctx, "tok", TokenValidation{UserID: "u1", Valid: true}))

	mr.FastForward(2 * time.Minute)
	_, ok := m.LookupToken(ctx, "tok")
	assert.False(t, ok)
}

func TestInvalidVerdictIsCachedToo(t *testing.T) {
	// Negative results are cached as well, shielding the auth service from
	// repeated probes with a bad token.
	_, m := newTestManager(t)
	ctx := context.Background()

	require.True(t, m.CacheToken(ctx, "bad-token", TokenValidation{Valid: false}))

	got, ok := m.LookupToken(ctx, "bad-token")
	require.True(t, ok)
	assert.False(t, got.Valid)
}
