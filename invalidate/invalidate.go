// Package invalidate removes the derived cache entries made stale by an
// entity mutation.
//
// Each entry point computes the precise key set for one kind of change: the
// entity's direct key plus every list/count/statistics key that could
// reference it, and nothing else. Sibling entities keep their entries, and
// the token-validation family is never matched by any user-scoped pattern —
// tokens die by TTL or explicit revocation only.
//
// Invalidation is best-effort. If the store is unreachable the affected keys
// simply age out on their TTLs; the engine reports what it removed and never
// blocks or fails the write that triggered it.
package invalidate

import (
	"context"

	"go.uber.org/zap"

	"github.com/uplandsoft/projcache/keys"
	"github.com/uplandsoft/projcache/store"
)

// Engine deletes derived cache keys after entity mutations.
type Engine struct {
	store *store.Store
	keys  keys.Builder
	log   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for invalidation summaries.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New returns an Engine deleting through s with keys built by kb.
func New(s *store.Store, kb keys.Builder, opts ...Option) *Engine {
	e := &Engine{store: s, keys: kb, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Project invalidates everything derived from one project after it is
// updated or deleted: the entity key, its statistics and composite keys, and
// the owner's full list and count families (every page/filter variant could
// reference the project). Other projects' entity keys are untouched.
// Returns the number of keys removed.
func (e *Engine) Project(ctx context.Context, projectID, ownerID string) int {
	removed := 0
	for _, k := range []string{
		e.keys.Project(projectID),
		e.keys.ProjectStats(projectID),
		e.keys.ProjectWithStats(projectID),
	} {
		if e.store.Delete(ctx, k) {
			removed++
		}
	}
	removed += e.store.DeleteByPattern(ctx, e.keys.ProjectListPattern(ownerID))
	removed += e.store.DeleteByPattern(ctx, e.keys.ProjectCountPattern(ownerID))

	e.log.Debug("project cache invalidated",
		zap.String("project", projectID), zap.String("owner", ownerID), zap.Int("removed", removed))
	return removed
}

// UserLists invalidates a user's list and count families, used when the
// user's project set changed in bulk. Individual project entity keys are
// left alone — they are still valid — and so is the token-validation cache,
// which is keyed by token hash, not user id.
func (e *Engine) UserLists(ctx context.Context, userID string) int {
	removed := e.store.DeleteByPattern(ctx, e.keys.ProjectListPattern(userID))
	removed += e.store.DeleteByPattern(ctx, e.keys.ProjectCountPattern(userID))

	e.log.Debug("user list caches invalidated",
		zap.String("user", userID), zap.Int("removed", removed))
	return removed
}

// Statistics invalidates a project's statistics key and the composite
// project-with-statistics key after stats are recomputed. The plain entity
// cache stays: the project itself did not change.
func (e *Engine) Statistics(ctx context.Context, projectID string) int {
	removed := 0
	if e.store.Delete(ctx, e.keys.ProjectStats(projectID)) {
		removed++
	}
	if e.store.Delete(ctx, e.keys.ProjectWithStats(projectID)) {
		removed++
	}
	return removed
}

// OwnerChanged invalidates after a project moves between users: the project
// itself plus both owners' list/count families, since the project leaves one
// set of lists and joins another.
func (e *Engine) OwnerChanged(ctx context.Context, projectID, fromUserID, toUserID string) int {
	removed := e.Project(ctx, projectID, fromUserID)
	removed += e.store.DeleteByPattern(ctx, e.keys.ProjectListPattern(toUserID))
	removed += e.store.DeleteByPattern(ctx, e.keys.ProjectCountPattern(toUserID))
	return removed
}

// Export invalidates one export job record.
func (e *Engine) Export(ctx context.Context, exportID string) bool {
	return e.store.Delete(ctx, e.keys.Export(exportID))
}

// Session invalidates one session record (logout or forced sign-out).
func (e *Engine) Session(ctx context.Context, sessionID string) bool {
	return e.store.Delete(ctx, e.keys.Session(sessionID))
}

// RevokeToken removes a cached token-validation entry. This is the only
// programmatic invalidation of the token family.
func (e *Engine) RevokeToken(ctx context.Context, token string) bool {
	return e.store.Delete(ctx, e.keys.TokenValidation(token))
}
