// Package keys builds the cache key namespace shared by every component.
//
// All keys follow the form <prefix>:<namespace>:<components...>. Construction
// is pure and deterministic: identical inputs always produce identical keys,
// and list/count keys fold their filter parameters through a stable hash so
// differently-filtered caches never collide. Pattern forms (trailing "*") are
// provided for the families that are bulk-deleted during invalidation.
//
// Identifiers are caller-supplied ids and short tags; passing an empty
// identifier is a programming error and panics.
package keys

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Separator joins key components. Identifiers must not contain it.
const Separator = ":"

// Namespaces owned by this module. Every key under a namespace belongs to
// exactly one logical entity type.
const (
	nsProject   = "project"
	nsList      = "list"
	nsCount     = "count"
	nsStats     = "stats"
	nsFull      = "full"
	nsExport    = "export"
	nsSession   = "session"
	nsToken     = "token"
	nsRateLimit = "ratelimit"
	nsLock      = "lock"
)

// Builder constructs namespaced cache keys. The zero value uses no prefix;
// normally one Builder is created per process from the configured prefix and
// shared by value.
type Builder struct {
	prefix string
}

// NewBuilder returns a Builder that prepends prefix to every key.
func NewBuilder(prefix string) Builder {
	return Builder{prefix: prefix}
}

// Prefix returns the configured key prefix.
func (b Builder) Prefix() string {
	return b.prefix
}

func (b Builder) join(parts ...string) string {
	for _, p := range parts {
		if p == "" {
			panic("keys: empty key component")
		}
		if strings.Contains(p, Separator) || strings.Contains(p, "*") {
			panic(fmt.Sprintf("keys: key component %q contains reserved characters", p))
		}
	}
	if b.prefix != "" {
		parts = append([]string{b.prefix}, parts...)
	}
	return strings.Join(parts, Separator)
}

// pattern appends a wildcard to an already-joined key prefix.
func pattern(key string) string {
	return key + Separator + "*"
}

// Project returns the direct entity key for a project.
func (b Builder) Project(projectID string) string {
	return b.join(nsProject, projectID)
}

// ProjectWithStats returns the composite project-plus-statistics key.
func (b Builder) ProjectWithStats(projectID string) string {
	return b.join(nsProject, nsFull, projectID)
}

// ProjectStats returns the statistics key for a project.
func (b Builder) ProjectStats(projectID string) string {
	return b.join(nsStats, nsProject, projectID)
}

// ProjectList returns the key for one cached page of a user's project list.
// The filter is folded into the key so each page/limit/filter combination
// caches independently.
func (b Builder) ProjectList(userID string, f ListFilter) string {
	return b.join(nsProject, nsList, userID, f.hash())
}

// ProjectListPattern matches every cached list page for a user.
func (b Builder) ProjectListPattern(userID string) string {
	return pattern(b.join(nsProject, nsList, userID))
}

// ProjectCount returns the key for a user's project count under a filter.
func (b Builder) ProjectCount(userID string, f CountFilter) string {
	return b.join(nsProject, nsCount, userID, f.hash())
}

// ProjectCountPattern matches every cached count variant for a user.
func (b Builder) ProjectCountPattern(userID string) string {
	return pattern(b.join(nsProject, nsCount, userID))
}

// Export returns the key for an export job record.
func (b Builder) Export(exportID string) string {
	return b.join(nsExport, exportID)
}

// Session returns the key for a user session record.
func (b Builder) Session(sessionID string) string {
	return b.join(nsSession, sessionID)
}

// TokenValidation returns the key caching a token validation result. The key
// embeds a hash of the raw token, never the token itself, so tokens cannot be
// recovered from a key listing. Invalidation for this family happens only by
// TTL or explicit revocation (spelled out by the invalidation engine) — it is
// deliberately not matched by any user-scoped pattern.
func (b Builder) TokenValidation(token string) string {
	if token == "" {
		panic("keys: empty token")
	}
	return b.join(nsToken, hashHex(token))
}

// RateLimit returns the counter key for a (subject, action) pair.
func (b Builder) RateLimit(subject, action string) string {
	return b.join(nsRateLimit, subject, action)
}

// Lock returns the mutual-exclusion key for an (operation, resource) pair.
func (b Builder) Lock(operation, resourceID string) string {
	return b.join(nsLock, operation, resourceID)
}

func hashHex(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}

// ListFilter captures the query parameters that shape a cached list page.
// Distinct filters hash to distinct key components.
type ListFilter struct {
	Page      int
	Limit     int
	Status    string
	HasFiles  *bool
	SortBy    string
	SortOrder string
}

func (f ListFilter) hash() string {
	// Canonical field order keeps the hash stable across runs.
	parts := []string{
		"page=" + strconv.Itoa(f.Page),
		"limit=" + strconv.Itoa(f.Limit),
		"status=" + f.Status,
		"hasFiles=" + formatBoolPtr(f.HasFiles),
		"sortBy=" + f.SortBy,
		"sortOrder=" + f.SortOrder,
	}
	return hashHex(strings.Join(parts, "&"))
}

// CountFilter captures the parameters that shape a cached count. A nil-equal
// zero value hashes to the unfiltered count key.
type CountFilter struct {
	Status   string
	HasFiles *bool
	Extra    map[string]string
}

func (f CountFilter) hash() string {
	parts := []string{
		"status=" + f.Status,
		"hasFiles=" + formatBoolPtr(f.HasFiles),
	}
	if len(f.Extra) > 0 {
		ks := make([]string, 0, len(f.Extra))
		for k := range f.Extra {
			ks = append(ks, k)
		}
		sort.Strings(ks)
		for _, k := range ks {
			parts = append(parts, k+"="+f.Extra[k])
		}
	}
	return hashHex(strings.Join(parts, "&"))
}

func formatBoolPtr(p *bool) string {
	if p == nil {
		return "any"
	}
	return strconv.FormatBool(*p)
}
