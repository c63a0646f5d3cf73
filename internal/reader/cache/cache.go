// Package cache is the reader-side durable engagement cache.
//
// The cache answers "what like state have I already seen for this target"
// without a network hop. Every write goes to memory synchronously and is
// mirrored to the device scope, so a fresh instance (page reload, app
// restart) starts from the last persisted state instead of empty.
//
// An absent entry means UNKNOWN, never zero: rendering code must not
// invent a zero count for targets the cache has no record of.
package cache

import (
	"encoding/json/v2"
	"log/slog"
	"sync"

	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/reader/identity"
)

// scopeKeyPrefix namespaces cache entries in the shared device scope.
const scopeKeyPrefix = "engagement:"

// EngagementCache caches like status per engagement target, grouped by
// chapter for persistence.
type EngagementCache struct {
	scope  identity.Scope
	logger *slog.Logger

	mu     sync.Mutex
	groups map[string]*group
}

// group is one persistence unit: all cached targets of one chapter (or
// one book, for book-level targets).
type group struct {
	// loaded marks that this session fetched authoritative server state
	// for the group. It is deliberately not persisted: a fresh instance
	// must refetch once even when it has stale cached entries to show.
	loaded  bool
	entries map[string]domain.LikeStatus
	// hydrated marks that the persisted entries were read from the scope.
	hydrated bool
}

// New creates an EngagementCache over the given device scope. A nil scope
// makes the cache memory-only.
func New(scope identity.Scope, logger *slog.Logger) *EngagementCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EngagementCache{
		scope:  scope,
		logger: logger,
		groups: make(map[string]*group),
	}
}

// groupKey buckets a target into its persistence group.
func groupKey(target domain.Target) string {
	switch target.Kind {
	case domain.TargetBook:
		return "book:" + target.BookID
	default:
		return target.ChapterID
	}
}

// Get returns the cached like status for a target. The second return is
// false when the target has never been cached (unknown, not zero).
func (c *EngagementCache) Get(target domain.Target) (domain.LikeStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.hydrate(groupKey(target))
	status, ok := g.entries[target.Key()]
	return status, ok
}

// Put caches the like status for a target and mirrors the target's group
// to the device scope. Persistence failures are logged and swallowed; the
// in-memory cache stays correct for this session either way.
func (c *EngagementCache) Put(target domain.Target, status domain.LikeStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := groupKey(target)
	g := c.hydrate(key)
	g.entries[target.Key()] = status

	c.persist(key, g)
}

// HasLoaded reports whether this session already fetched authoritative
// server state for the chapter. Persisted entries alone do not count.
func (c *EngagementCache) HasLoaded(chapterID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.groups[chapterID]
	return ok && g.loaded
}

// MarkLoaded records that the chapter's server state was fetched this
// session.
func (c *EngagementCache) MarkLoaded(chapterID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrate(chapterID).loaded = true
}

// hydrate returns the group, reading persisted entries on first access.
// Caller holds c.mu.
func (c *EngagementCache) hydrate(key string) *group {
	g, ok := c.groups[key]
	if !ok {
		g = &group{entries: make(map[string]domain.LikeStatus)}
		c.groups[key] = g
	}
	if g.hydrated || c.scope == nil {
		g.hydrated = true
		return g
	}
	g.hydrated = true

	raw, ok, err := c.scope.Get(scopeKeyPrefix + key)
	if err != nil {
		c.logger.Warn("engagement cache read failed",
			slog.String("group", key),
			slog.String("error", err.Error()))
		return g
	}
	if !ok {
		return g
	}

	var persisted map[string]domain.LikeStatus
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		c.logger.Warn("engagement cache entry corrupt, ignoring",
			slog.String("group", key),
			slog.String("error", err.Error()))
		return g
	}

	for k, v := range persisted {
		if _, exists := g.entries[k]; !exists {
			g.entries[k] = v
		}
	}
	return g
}

// persist mirrors a group to the device scope. Caller holds c.mu.
func (c *EngagementCache) persist(key string, g *group) {
	if c.scope == nil {
		return
	}

	data, err := json.Marshal(g.entries)
	if err != nil {
		c.logger.Warn("engagement cache marshal failed",
			slog.String("group", key),
			slog.String("error", err.Error()))
		return
	}

	if err := c.scope.Put(scopeKeyPrefix+key, string(data)); err != nil {
		c.logger.Warn("engagement cache persist failed",
			slog.String("group", key),
			slog.String("error", err.Error()))
	}
}
