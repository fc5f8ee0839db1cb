// Package intentcache remembers how to reopen the source of a captured
// notification.
package intentcache

import (
	"context"
	"sort"
	"sync"
	"time"

	logx "notifai/pkg/logx"
)

// DefaultMaxEntries bounds the cache when no size is configured.
const DefaultMaxEntries = 500

// Capability re-invokes the source of a notification, e.g. by activating
// the application that posted it. It fails once the target is gone.
type Capability interface {
	Reopen(ctx context.Context) error
}

// Launcher starts an application by package id.
type Launcher interface {
	Launch(ctx context.Context, pkg string) error
}

type Entry struct {
	Capability Capability // may be nil
	Package    string
	CachedAt   time.Time

	seq uint64
}

type Cache struct {
	max      int
	launcher Launcher
	log      logx.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
	seq     uint64
}

func New(maxEntries int, launcher Launcher, log logx.Logger) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{
		max:      maxEntries,
		launcher: launcher,
		log:      log.With(logx.String("comp", "intentcache")),
		now:      time.Now,
		entries:  make(map[string]Entry, maxEntries),
	}
}

// Put stores the reopen capability of notification id. When the cache is
// full the oldest quarter is evicted first.
func (c *Cache) Put(id string, capability Capability, pkg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[id]; !exists && len(c.entries) >= c.max {
		c.evictLocked()
	}
	c.seq++
	c.entries[id] = Entry{Capability: capability, Package: pkg, CachedAt: c.now(), seq: c.seq}
}

func (c *Cache) evictLocked() {
	type kv struct {
		id string
		e  Entry
	}
	all := make([]kv, 0, len(c.entries))
	for id, e := range c.entries {
		all = append(all, kv{id, e})
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].e.CachedAt.Equal(all[j].e.CachedAt) {
			return all[i].e.CachedAt.Before(all[j].e.CachedAt)
		}
		return all[i].e.seq < all[j].e.seq
	})
	n := c.max / 4
	if n < 1 {
		n = 1
	}
	for _, x := range all[:min(n, len(all))] {
		delete(c.entries, x.id)
	}
	c.log.Debug("evicted cached intents", logx.Int("count", n), logx.Int("left", len(c.entries)))
}

func (c *Cache) Get(id string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e, ok
}

// Open reopens the source of notification id. A failing or missing
// capability falls back to launching the package. A miss returns false
// without error; callers that know the package use OpenPackage.
func (c *Cache) Open(ctx context.Context, id string) bool {
	e, ok := c.Get(id)
	if !ok {
		c.log.Debug("no cached intent", logx.String("id", id))
		return false
	}
	if e.Capability != nil {
		err := e.Capability.Reopen(ctx)
		if err == nil {
			c.log.Debug("reopened via capability", logx.String("id", id))
			return true
		}
		c.log.Debug("capability failed, launching package", logx.String("id", id), logx.Err(err))
	}
	return c.OpenPackage(ctx, e.Package)
}

// OpenPackage launches pkg directly.
func (c *Cache) OpenPackage(ctx context.Context, pkg string) bool {
	if pkg == "" || c.launcher == nil {
		return false
	}
	if err := c.launcher.Launch(ctx, pkg); err != nil {
		c.log.Warn("launching app failed", logx.String("package", pkg), logx.Err(err))
		return false
	}
	return true
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry, c.max)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
