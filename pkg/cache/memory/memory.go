// Package memory implements C2 MemoryCache: the fastest, smallest tier of
// the derivative cache chain, held entirely in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ashgrove/imaged/pkg/cache"
	"github.com/ashgrove/imaged/pkg/transform"
)

// entry pairs a cache.Entry with the mutex-free bookkeeping this level
// needs; access time is updated on every Get so eviction ranks true LRU.
type entry struct {
	data       []byte
	size       int64
	thumbnail  bool
	createdAt  time.Time
	accessedAt time.Time
}

// Cache is the C2 MemoryCache implementation of cache.Level. It keeps
// its map under a single RWMutex; at the sizes this tier is configured
// for (spec.md's memory level is meant to be small and fast) a single
// lock is simpler than sharding and never showed up as a bottleneck in
// the teacher's own in-memory tier.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	size    int64

	next       cache.Level
	controller *cache.Controller
	metrics    cache.Metrics
}

var _ cache.Level = (*Cache)(nil)

// New builds a MemoryCache governed by policy, optionally reporting to
// metrics (nil is fine — metrics are ambient, not required for
// correctness).
func New(policy cache.Policy, metrics cache.Metrics) *Cache {
	return &Cache{
		entries:    make(map[string]*entry),
		controller: cache.NewController(policy),
		metrics:    metrics,
	}
}

func (c *Cache) Name() string { return "memory" }

func (c *Cache) setNext(n cache.Level) { c.next = n }

func (c *Cache) Next() cache.Level { return c.next }

func (c *Cache) Get(ctx context.Context, key string) (*cache.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		e.accessedAt = time.Now()
	}
	c.mu.Unlock()

	if !ok {
		if c.metrics != nil {
			c.metrics.ObserveCacheMiss(c.Name())
		}
		return nil, cache.NotFound(c.Name(), key)
	}

	if c.metrics != nil {
		c.metrics.ObserveCacheHit(c.Name())
	}

	out := make([]byte, len(e.data))
	copy(out, e.data)
	return &cache.Entry{
		Key: key, Data: out, Size: e.size, Thumbnail: e.thumbnail,
		CreatedAt: e.createdAt, AccessedAt: e.accessedAt,
	}, nil
}

func (c *Cache) Put(ctx context.Context, ent *cache.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	stored := &entry{
		data: append([]byte(nil), ent.Data...), size: ent.Size, thumbnail: ent.Thumbnail,
		createdAt: now, accessedAt: now,
	}

	c.mu.Lock()
	if old, ok := c.entries[ent.Key]; ok {
		c.size -= old.size
	}
	c.entries[ent.Key] = stored
	c.size += stored.size
	stat := c.statLocked()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordStat(c.Name(), stat)
	}

	if c.controller.ShouldEvict(stat) {
		c.evict(ctx, stat)
	}

	return nil
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.size -= e.size
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil
}

// InvalidatePrefix drops every entry whose key matches idPrefix under
// transform.MatchesIdentity. The map holds few enough entries at this
// tier's configured sizes that a full scan under the write lock is
// cheap; see pkg/cache/file and pkg/cache/object for the indexed/listed
// equivalents at larger tiers.
func (c *Cache) InvalidatePrefix(ctx context.Context, idPrefix string) error {
	c.mu.Lock()
	for key, e := range c.entries {
		if transform.MatchesIdentity(key, idPrefix) {
			c.size -= e.size
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *Cache) Stat(ctx context.Context) (cache.Stat, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statLocked(), nil
}

func (c *Cache) statLocked() cache.Stat {
	p := c.controller.Policy()
	return cache.Stat{
		Name: c.Name(), Bytes: c.size, MaxBytes: p.MaxBytes,
		Elements: int64(len(c.entries)), MaxElements: p.MaxElements,
	}
}

// evict snapshots entry metadata under the read lock, asks the
// controller which keys to drop, then removes them — writing back to
// Next() first when the policy calls for it. Mirrors the teacher's
// snapshot-then-sort-then-act eviction discipline.
func (c *Cache) evict(ctx context.Context, stat cache.Stat) {
	c.mu.RLock()
	metas := make([]cache.Meta, 0, len(c.entries))
	snapshot := make(map[string]*entry, len(c.entries))
	for k, e := range c.entries {
		metas = append(metas, cache.Meta{
			Key: k, Size: e.size, Thumbnail: e.thumbnail,
			CreatedAt: e.createdAt, AccessedAt: e.accessedAt,
		})
		snapshot[k] = e
	}
	c.mu.RUnlock()

	victims := c.controller.SelectVictims(stat, metas)

	policy := c.controller.Policy()
	for _, key := range victims {
		if ctx.Err() != nil {
			return
		}
		if policy.Writeback == cache.WritebackEager && c.next != nil {
			if e, ok := snapshot[key]; ok {
				_ = c.next.Put(ctx, &cache.Entry{
					Key: key, Data: e.data, Size: e.size, Thumbnail: e.thumbnail,
					CreatedAt: e.createdAt, AccessedAt: e.accessedAt,
				})
			}
		}
		_ = c.Invalidate(ctx, key)
	}

	if updated, err := c.Stat(ctx); err == nil {
		c.controller.MaybeAlarm(c.Name(), updated, time.Now())
	}
}
