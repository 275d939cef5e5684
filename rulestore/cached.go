package rulestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aquamarinepk/warden/cache"
	"github.com/aquamarinepk/warden/redirect"
	"github.com/aquamarinepk/warden/subject"
)

const DefaultCacheTTL = 30 * time.Second

type cacheEntry struct {
	rec   Record
	found bool
}

// generation identifies the state of a key. Save, Delete and Invalidate move
// it forward so a lookup that read the backend earlier cannot fill the cache.
type generation struct {
	epoch uint64
	key   uint64
}

// Cached fronts a Store with a TTL cache. Misses are cached too, so a chain
// lookup for a visitor without rules costs one backend round trip per key per
// TTL. Concurrent misses for the same key share one backend call.
type Cached struct {
	inner Store
	cache *cache.StringTTLCache[cacheEntry]
	group singleflight.Group

	mu       sync.Mutex
	epoch    uint64
	versions map[string]uint64
}

func NewCached(inner Store, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		inner:    inner,
		cache:    cache.NewStringTTLCache[cacheEntry](ttl),
		versions: make(map[string]uint64),
	}
}

func (c *Cached) Get(ctx context.Context, key subject.Key) (Record, error) {
	id := key.String()
	if entry, ok := c.cache.Get(id); ok {
		return entryResult(entry)
	}

	// The shared call outlives the caller that started it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(id, func() (any, error) {
		if entry, ok := c.cache.Get(id); ok {
			return entry, nil
		}
		gen := c.generation(id)
		rec, err := c.inner.Get(loadCtx, key)
		switch {
		case err == nil:
			entry := cacheEntry{rec: rec, found: true}
			c.fill(id, gen, entry)
			return entry, nil
		case errors.Is(err, ErrNotFound):
			entry := cacheEntry{}
			c.fill(id, gen, entry)
			return entry, nil
		default:
			return nil, err
		}
	})
	if err != nil {
		return Record{}, err
	}
	return entryResult(v.(cacheEntry))
}

func (c *Cached) Save(ctx context.Context, key subject.Key, rule redirect.Rule) (Record, error) {
	rec, err := c.inner.Save(ctx, key, rule)
	c.forget(key.String())
	return rec, err
}

func (c *Cached) Delete(ctx context.Context, key subject.Key) error {
	err := c.inner.Delete(ctx, key)
	c.forget(key.String())
	return err
}

func (c *Cached) List(ctx context.Context) ([]Record, error) {
	return c.inner.List(ctx)
}

// Invalidate drops every cached entry whose key starts with prefix; an empty
// prefix clears the cache.
func (c *Cached) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	if prefix == "" {
		c.cache.Clear()
		return
	}
	c.cache.DeleteByPrefix(prefix)
}

func (c *Cached) generation(id string) generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return generation{epoch: c.epoch, key: c.versions[id]}
}

// fill caches entry unless id changed since gen was taken.
func (c *Cached) fill(id string, gen generation, entry cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != (generation{epoch: c.epoch, key: c.versions[id]}) {
		return
	}
	c.cache.Set(id, entry)
}

// forget drops id after a write. Lookups that joined an in-flight load for id
// still get its result; later lookups start a new one.
func (c *Cached) forget(id string) {
	c.mu.Lock()
	c.versions[id]++
	c.cache.Delete(id)
	c.mu.Unlock()
	c.group.Forget(id)
}

// Sweep removes expired entries every interval until ctx is done. It is meant
// to run as an App runner.
func (c *Cached) Sweep(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultCacheTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.cache.ClearExpired()
		}
	}
}

func entryResult(entry cacheEntry) (Record, error) {
	if !entry.found {
		return Record{}, ErrNotFound
	}
	return entry.rec, nil
}
