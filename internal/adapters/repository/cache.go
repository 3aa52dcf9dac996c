package repository

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/pkg/metrics"
)

// DatasetCache is an in-memory Store. Reads hand out deep copies so callers
// can never modify a cached dataset.
type DatasetCache struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	generation uint64

	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group
}

var _ Store = (*DatasetCache)(nil)

// New creates an empty cache.
func New(opts ...Option) *DatasetCache {
	c := &DatasetCache{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached entry for url.
func (c *DatasetCache) Get(_ context.Context, url string) (Entry, error) {
	c.mu.RLock()
	e, ok := c.entries[url]
	c.mu.RUnlock()
	if !ok || c.expired(e) {
		metrics.RecordCacheMiss()
		return Entry{}, ErrNotFound
	}
	metrics.RecordCacheHit()
	return clone(e), nil
}

// GetOrLoad answers from the cache or loads url once, however many callers
// miss at the same time. A load that straddles a Reset is returned to its
// callers but not cached.
func (c *DatasetCache) GetOrLoad(ctx context.Context, url string, load LoadFunc) (Entry, bool, error) {
	if e, err := c.Get(ctx, url); err == nil {
		return e, true, nil
	}

	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()

	ch := c.group.DoChan(url, func() (any, error) {
		ds, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		return c.putIfGeneration(url, ds, gen), nil
	})
	select {
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, false, res.Err
		}
		e, _ := res.Val.(Entry)
		return clone(e), false, nil
	}
}

// Put stores a copy of ds under url.
func (c *DatasetCache) Put(_ context.Context, url string, ds dataset.Dataset) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := Entry{URL: url, Dataset: ds.Clone(), FetchedAt: c.now()}
	c.entries[url] = e
	metrics.UpdateCacheEntries(len(c.entries))
	return clone(e)
}

func (c *DatasetCache) putIfGeneration(url string, ds dataset.Dataset, gen uint64) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := Entry{URL: url, Dataset: ds, FetchedAt: c.now()}
	if c.generation == gen {
		c.entries[url] = Entry{URL: url, Dataset: ds.Clone(), FetchedAt: e.FetchedAt}
		metrics.UpdateCacheEntries(len(c.entries))
	}
	return e
}

// Invalidate drops url from the cache.
func (c *DatasetCache) Invalidate(_ context.Context, url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[url]
	delete(c.entries, url)
	c.group.Forget(url)
	metrics.UpdateCacheEntries(len(c.entries))
	return ok
}

// Reset drops every entry.
func (c *DatasetCache) Reset(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for url := range c.entries {
		c.group.Forget(url)
	}
	c.entries = make(map[string]Entry)
	c.generation++
	metrics.RecordCacheReset()
	metrics.UpdateCacheEntries(0)
}

// Count returns the number of cached entries, expired ones included.
func (c *DatasetCache) Count(_ context.Context) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *DatasetCache) expired(e Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.FetchedAt) > c.ttl
}

func clone(e Entry) Entry {
	e.Dataset = e.Dataset.Clone()
	return e
}
