// Package repository caches fetched datasets for the lifetime of a session.
package repository

import (
	"context"
	"time"

	"github.com/okian/crewboard/internal/domain/dataset"
)

// Entry is a cached dataset and the moment it was fetched.
type Entry struct {
	URL       string
	Dataset   dataset.Dataset
	FetchedAt time.Time
}

// LoadFunc fetches a dataset on a cache miss.
type LoadFunc func(ctx context.Context) (dataset.Dataset, error)

// Store provides access to cached datasets keyed by source URL.
type Store interface {
	// Get returns a copy of the cached entry or ErrNotFound.
	Get(ctx context.Context, url string) (Entry, error)
	// GetOrLoad returns the cached entry or calls load once for concurrent
	// misses of the same URL. hit reports whether the cache answered.
	GetOrLoad(ctx context.Context, url string, load LoadFunc) (entry Entry, hit bool, err error)
	// Put stores a dataset and returns the new entry.
	Put(ctx context.Context, url string, ds dataset.Dataset) Entry
	// Invalidate drops one URL and reports whether it was cached.
	Invalidate(ctx context.Context, url string) bool
	// Reset drops every entry, as on a new session.
	Reset(ctx context.Context)
	// Count returns the number of cached datasets.
	Count(ctx context.Context) int
}
