package repository

import "time"

// Option applies a configuration option to the DatasetCache.
type Option func(*DatasetCache)

// WithTTL expires entries older than ttl. Zero keeps entries until the
// session is reset or the URL invalidated.
func WithTTL(ttl time.Duration) Option {
	return func(c *DatasetCache) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *DatasetCache) {
		if now != nil {
			c.now = now
		}
	}
}
