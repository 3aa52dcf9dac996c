package service

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/crewboard/internal/adapters/repository"
	"github.com/okian/crewboard/internal/adapters/source"
	"github.com/okian/crewboard/internal/config"
)

// FromConfig returns the options that build a Service from loaded
// configuration: the pages, a rate limited retrying fetcher and a cache
// with the configured TTL.
func FromConfig(cfg *config.Config) []Option {
	fetcher := source.Chain(
		source.New(
			source.WithTimeout(time.Duration(cfg.FetchTimeoutSeconds)*time.Second),
			source.WithMaxBytes(cfg.MaxFetchBytes),
		),
		source.RetryMiddleware(cfg.FetchRetries, defaultRetryBase, defaultRetryMax),
		source.RateLimitMiddleware(rate.Limit(cfg.FetchRatePerSecond), cfg.FetchBurst),
	)
	return []Option{
		WithPages(cfg.Pages),
		WithFetcher(fetcher),
		WithStore(repository.New(repository.WithTTL(time.Duration(cfg.CacheTTLSeconds) * time.Second))),
		WithWarmConcurrency(cfg.WarmConcurrency),
		WithScoreRounding(cfg.ScoreRounding),
	}
}
