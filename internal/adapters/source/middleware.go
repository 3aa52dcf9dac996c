package source

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/pkg/logger"
	"github.com/okian/crewboard/pkg/metrics"
)

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (dataset.Dataset, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (dataset.Dataset, error) {
	return f(ctx, url)
}

type retryFetcher struct {
	next       Fetcher
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware retries transient *FetchError failures with exponential
// backoff and jitter. Format errors and permanent statuses are returned at
// once.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next Fetcher) Fetcher {
		if maxRetries <= 0 {
			return next
		}
		return &retryFetcher{next: next, maxRetries: maxRetries, baseDelay: baseDelay, maxDelay: maxDelay}
	}
}

func (r *retryFetcher) Fetch(ctx context.Context, url string) (dataset.Dataset, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		ds, err := r.next.Fetch(ctx, url)
		if err == nil {
			return ds, nil
		}
		lastErr = err

		var fe *FetchError
		if !errors.As(err, &fe) || !fe.Transient() || ctx.Err() != nil || attempt == r.maxRetries {
			break
		}

		delay := r.delay(attempt)
		metrics.RecordFetchRetry()
		logger.Get().Warn(ctx, "retrying fetch",
			logger.String("url", url),
			logger.Int("attempt", attempt+1),
			logger.Duration("delay", delay),
			logger.Error(err))

		select {
		case <-ctx.Done():
			return dataset.Dataset{}, &FetchError{URL: url, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	return dataset.Dataset{}, lastErr
}

func (r *retryFetcher) delay(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	d := time.Duration(float64(r.baseDelay) * float64(uint(1)<<uint(attempt)))
	// ±25% jitter
	// #nosec G404 - weak RNG is fine for jitter
	d = d + time.Duration(rand.Float64()*float64(d)*0.5) - d/4
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

type rateLimitedFetcher struct {
	next    Fetcher
	limiter *rate.Limiter
}

// RateLimitMiddleware paces fetches with a token bucket shared by every
// fetcher it wraps.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next Fetcher) Fetcher {
		return &rateLimitedFetcher{next: next, limiter: limiter}
	}
}

func (r *rateLimitedFetcher) Fetch(ctx context.Context, url string) (dataset.Dataset, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return dataset.Dataset{}, &FetchError{URL: url, Err: fmt.Errorf("rate limit: %w", err)}
	}
	return r.next.Fetch(ctx, url)
}
