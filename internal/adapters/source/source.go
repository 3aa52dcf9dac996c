// Package source fetches published spreadsheet exports over HTTP.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/pkg/logger"
	"github.com/okian/crewboard/pkg/metrics"
)

// Default source configuration constants.
const (
	defaultTimeout   = 15 * time.Second
	defaultMaxBytes  = 32 << 20
	defaultUserAgent = "crewboard/1.0"
)

// Fetcher loads a dataset from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (dataset.Dataset, error)
}

// Middleware decorates a Fetcher.
type Middleware func(Fetcher) Fetcher

// Chain wraps f with mws; the first middleware is the outermost.
func Chain(f Fetcher, mws ...Middleware) Fetcher {
	for i := len(mws) - 1; i >= 0; i-- {
		f = mws[i](f)
	}
	return f
}

// Option applies a configuration option to the HTTPSource.
type Option func(*HTTPSource)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithMaxBytes limits how much of a response body is read.
func WithMaxBytes(n int64) Option {
	return func(s *HTTPSource) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *HTTPSource) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// HTTPSource fetches CSV documents with a GET request. It has no side
// effects besides logging and metrics.
type HTTPSource struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	userAgent string
	tracer    trace.Tracer
}

// New creates an HTTPSource with default configuration.
func New(opts ...Option) *HTTPSource {
	s := &HTTPSource{
		client:    http.DefaultClient,
		timeout:   defaultTimeout,
		maxBytes:  defaultMaxBytes,
		userAgent: defaultUserAgent,
		tracer:    otel.Tracer("github.com/okian/crewboard/internal/adapters/source"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch downloads and parses url. Failures are *FetchError or *FormatError.
func (s *HTTPSource) Fetch(ctx context.Context, url string) (dataset.Dataset, error) {
	ctx, span := s.tracer.Start(ctx, "source.Fetch", trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	ds, err := s.fetch(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordFetchError(errorKind(err))
		return dataset.Dataset{}, err
	}
	span.SetAttributes(attribute.Int("rows", ds.Len()))
	logger.Get().Debug(ctx, "fetched sheet", logger.String("url", url), logger.Int("rows", ds.Len()))
	return ds, nil
}

func (s *HTTPSource) fetch(ctx context.Context, url string) (dataset.Dataset, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return dataset.Dataset{}, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.1")

	resp, err := s.client.Do(req)
	if err != nil {
		return dataset.Dataset{}, &FetchError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return dataset.Dataset{}, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ErrBadStatus, resp.Status),
		}
	}

	ds, err := ParseCSV(http.MaxBytesReader(nil, resp.Body, s.maxBytes))
	if err != nil {
		return dataset.Dataset{}, s.bodyError(ctx, url, err)
	}
	return ds, nil
}

// bodyError classifies a failure while reading the response body. Only
// malformed CSV and oversized documents are format errors; a body cut short
// is a transport failure.
func (s *HTTPSource) bodyError(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil {
		return &FetchError{URL: url, Err: ctx.Err()}
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &FormatError{Err: fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)}
	}
	var fe *FormatError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{URL: url, Err: err}
}

func errorKind(err error) string {
	switch err.(type) {
	case *FormatError:
		return "format"
	case *FetchError:
		return "fetch"
	default:
		return "other"
	}
}
