// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/crewboard/internal/adapters/repository"
	"github.com/okian/crewboard/internal/adapters/source"
	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/internal/report"
	"github.com/okian/crewboard/pkg/logger"
	"github.com/okian/crewboard/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultWarmConcurrency = 4
	defaultRetries         = 2
	defaultRetryBase       = 200 * time.Millisecond
	defaultRetryMax        = 2 * time.Second
)

// ErrNotStarted is returned by operations that need Start to have run.
var ErrNotStarted = errors.New("service not started")

// PageInfo describes a page for listings.
type PageInfo struct {
	Name           string   `json:"name" yaml:"name"`
	Title          string   `json:"title" yaml:"title"`
	Variants       []string `json:"variants,omitempty" yaml:"variants,omitempty"`
	DefaultVariant string   `json:"default_variant,omitempty" yaml:"default_variant,omitempty"`
	DateField      string   `json:"date_field,omitempty" yaml:"date_field,omitempty"`
	FilterFields   []string `json:"filter_fields,omitempty" yaml:"filter_fields,omitempty"`
}

// Service wires the sheet source, the dataset cache and one pipeline per page.
type Service struct {
	mu sync.RWMutex

	// Core components
	fetcher   source.Fetcher
	cache     repository.Store
	pages     []report.Config
	pipelines map[string]*report.Pipeline

	// Configuration
	warmConcurrency int
	scoreRounding   int

	// State
	started        bool
	session        uuid.UUID
	sessionStarted time.Time
	// claimed is false while the session opened by Start has no visitor.
	claimed bool
	reports        atomic.Int64
	failures       atomic.Int64

	// Logging
	logger logger.Logger
	now    func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithPages sets the page definitions.
func WithPages(pages []report.Config) Option {
	return func(s *Service) {
		s.pages = append([]report.Config(nil), pages...)
	}
}

// WithFetcher replaces the sheet fetcher.
func WithFetcher(f source.Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithStore replaces the dataset cache.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.cache = store
		}
	}
}

// WithWarmConcurrency bounds concurrent fetches in Warm.
func WithWarmConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.warmConcurrency = n
		}
	}
}

// WithScoreRounding rounds scores to places decimals. Negative disables.
func WithScoreRounding(places int) Option {
	return func(s *Service) {
		s.scoreRounding = places
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		warmConcurrency: defaultWarmConcurrency,
		scoreRounding:   -1,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.fetcher == nil {
		s.fetcher = source.Chain(source.New(),
			source.RetryMiddleware(defaultRetries, defaultRetryBase, defaultRetryMax))
	}
	if s.cache == nil {
		s.cache = repository.New()
	}
	return s
}

// Start builds every page pipeline and opens the first session.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	pipelines := make(map[string]*report.Pipeline, len(s.pages))
	for _, cfg := range s.pages {
		if _, dup := pipelines[cfg.Page]; dup {
			return report.NewError(cfg.Page, report.KindConfig, fmt.Errorf("%w: duplicate page", report.ErrInvalidConfig))
		}
		var popts []report.Option
		popts = append(popts, report.WithLogger(s.logger.Named("report")), report.WithClock(s.now))
		if s.scoreRounding >= 0 {
			popts = append(popts, report.WithScoreRounding(s.scoreRounding))
		}
		p, err := report.New(cfg, popts...)
		if err != nil {
			return err
		}
		pipelines[cfg.Page] = p
	}
	s.pipelines = pipelines
	s.started = true
	s.newSessionLocked(ctx)
	s.claimed = false

	s.logger.Info(ctx, "crewboard service started",
		logger.Int("pages", len(s.pages)),
		logger.Int("warmConcurrency", s.warmConcurrency),
	)
	return nil
}

// Stop drops cached sheets and marks the service stopped.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cache.Reset(context.Background())
	s.started = false
	s.logger.Info(context.Background(), "crewboard service stopped")
}

// Pages lists the configured pages in declaration order.
func (s *Service) Pages() []PageInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PageInfo, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, PageInfo{
			Name:           p.Page,
			Title:          p.Title,
			Variants:       p.VariantNames(),
			DefaultVariant: p.DefaultVariant,
			DateField:      p.DateField,
			FilterFields:   p.FilterFields,
		})
	}
	return out
}

// Report builds one page. The sheet is read from the session cache and
// fetched on a miss. Every failure is a *report.Error.
func (s *Service) Report(ctx context.Context, page string, q report.Query) (*report.Report, error) {
	p, err := s.pipeline(page)
	if err != nil {
		return nil, err
	}
	url, err := p.Config().SourceURL(q.Variant)
	if err != nil {
		return nil, s.fail(report.NewError(page, report.KindNotFound, err))
	}

	entry, hit, err := s.cache.GetOrLoad(ctx, url, func(ctx context.Context) (dataset.Dataset, error) {
		start := s.now()
		ds, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			return dataset.Dataset{}, err
		}
		metrics.RecordFetch(page, s.now().Sub(start).Seconds(), ds.Len())
		return ds, nil
	})
	if err != nil {
		return nil, s.fail(fetchError(page, err))
	}
	s.logger.Debug(ctx, "sheet loaded",
		logger.String("page", page),
		logger.String("variant", q.Variant),
		logger.Bool("cached", hit),
		logger.Int("rows", entry.Dataset.Len()),
	)

	rep, err := p.Run(ctx, entry.Dataset, q)
	if err != nil {
		return nil, s.fail(err)
	}
	rep.Source = url
	rep.FetchedAt = entry.FetchedAt
	s.reports.Add(1)
	return rep, nil
}

// Session returns the current session id.
func (s *Service) Session() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// NewSession starts a new session: every cached sheet is dropped so the
// next report reads fresh data.
func (s *Service) NewSession(ctx context.Context) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newSessionLocked(ctx)
}

// JoinSession opens a session for a visitor without one. The first visitor
// after Start adopts the startup session and the sheets Warm loaded into it;
// later visitors get a new session.
func (s *Service) JoinSession(ctx context.Context) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed {
		return s.newSessionLocked(ctx)
	}
	s.claimed = true
	if s.logger != nil {
		s.logger.Info(ctx, "startup session joined", logger.String("session", s.session.String()))
	}
	return s.session
}

func (s *Service) newSessionLocked(ctx context.Context) uuid.UUID {
	s.claimed = true
	s.cache.Reset(ctx)
	s.session = uuid.New()
	s.sessionStarted = s.now()
	metrics.RecordSession()
	if s.logger != nil {
		s.logger.Info(ctx, "session started", logger.String("session", s.session.String()))
	}
	return s.session
}

// Invalidate drops the cached sheets of page, every variant included. An
// empty page invalidates all pages. It returns how many sheets were dropped.
func (s *Service) Invalidate(ctx context.Context, page string) (int, error) {
	var cfgs []report.Config
	if page == "" {
		s.mu.RLock()
		started := s.started
		cfgs = append(cfgs, s.pages...)
		s.mu.RUnlock()
		if !started {
			return 0, ErrNotStarted
		}
	} else {
		p, err := s.pipeline(page)
		if err != nil {
			return 0, err
		}
		cfgs = append(cfgs, p.Config())
	}

	dropped := 0
	for _, cfg := range cfgs {
		for _, url := range sourceURLs(cfg) {
			if s.cache.Invalidate(ctx, url) {
				dropped++
			}
		}
	}
	s.logger.Info(ctx, "cache invalidated", logger.String("page", page), logger.Int("dropped", dropped))
	return dropped, nil
}

// Warm fetches the default sheet of every page into the cache, at most
// WithWarmConcurrency at a time. All failures are returned joined.
func (s *Service) Warm(ctx context.Context) error {
	s.mu.RLock()
	started := s.started
	cfgs := append([]report.Config(nil), s.pages...)
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.warmConcurrency)
	for _, cfg := range cfgs {
		g.Go(func() error {
			url, err := cfg.SourceURL("")
			if err == nil {
				_, _, err = s.cache.GetOrLoad(gctx, url, func(ctx context.Context) (dataset.Dataset, error) {
					return s.fetcher.Fetch(ctx, url)
				})
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, fetchError(cfg.Page, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn(ctx, "cache warm incomplete", logger.Int("failed", len(errs)), logger.Error(err))
	}
	return err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":         s.started,
		"pages":           len(s.pages),
		"warmConcurrency": s.warmConcurrency,
		"reports":         s.reports.Load(),
		"reportErrors":    s.failures.Load(),
	}
	if s.started {
		cached := s.cache.Count(ctx)
		stats["session"] = s.session.String()
		stats["sessionStartedAt"] = s.sessionStarted
		stats["cachedSheets"] = cached
		metrics.UpdateCacheEntries(cached)
	}
	return stats
}

func (s *Service) pipeline(page string) (*report.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return nil, report.NewError(page, report.KindInternal, ErrNotStarted)
	}
	p, ok := s.pipelines[page]
	if !ok {
		return nil, s.fail(report.NewError(page, report.KindNotFound, fmt.Errorf("%w: %q", report.ErrUnknownPage, page)))
	}
	return p, nil
}

func (s *Service) fail(err error) error {
	s.failures.Add(1)
	return err
}

// fetchError classifies a load failure.
func fetchError(page string, err error) *report.Error {
	var fe *source.FormatError
	if errors.As(err, &fe) {
		return report.NewError(page, report.KindFormat, err)
	}
	return report.NewError(page, report.KindFetch, err)
}

func sourceURLs(cfg report.Config) []string {
	urls := make([]string, 0, len(cfg.Variants)+1)
	if cfg.Source != "" {
		urls = append(urls, cfg.Source)
	}
	for _, name := range cfg.VariantNames() {
		urls = append(urls, cfg.Variants[name])
	}
	return urls
}
