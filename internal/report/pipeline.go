// Package report runs the per-page pipeline: normalize, reshape, filter,
// aggregate, score and recommend.
package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/crewboard/internal/domain/aggregate"
	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/internal/domain/insight"
	"github.com/okian/crewboard/internal/domain/normalize"
	"github.com/okian/crewboard/internal/domain/scoring"
	"github.com/okian/crewboard/pkg/logger"
	"github.com/okian/crewboard/pkg/metrics"
)

const tracerName = "github.com/okian/crewboard/internal/report"

// Highlight is the best group for one metric or score.
type Highlight struct {
	Name  string  `json:"name" yaml:"name"`
	Title string  `json:"title" yaml:"title"`
	Group string  `json:"group" yaml:"group"`
	Value float64 `json:"value" yaml:"value"`
}

// Report is the presentable result of one pipeline run.
type Report struct {
	Page        string                    `json:"page"`
	Title       string                    `json:"title"`
	RunID       uuid.UUID                 `json:"run_id"`
	Variant     string                    `json:"variant,omitempty"`
	Source      string                    `json:"source,omitempty"`
	GeneratedAt time.Time                 `json:"generated_at"`
	FetchedAt   time.Time                 `json:"fetched_at,omitzero"`
	Dataset     dataset.Dataset           `json:"dataset"`
	Stats       normalize.Stats           `json:"stats"`
	Columns     []string                  `json:"columns"`
	Aggregates  []aggregate.Aggregate     `json:"aggregates"`
	Scores      map[string]scoring.Scores `json:"scores,omitempty"`
	Highlights  []Highlight               `json:"highlights,omitempty"`
	Breakdowns  map[string][]Bucket       `json:"breakdowns,omitempty"`
	Insights    []insight.Insight         `json:"insights"`
}

// Bucket is the number of records holding one value of a breakdown field.
type Bucket struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithScoreRounding rounds scores to places decimal places.
func WithScoreRounding(places int) Option {
	return func(p *Pipeline) {
		p.scoreOpts = append(p.scoreOpts, scoring.WithRounding(places))
	}
}

// Pipeline is built once per page and holds no per-run state, so one
// instance can serve concurrent runs.
type Pipeline struct {
	cfg       Config
	scorer    *scoring.Engine
	scoreOpts []scoring.Option
	insights  *insight.Engine
	tracer    trace.Tracer
	log       logger.Logger
	now       func() time.Time
}

// New validates cfg and builds its pipeline.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewError(cfg.Page, KindConfig, err)
	}
	p := &Pipeline{
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Named("report")
	}
	p.scorer = scoring.NewEngine(p.scoreOpts...)
	p.insights = insight.NewEngine(cfg.Rules, insight.WithLogger(p.log.With(logger.String("page", cfg.Page))))
	return p, nil
}

// Config returns the page configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Run turns a raw dataset into a report. raw is not modified. Every failure
// is returned as an *Error.
func (p *Pipeline) Run(ctx context.Context, raw dataset.Dataset, q Query) (*Report, error) {
	start := p.now()
	ctx, span := p.tracer.Start(ctx, "report.Run", trace.WithAttributes(
		attribute.String("page", p.cfg.Page),
		attribute.Int("rows.raw", raw.Len()),
	))
	defer span.End()

	rep, err := p.run(ctx, raw, q)
	if err != nil {
		re := classify(p.cfg.Page, err)
		span.RecordError(re)
		span.SetStatus(codes.Error, re.Error())
		metrics.RecordReportError(p.cfg.Page, string(re.Kind))
		p.log.Warn(ctx, "report failed",
			logger.String("page", p.cfg.Page),
			logger.String("kind", string(re.Kind)),
			logger.Error(re.Err))
		return nil, re
	}
	rep.GeneratedAt = start
	metrics.RecordReport(p.cfg.Page, p.now().Sub(start).Seconds())
	span.SetAttributes(attribute.Int("groups", len(rep.Aggregates)), attribute.Int("insights", len(rep.Insights)))
	span.SetStatus(codes.Ok, "")
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, raw dataset.Dataset, q Query) (*Report, error) {
	rep := &Report{
		Page:    p.cfg.Page,
		Title:   p.cfg.Title,
		RunID:   uuid.New(),
		Variant: q.Variant,
		Columns: p.columns(),
	}

	ds := normalize.Headers(raw, p.cfg.Fields)
	if p.cfg.Unpivot != nil {
		err := p.stage(ctx, "unpivot", func() (err error) {
			ds, err = dataset.Unpivot(ds, *p.cfg.Unpivot)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	err := p.stage(ctx, "normalize", func() (err error) {
		ds, rep.Stats, err = normalize.Normalize(ds, p.cfg.Fields)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordRowsDropped(p.cfg.Page, rep.Stats.DroppedRows)

	if len(p.cfg.Derived) > 0 {
		err = p.stage(ctx, "derive", func() (err error) {
			ds, err = dataset.Derive(ds, p.cfg.Derived)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	ds = p.filter(ds, q)
	rep.Dataset = ds

	var aggs []aggregate.Aggregate
	err = p.stage(ctx, "aggregate", func() (err error) {
		aggs, err = aggregate.GroupBy(ds, p.cfg.GroupBy, p.cfg.Metrics)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, "score", func() (err error) {
		rep.Aggregates, rep.Scores, err = p.scorer.ScoreAll(aggs, p.cfg.Formulas)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, h := range p.cfg.Highlights {
		best, err := scoring.BestBy(rep.Aggregates, h.Metric)
		if err != nil {
			p.log.Debug(ctx, "highlight skipped", logger.String("highlight", h.Name), logger.Error(err))
			continue
		}
		rep.Highlights = append(rep.Highlights, Highlight{Name: h.Name, Title: h.Title, Group: best.Label, Value: best.Value})
	}

	rep.Breakdowns = p.breakdowns(ctx, ds)

	seq := p.insights.Evaluate(insight.EvalContext{
		Aggregates: rep.Aggregates,
		Scores:     rep.Scores,
		Dataset:    ds,
		Thresholds: p.cfg.Thresholds,
	})
	for in := range seq {
		metrics.RecordInsight(p.cfg.Page, string(in.Severity))
		rep.Insights = append(rep.Insights, in)
	}
	return rep, nil
}

// breakdowns counts records per value of every configured breakdown field.
// A field absent from ds, or with no values, is skipped.
func (p *Pipeline) breakdowns(ctx context.Context, ds dataset.Dataset) map[string][]Bucket {
	if len(p.cfg.Breakdowns) == 0 {
		return nil
	}
	out := make(map[string][]Bucket, len(p.cfg.Breakdowns))
	for _, field := range p.cfg.Breakdowns {
		if !ds.HasField(field) {
			continue
		}
		aggs, err := aggregate.GroupBy(ds, field, []aggregate.Metric{{Name: "n", Field: field, Stat: aggregate.StatCount}})
		if err != nil {
			p.log.Debug(ctx, "breakdown skipped", logger.String("field", field), logger.Error(err))
			continue
		}
		buckets := make([]Bucket, 0, len(aggs))
		for _, a := range aggs {
			buckets = append(buckets, Bucket{Value: a.Label, Count: a.Count})
		}
		out[field] = buckets
	}
	return out
}

// columns lists metric then score names in declaration order.
func (p *Pipeline) columns() []string {
	out := make([]string, 0, len(p.cfg.Metrics)+len(p.cfg.Formulas))
	for _, m := range p.cfg.Metrics {
		out = append(out, m.Name)
	}
	for _, f := range p.cfg.Formulas {
		out = append(out, f.Name)
	}
	return out
}

func (p *Pipeline) filter(ds dataset.Dataset, q Query) dataset.Dataset {
	if p.cfg.DateField != "" && ds.HasField(p.cfg.DateField) {
		ds = ds.Filter(dataset.Between(p.cfg.DateField, q.From, q.To))
	}
	for field, values := range q.Equals {
		if !p.filterable(field) || !ds.HasField(field) {
			continue
		}
		ds = ds.Filter(dataset.OneOf(field, values))
	}
	for field, r := range q.Ranges {
		if !p.filterable(field) || !ds.HasField(field) {
			continue
		}
		lo, hi := r.Bounds()
		ds = ds.Filter(dataset.InRange(field, lo, hi))
	}
	if q.Search != "" {
		ds = ds.Filter(dataset.Contains(q.Search))
	}
	return ds
}

func (p *Pipeline) filterable(field string) bool {
	if len(p.cfg.FilterFields) == 0 {
		return true
	}
	for _, f := range p.cfg.FilterFields {
		if f == field {
			return true
		}
	}
	return false
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func() error) error {
	_, span := p.tracer.Start(ctx, "report."+name, trace.WithAttributes(attribute.String("page", p.cfg.Page)))
	defer span.End()
	if err := fn(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
