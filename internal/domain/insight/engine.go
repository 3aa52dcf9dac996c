// Package insight turns aggregates and scores into rule-based recommendations.
package insight

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"sync/atomic"
	"text/template"

	"github.com/okian/crewboard/internal/domain/aggregate"
	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/internal/domain/scoring"
	"github.com/okian/crewboard/pkg/logger"
)

// EvalContext is everything rules can look at.
type EvalContext struct {
	Aggregates []aggregate.Aggregate
	Scores     map[string]scoring.Scores
	Dataset    dataset.Dataset
	Thresholds map[string]float64
}

type compiled struct {
	rule Rule
	tmpl *template.Template
	err  error
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger logs skipped rules at debug level.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine evaluates an ordered rule list. It is immutable after construction
// and safe for concurrent use.
type Engine struct {
	rules []compiled
	log   logger.Logger
}

// NewEngine compiles rule templates. A rule whose template does not parse is
// kept and skipped at evaluation time.
func NewEngine(rules []Rule, opts ...Option) *Engine {
	e := &Engine{rules: make([]compiled, 0, len(rules))}
	for _, opt := range opts {
		opt(e)
	}
	for _, r := range rules {
		c := compiled{rule: r}
		c.tmpl, c.err = template.New(r.Name).Option("missingkey=error").Parse(r.Message)
		if c.err != nil {
			c.err = fmt.Errorf("%w: %v", ErrInvalidTemplate, c.err)
		}
		e.rules = append(e.rules, c)
	}
	return e
}

// Evaluate returns the insights in rule declaration order. Rules are applied
// as the sequence is consumed; the sequence can be ranged over once, later
// iterations yield nothing.
func (e *Engine) Evaluate(ec EvalContext) iter.Seq[Insight] {
	var used atomic.Bool
	return func(yield func(Insight) bool) {
		if used.Swap(true) {
			return
		}
		fired := false
		for _, c := range e.rules {
			if c.rule.Fallback && fired {
				continue
			}
			out, err := e.apply(c, ec)
			if err != nil {
				e.skip(c.rule, err)
				continue
			}
			for _, in := range out {
				fired = true
				if !yield(in) {
					return
				}
			}
		}
	}
}

// Collect drains an insight sequence.
func Collect(seq iter.Seq[Insight]) []Insight {
	var out []Insight
	for in := range seq {
		out = append(out, in)
	}
	return out
}

func (e *Engine) skip(r Rule, err error) {
	if e.log == nil {
		return
	}
	e.log.Debug(context.Background(), "rule skipped", logger.String("rule", r.Name), logger.Error(err))
}

func (e *Engine) apply(c compiled, ec EvalContext) ([]Insight, error) {
	if c.err != nil {
		return nil, c.err
	}
	r := c.rule
	switch r.Select {
	case SelectAlways:
		return c.emit(Data{Rule: r.Name})
	case SelectTrend:
		delta, err := trend(ec.Dataset, r.Field)
		if err != nil {
			return nil, err
		}
		if r.Of != "" {
			return nil, fmt.Errorf("%w: trend rules have no group for %q", ErrNotApplicable, r.Of)
		}
		ok, th, err := condition(r, ec, nil, delta)
		if err != nil || !ok {
			return nil, err
		}
		return c.emit(Data{Rule: r.Name, Value: delta, Threshold: th, Count: ec.Dataset.Len()})
	case SelectFirst, SelectMin, SelectMax, SelectEach:
		return c.groups(ec)
	}
	return nil, fmt.Errorf("%w: select %q", ErrNotApplicable, r.Select)
}

func (c compiled) groups(ec EvalContext) ([]Insight, error) {
	r := c.rule
	if len(ec.Aggregates) == 0 {
		return nil, fmt.Errorf("%w: no groups", ErrNotApplicable)
	}
	values := make([]float64, len(ec.Aggregates))
	for i := range ec.Aggregates {
		x, ok := metricValue(ec, &ec.Aggregates[i], r.Metric)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, r.Metric)
		}
		values[i] = x
	}

	var picked []int
	switch r.Select {
	case SelectFirst:
		picked = []int{0}
	case SelectMin, SelectMax:
		best := 0
		for i, x := range values {
			if (r.Select == SelectMin && x < values[best]) || (r.Select == SelectMax && x > values[best]) {
				best = i
			}
		}
		picked = []int{best}
	default:
		picked = make([]int, len(values))
		for i := range values {
			picked[i] = i
		}
	}

	var out []Insight
	for _, i := range picked {
		a := &ec.Aggregates[i]
		ok, th, err := condition(r, ec, a, values[i])
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		in, err := c.emit(Data{Rule: r.Name, Group: a.Label, Value: values[i], Threshold: th, Count: a.Count})
		if err != nil {
			return nil, err
		}
		out = append(out, in...)
	}
	return out, nil
}

func (c compiled) emit(d Data) ([]Insight, error) {
	var b strings.Builder
	if err := c.tmpl.Execute(&b, d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return []Insight{{
		Rule:     c.rule.Name,
		Severity: c.rule.Severity,
		Message:  b.String(),
		Group:    d.Group,
		Value:    d.Value,
	}}, nil
}

// condition reports whether x passes the rule's comparison. A rule without
// Op always passes.
func condition(r Rule, ec EvalContext, a *aggregate.Aggregate, x float64) (bool, float64, error) {
	if r.Op == "" {
		return true, 0, nil
	}
	th, ok := threshold(r.Threshold, ec.Thresholds)
	if !ok {
		return false, 0, fmt.Errorf("%w: %q", ErrNoThreshold, r.Threshold)
	}
	if r.Of != "" {
		of, found := metricValue(ec, a, r.Of)
		if !found {
			return false, 0, fmt.Errorf("%w: %q", ErrUnknownMetric, r.Of)
		}
		th *= of
	}
	return r.Op.holds(x, th), th, nil
}

func threshold(name string, table map[string]float64) (float64, bool) {
	if v, ok := table[name]; ok {
		return v, true
	}
	v, err := strconv.ParseFloat(name, 64)
	return v, err == nil
}

func metricValue(ec EvalContext, a *aggregate.Aggregate, name string) (float64, bool) {
	if a == nil || name == "" {
		return 0, false
	}
	if v, ok := a.Get(name); ok {
		return v, true
	}
	if s, ok := ec.Scores[name]; ok {
		return s.Get(a.Label)
	}
	return 0, false
}

func trend(ds dataset.Dataset, field string) (float64, error) {
	if !ds.HasField(field) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	var first, last float64
	n := 0
	for _, r := range ds.Records {
		x, ok := r.Float(field)
		if !ok {
			continue
		}
		if n == 0 {
			first = x
		}
		last = x
		n++
	}
	if n < 2 {
		return 0, fmt.Errorf("%w: trend needs two values of %q", ErrNotApplicable, field)
	}
	return last - first, nil
}
