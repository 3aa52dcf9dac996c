// Package scoring combines aggregate statistics into composite scores where
// lower is better.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/crewboard/internal/domain/aggregate"
	"github.com/okian/crewboard/internal/domain/dataset"
)

// ErrUnknownMetric is returned when a term references a statistic that the
// aggregates do not carry.
var ErrUnknownMetric = errors.New("unknown metric")

// TermKind selects how a term contributes to a score.
type TermKind string

// Term kinds.
const (
	// KindError contributes Sign * Weight * |stat|.
	KindError TermKind = "error"
	// KindTime contributes Weight * stat.
	KindTime TermKind = "time"
)

// Term is one weighted statistic of a formula. A zero Weight or Sign is
// read as 1.
type Term struct {
	Metric string   `koanf:"metric" yaml:"metric" json:"metric" validate:"required"`
	Weight float64  `koanf:"weight" yaml:"weight" json:"weight,omitempty"`
	Sign   float64  `koanf:"sign" yaml:"sign" json:"sign,omitempty"`
	Kind   TermKind `koanf:"kind" yaml:"kind" json:"kind" validate:"omitempty,oneof=error time"`
}

// Formula is a named weighted sum of terms.
type Formula struct {
	Name  string `koanf:"name" yaml:"name" json:"name" validate:"required"`
	Terms []Term `koanf:"terms" yaml:"terms" json:"terms" validate:"required,min=1,dive"`
}

// GroupScore is the value of a formula for one group.
type GroupScore struct {
	Label string        `json:"label"`
	Key   dataset.Value `json:"key"`
	Value float64       `json:"value"`
}

// Scores keeps aggregate order.
type Scores []GroupScore

// Get returns the score of the group labelled label.
func (s Scores) Get(label string) (float64, bool) {
	for _, sc := range s {
		if sc.Label == label {
			return sc.Value, true
		}
	}
	return 0, false
}

// Best returns the lowest score; ties go to the first group.
func (s Scores) Best() (GroupScore, bool) {
	if len(s) == 0 {
		return GroupScore{}, false
	}
	best := s[0]
	for _, sc := range s[1:] {
		if sc.Value < best.Value {
			best = sc
		}
	}
	return best, true
}

// BestBy returns the group with the lowest value of metric; ties go to the
// first group.
func BestBy(aggs []aggregate.Aggregate, metric string) (GroupScore, error) {
	if len(aggs) == 0 {
		return GroupScore{}, fmt.Errorf("%q: %w", metric, aggregate.ErrEmpty)
	}
	s := make(Scores, 0, len(aggs))
	for _, a := range aggs {
		v, ok := a.Get(metric)
		if !ok {
			return GroupScore{}, fmt.Errorf("%q: %w", metric, ErrUnknownMetric)
		}
		s = append(s, GroupScore{Label: a.Label, Key: a.Key, Value: v})
	}
	best, _ := s.Best()
	return best, nil
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRounding rounds every score to places decimal places.
func WithRounding(places int) Option {
	return func(e *Engine) {
		if places >= 0 {
			e.scale = math.Pow(10, float64(places))
		}
	}
}

// Engine evaluates formulas against aggregates.
type Engine struct {
	scale float64
}

// NewEngine creates an engine; scores are not rounded by default.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score evaluates formula with a default engine.
func Score(aggs []aggregate.Aggregate, formula Formula) (Scores, error) {
	return NewEngine().Score(aggs, formula)
}

// Score evaluates formula for every aggregate. The aggregates are not modified.
func (e *Engine) Score(aggs []aggregate.Aggregate, formula Formula) (Scores, error) {
	out := make(Scores, 0, len(aggs))
	for _, a := range aggs {
		total := 0.0
		for _, t := range formula.Terms {
			x, ok := a.Get(t.Metric)
			if !ok {
				return nil, fmt.Errorf("formula %q term %q: %w", formula.Name, t.Metric, ErrUnknownMetric)
			}
			total += contribution(t, x)
		}
		if e.scale > 0 {
			total = math.Round(total*e.scale) / e.scale
		}
		out = append(out, GroupScore{Label: a.Label, Key: a.Key, Value: total})
	}
	return out, nil
}

// ScoreAll evaluates formulas in order. Each score is layered onto copies of
// the aggregates under the formula name, so later formulas can use earlier
// scores as terms. It returns the layered copies and the scores by name.
func (e *Engine) ScoreAll(aggs []aggregate.Aggregate, formulas []Formula) ([]aggregate.Aggregate, map[string]Scores, error) {
	layered := make([]aggregate.Aggregate, len(aggs))
	for i, a := range aggs {
		layered[i] = a.Clone()
	}
	all := make(map[string]Scores, len(formulas))
	for _, f := range formulas {
		s, err := e.Score(layered, f)
		if err != nil {
			return nil, nil, err
		}
		for i, sc := range s {
			layered[i].Stats[f.Name] = sc.Value
		}
		all[f.Name] = s
	}
	return layered, all, nil
}

func contribution(t Term, x float64) float64 {
	weight := t.Weight
	if weight == 0 {
		weight = 1
	}
	if t.Kind == KindTime {
		return weight * x
	}
	sign := t.Sign
	if sign == 0 {
		sign = 1
	}
	return sign * weight * math.Abs(x)
}
