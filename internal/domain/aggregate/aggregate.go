// Package aggregate computes per-group descriptive statistics.
package aggregate

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/crewboard/internal/domain/dataset"
)

// AllLabel labels the single group produced when no group key is given.
const AllLabel = "all"

// Stat is a descriptive statistic.
type Stat string

// Supported statistics.
const (
	StatMean  Stat = "mean"
	StatStd   Stat = "std"
	StatMin   Stat = "min"
	StatMax   Stat = "max"
	StatCount Stat = "count"
	StatSum   Stat = "sum"
	// StatDistinct counts distinct present values.
	StatDistinct Stat = "distinct"
)

// Metric names a statistic of one field.
type Metric struct {
	Name  string `koanf:"name" yaml:"name" json:"name" validate:"required"`
	Field string `koanf:"field" yaml:"field" json:"field" validate:"required"`
	Stat  Stat   `koanf:"stat" yaml:"stat" json:"stat" validate:"required,oneof=mean std min max count sum distinct"`
}

// Aggregate is the summary of one group. Count is the number of records in
// the group; Stats maps metric name to value.
type Aggregate struct {
	Key   dataset.Value      `json:"key"`
	Label string             `json:"label"`
	Count int                `json:"count"`
	Stats map[string]float64 `json:"stats"`
}

// Get returns a statistic by name.
func (a Aggregate) Get(name string) (float64, bool) {
	v, ok := a.Stats[name]
	return v, ok
}

// Clone returns a copy whose Stats can be extended independently.
func (a Aggregate) Clone() Aggregate {
	a.Stats = maps.Clone(a.Stats)
	if a.Stats == nil {
		a.Stats = map[string]float64{}
	}
	return a
}

type group struct {
	key     dataset.Value
	records []dataset.Record
}

// GroupBy groups ds by groupKey and computes metrics for every group.
// Records whose key is missing belong to no group. An empty groupKey yields
// one group labelled AllLabel. Groups are ordered by ascending key.
func GroupBy(ds dataset.Dataset, groupKey string, metrics []Metric) ([]Aggregate, error) {
	if ds.Len() == 0 {
		return nil, &EmptyDatasetError{}
	}
	if groupKey != "" && !ds.HasField(groupKey) {
		return nil, fmt.Errorf("group key %q: %w", groupKey, ErrUnknownField)
	}
	for _, m := range metrics {
		if !ds.HasField(m.Field) {
			return nil, fmt.Errorf("metric %q field %q: %w", m.Name, m.Field, ErrUnknownField)
		}
		if !validStat(m.Stat) {
			return nil, fmt.Errorf("metric %q: %w: %q", m.Name, ErrUnknownStat, m.Stat)
		}
	}

	groups := partition(ds, groupKey)
	if len(groups) == 0 {
		return nil, &EmptyDatasetError{GroupKey: groupKey}
	}

	out := make([]Aggregate, 0, len(groups))
	for _, g := range groups {
		agg := Aggregate{
			Key:   g.key,
			Label: g.key.String(),
			Count: len(g.records),
			Stats: make(map[string]float64, len(metrics)),
		}
		if groupKey == "" {
			agg.Label = AllLabel
		}
		for _, m := range metrics {
			if m.Stat == StatDistinct {
				agg.Stats[m.Name] = distinct(g.records, m.Field)
				continue
			}
			agg.Stats[m.Name] = compute(m.Stat, observations(g.records, m.Field))
		}
		out = append(out, agg)
	}
	return out, nil
}

func partition(ds dataset.Dataset, groupKey string) []*group {
	if groupKey == "" {
		return []*group{{key: dataset.Category(AllLabel), records: ds.Records}}
	}
	index := make(map[string]*group)
	var groups []*group
	for _, r := range ds.Records {
		v := r[groupKey]
		if v.Missing {
			continue
		}
		g, ok := index[v.Key()]
		if !ok {
			g = &group{key: v}
			index[v.Key()] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, r)
	}
	slices.SortStableFunc(groups, func(a, b *group) int { return a.key.Compare(b.key) })
	return groups
}

// observations returns the non-missing numeric values of field. Non-numeric
// fields contribute one observation per present value so count works on
// identifiers and categories.
func observations(records []dataset.Record, field string) []float64 {
	xs := make([]float64, 0, len(records))
	for _, r := range records {
		v := r[field]
		if v.Missing {
			continue
		}
		if v.Kind == dataset.KindNumeric {
			if math.IsNaN(v.Num) {
				continue
			}
			xs = append(xs, v.Num)
			continue
		}
		xs = append(xs, math.NaN())
	}
	return xs
}

func distinct(records []dataset.Record, field string) float64 {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if v := r[field]; !v.Missing {
			seen[v.Key()] = struct{}{}
		}
	}
	return float64(len(seen))
}

func compute(s Stat, xs []float64) float64 {
	if s == StatCount {
		return float64(len(xs))
	}
	nums := xs[:0:0]
	for _, x := range xs {
		if !math.IsNaN(x) {
			nums = append(nums, x)
		}
	}
	if len(nums) == 0 {
		return 0
	}
	switch s {
	case StatMean:
		return stat.Mean(nums, nil)
	case StatStd:
		if len(nums) < 2 {
			return 0
		}
		return stat.StdDev(nums, nil)
	case StatMin:
		return floats.Min(nums)
	case StatMax:
		return floats.Max(nums)
	case StatSum:
		return floats.Sum(nums)
	}
	return 0
}

func validStat(s Stat) bool {
	switch s {
	case StatMean, StatStd, StatMin, StatMax, StatCount, StatSum, StatDistinct:
		return true
	}
	return false
}

// Values returns the statistic name for every aggregate in order; a missing
// statistic is reported as false.
func Values(aggs []Aggregate, name string) ([]float64, bool) {
	out := make([]float64, len(aggs))
	for i, a := range aggs {
		v, ok := a.Stats[name]
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
