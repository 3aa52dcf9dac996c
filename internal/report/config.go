package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/crewboard/internal/domain/aggregate"
	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/internal/domain/insight"
	"github.com/okian/crewboard/internal/domain/scoring"
)

var validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals // validator caches struct metadata

// HighlightSpec names the group with the lowest value of Metric, which may be
// a statistic or a score.
type HighlightSpec struct {
	Name   string `koanf:"name" yaml:"name" json:"name" validate:"required"`
	Title  string `koanf:"title" yaml:"title" json:"title"`
	Metric string `koanf:"metric" yaml:"metric" json:"metric" validate:"required"`
}

// Config declares one report page. It is the only thing that differs
// between pages.
type Config struct {
	Page  string `koanf:"page" yaml:"page" json:"page" validate:"required"`
	Title string `koanf:"title" yaml:"title" json:"title"`
	// Source is the CSV export URL. Variants are alternative sources of the
	// same shape selected by name, such as one sheet per mission.
	Source         string            `koanf:"source" yaml:"source" json:"source" validate:"omitempty,url"`
	Variants       map[string]string `koanf:"variants" yaml:"variants" json:"variants,omitempty" validate:"omitempty,dive,url"`
	DefaultVariant string            `koanf:"default_variant" yaml:"default_variant" json:"default_variant,omitempty"`

	Fields       []dataset.FieldSpec    `koanf:"fields" yaml:"fields" json:"fields" validate:"required,min=1,dive"`
	Unpivot      *dataset.UnpivotSpec   `koanf:"unpivot" yaml:"unpivot" json:"unpivot,omitempty"`
	Derived      []dataset.DerivedField `koanf:"derived" yaml:"derived" json:"derived,omitempty" validate:"dive"`
	DateField    string                 `koanf:"date_field" yaml:"date_field" json:"date_field,omitempty"`
	FilterFields []string               `koanf:"filter_fields" yaml:"filter_fields" json:"filter_fields,omitempty"`

	GroupBy string `koanf:"group_by" yaml:"group_by" json:"group_by,omitempty"`
	// Breakdowns count records per value of each named field, next to the
	// main grouping.
	Breakdowns []string           `koanf:"breakdowns" yaml:"breakdowns" json:"breakdowns,omitempty"`
	Metrics    []aggregate.Metric `koanf:"metrics" yaml:"metrics" json:"metrics" validate:"required,min=1,dive"`
	Formulas   []scoring.Formula  `koanf:"formulas" yaml:"formulas" json:"formulas,omitempty" validate:"dive"`
	Highlights []HighlightSpec    `koanf:"highlights" yaml:"highlights" json:"highlights,omitempty" validate:"dive"`
	Rules      []insight.Rule     `koanf:"rules" yaml:"rules" json:"rules,omitempty" validate:"dive"`
	Thresholds map[string]float64 `koanf:"thresholds" yaml:"thresholds" json:"thresholds,omitempty"`
}

// Validate checks struct constraints and cross references between sections.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("page %q: %w: %v", c.Page, ErrInvalidConfig, err)
	}
	if c.Source == "" && len(c.Variants) == 0 {
		return fmt.Errorf("page %q: %w: no source", c.Page, ErrInvalidConfig)
	}
	if c.DefaultVariant != "" {
		if _, ok := c.Variants[c.DefaultVariant]; !ok {
			return fmt.Errorf("page %q: %w: default variant %q is not defined", c.Page, ErrInvalidConfig, c.DefaultVariant)
		}
	}
	names := make(map[string]bool, len(c.Metrics)+len(c.Formulas))
	for _, m := range c.Metrics {
		if names[m.Name] {
			return fmt.Errorf("page %q: %w: duplicate metric %q", c.Page, ErrInvalidConfig, m.Name)
		}
		names[m.Name] = true
	}
	for _, f := range c.Formulas {
		for _, t := range f.Terms {
			if !names[t.Metric] {
				return fmt.Errorf("page %q formula %q: %w: unknown term %q", c.Page, f.Name, ErrInvalidConfig, t.Metric)
			}
		}
		names[f.Name] = true
	}
	for _, h := range c.Highlights {
		if !names[h.Metric] {
			return fmt.Errorf("page %q highlight %q: %w: unknown metric %q", c.Page, h.Name, ErrInvalidConfig, h.Metric)
		}
	}
	return nil
}

// VariantNames returns the configured variants in order.
func (c Config) VariantNames() []string {
	out := make([]string, 0, len(c.Variants))
	for k := range c.Variants {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SourceURL resolves the CSV URL for a variant. An empty variant selects
// DefaultVariant, then Source, then the first variant by name.
func (c Config) SourceURL(variant string) (string, error) {
	if variant == "" {
		variant = c.DefaultVariant
	}
	if variant == "" {
		if c.Source != "" || len(c.Variants) == 0 {
			return c.Source, nil
		}
		variant = c.VariantNames()[0]
	}
	u, ok := c.Variants[variant]
	if !ok {
		return "", fmt.Errorf("page %q: %w: %q", c.Page, ErrUnknownVariant, variant)
	}
	return u, nil
}

// Query narrows a report run. Zero values mean no filter.
type Query struct {
	Variant string              `json:"variant,omitempty"`
	From    time.Time           `json:"from,omitzero"`
	To      time.Time           `json:"to,omitzero"`
	Equals  map[string][]string `json:"equals,omitempty"`
	Ranges  map[string]Range    `json:"ranges,omitempty"`
	// Search keeps records where any field contains the term.
	Search string `json:"search,omitempty"`
}

// Range bounds a numeric field inclusively. A nil bound is open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Bounds returns the range with open ends as infinities.
func (r Range) Bounds() (lo, hi float64) {
	lo, hi = math.Inf(-1), math.Inf(1)
	if r.Min != nil {
		lo = *r.Min
	}
	if r.Max != nil {
		hi = *r.Max
	}
	return lo, hi
}
