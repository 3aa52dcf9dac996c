package dataset

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Op is a derived field operation.
type Op string

// Supported derive operations.
const (
	// OpAbsDiff is |Left - Right|.
	OpAbsDiff Op = "abs_diff"
	// OpDiff is Left - Right.
	OpDiff Op = "diff"
	// OpMatch is 100 when Left matches Pattern case-insensitively, else 0.
	OpMatch Op = "match"
	// OpPercentOf is Left / target * 100, target looked up by KeyField. With
	// ZeroMissing a blank Left scores 0.
	OpPercentOf Op = "percent_of"
)

const percent = 100

// DerivedField computes a new numeric field from existing ones.
type DerivedField struct {
	Name     string             `koanf:"name" yaml:"name" json:"name" validate:"required"`
	Op       Op                 `koanf:"op" yaml:"op" json:"op" validate:"required,oneof=abs_diff diff match percent_of"`
	Left     string             `koanf:"left" yaml:"left" json:"left" validate:"required"`
	Right    string             `koanf:"right" yaml:"right" json:"right,omitempty"`
	Pattern  string             `koanf:"pattern" yaml:"pattern" json:"pattern,omitempty"`
	KeyField string             `koanf:"key_field" yaml:"key_field" json:"key_field,omitempty"`
	Targets  map[string]float64 `koanf:"targets" yaml:"targets" json:"targets,omitempty"`
	Default  float64            `koanf:"default" yaml:"default" json:"default,omitempty"`
	// ZeroMissing treats a missing Left operand as 0 instead of yielding a
	// missing result.
	ZeroMissing bool `koanf:"zero_missing" yaml:"zero_missing" json:"zero_missing,omitempty"`
}

// Derive returns a copy of ds with every derived field appended in order.
// A derived field may reference fields derived before it. Missing operands
// yield a missing result, except for match where they count as no match.
func Derive(ds Dataset, fields []DerivedField) (Dataset, error) {
	out := ds.Clone()
	for _, df := range fields {
		fn, err := derivation(out, df)
		if err != nil {
			return Dataset{}, err
		}
		for _, r := range out.Records {
			r[df.Name] = fn(r)
		}
		if !out.HasField(df.Name) {
			out.Fields = append(out.Fields, df.Name)
		}
	}
	return out, nil
}

func derivation(ds Dataset, df DerivedField) (func(Record) Value, error) {
	if !ds.HasField(df.Left) {
		return nil, &FieldError{Field: df.Left, Err: ErrUnknownField}
	}
	switch df.Op {
	case OpAbsDiff, OpDiff:
		if !ds.HasField(df.Right) {
			return nil, &FieldError{Field: df.Right, Err: ErrUnknownField}
		}
		abs := df.Op == OpAbsDiff
		return func(r Record) Value {
			a, okA := r.Float(df.Left)
			b, okB := r.Float(df.Right)
			if !okA || !okB {
				return Missing(KindNumeric)
			}
			if abs {
				return Number(math.Abs(a - b))
			}
			return Number(a - b)
		}, nil
	case OpMatch:
		re, err := regexp.Compile("(?i)" + df.Pattern)
		if err != nil {
			return nil, &FieldError{Field: df.Name, Err: fmt.Errorf("%w: %v", ErrBadPattern, err)}
		}
		return func(r Record) Value {
			v := r[df.Left]
			if !v.Missing && re.MatchString(v.String()) {
				return Number(percent)
			}
			return Number(0)
		}, nil
	case OpPercentOf:
		if df.KeyField != "" && !ds.HasField(df.KeyField) {
			return nil, &FieldError{Field: df.KeyField, Err: ErrUnknownField}
		}
		return func(r Record) Value {
			a, ok := r.Float(df.Left)
			if !ok {
				if !df.ZeroMissing {
					return Missing(KindNumeric)
				}
				a = 0
			}
			target := df.Default
			if df.KeyField != "" {
				if t, found := df.Targets[r[df.KeyField].String()]; found {
					target = t
				}
			}
			if target == 0 {
				return Missing(KindNumeric)
			}
			return Number(a / target * percent)
		}, nil
	default:
		return nil, &FieldError{Field: df.Name, Err: fmt.Errorf("%w: %q", ErrUnknownOp, df.Op)}
	}
}

// UnpivotSpec melts the columns whose names match Match into
// (VarName, ValueName) rows. IDFields are copied onto every row; when empty,
// every non-matching field is kept.
type UnpivotSpec struct {
	Match     string   `koanf:"match" yaml:"match" json:"match" validate:"required"`
	IDFields  []string `koanf:"id_fields" yaml:"id_fields" json:"id_fields,omitempty"`
	VarName   string   `koanf:"var_name" yaml:"var_name" json:"var_name" validate:"required"`
	ValueName string   `koanf:"value_name" yaml:"value_name" json:"value_name" validate:"required"`
}

// Unpivot turns wide rows into long ones. Rows are emitted record by record,
// value columns in header order.
func Unpivot(ds Dataset, spec UnpivotSpec) (Dataset, error) {
	re, err := regexp.Compile(spec.Match)
	if err != nil {
		return Dataset{}, fmt.Errorf("%w: %v", ErrBadPattern, err)
	}
	var values, ids []string
	for _, f := range ds.Fields {
		if re.MatchString(f) && !slices.Contains(spec.IDFields, f) {
			values = append(values, f)
		} else if len(spec.IDFields) == 0 {
			ids = append(ids, f)
		}
	}
	if len(spec.IDFields) > 0 {
		for _, f := range spec.IDFields {
			if !ds.HasField(f) {
				return Dataset{}, &FieldError{Field: f, Err: ErrUnknownField}
			}
		}
		ids = append(ids, spec.IDFields...)
	}

	out := Dataset{Fields: append(slices.Clone(ids), spec.VarName, spec.ValueName)}
	out.Records = make([]Record, 0, len(ds.Records)*len(values))
	for _, r := range ds.Records {
		for _, f := range values {
			rec := make(Record, len(ids)+2)
			for _, id := range ids {
				rec[id] = r[id]
			}
			rec[spec.VarName] = Category(f)
			rec[spec.ValueName] = r[f]
			out.Records = append(out.Records, rec)
		}
	}
	return out, nil
}

// Between keeps records whose date field falls on a calendar day within
// [from, to]; the time of day is ignored on both sides. A zero bound is open.
// Records with a missing date are dropped once any bound is set.
func Between(field string, from, to time.Time) func(Record) bool {
	return func(r Record) bool {
		if from.IsZero() && to.IsZero() {
			return true
		}
		v := r[field]
		if v.Missing || v.Kind != KindDate {
			return false
		}
		d := calendarDay(v.Time)
		if !from.IsZero() && d.Before(calendarDay(from)) {
			return false
		}
		if !to.IsZero() && d.After(calendarDay(to)) {
			return false
		}
		return true
	}
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OneOf keeps records whose field renders as one of values. An empty values
// list keeps everything.
func OneOf(field string, values []string) func(Record) bool {
	return func(r Record) bool {
		if len(values) == 0 {
			return true
		}
		v := r[field]
		return !v.Missing && slices.Contains(values, v.String())
	}
}

// InRange keeps records whose numeric field lies within [lo, hi]. Use
// math.Inf for an open bound. Missing values are dropped.
func InRange(field string, lo, hi float64) func(Record) bool {
	return func(r Record) bool {
		x, ok := r.Float(field)
		return ok && x >= lo && x <= hi
	}
}

// Contains keeps records where any field, as typed in the sheet or as
// rendered, contains term ignoring case. An empty term keeps everything.
func Contains(term string) func(Record) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return func(Record) bool { return true }
	}
	fold := cases.Fold()
	needle := fold.String(term)
	return func(r Record) bool {
		for _, v := range r {
			if v.Missing {
				continue
			}
			if strings.Contains(fold.String(v.Raw), needle) || strings.Contains(fold.String(v.String()), needle) {
				return true
			}
		}
		return false
	}
}
