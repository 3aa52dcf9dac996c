// Package dataset defines the tabular model shared by every pipeline stage:
// values, records, datasets and field specifications.
package dataset

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the semantic type of a field.
type Kind string

// Supported field kinds.
const (
	KindText        Kind = "text"
	KindNumeric     Kind = "numeric"
	KindDate        Kind = "date"
	KindCategorical Kind = "categorical"
)

// DateLayout is the canonical rendering of date values.
const DateLayout = "2006-01-02"

// Value is one cell. Raw keeps the source text; Num and Time hold the parsed
// value for numeric and date kinds.
type Value struct {
	Kind    Kind
	Raw     string
	Num     float64
	Time    time.Time
	Missing bool
}

// Text returns an unparsed text value.
func Text(raw string) Value { return Value{Kind: KindText, Raw: raw} }

// Number returns a numeric value.
func Number(f float64) Value {
	return Value{Kind: KindNumeric, Raw: strconv.FormatFloat(f, 'f', -1, 64), Num: f}
}

// Date returns a date value.
func Date(t time.Time) Value {
	return Value{Kind: KindDate, Raw: t.Format(DateLayout), Time: t}
}

// Category returns a categorical value.
func Category(s string) Value { return Value{Kind: KindCategorical, Raw: s} }

// Missing returns a missing value of the given kind.
func Missing(kind Kind) Value { return Value{Kind: kind, Missing: true} }

// String renders the value for display and for equality filters.
func (v Value) String() string {
	if v.Missing {
		return ""
	}
	switch v.Kind {
	case KindNumeric:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindDate:
		return v.Time.Format(DateLayout)
	default:
		return v.Raw
	}
}

// Key is the canonical grouping key. Two values with the same Key belong to
// the same group.
func (v Value) Key() string {
	if v.Missing {
		return ""
	}
	return string(v.Kind) + ":" + v.String()
}

// Compare orders two values of the same kind: numerically, chronologically or
// lexically. Missing values sort last.
func (v Value) Compare(o Value) int {
	switch {
	case v.Missing && o.Missing:
		return 0
	case v.Missing:
		return 1
	case o.Missing:
		return -1
	}
	if v.Kind == KindNumeric && o.Kind == KindNumeric {
		switch {
		case v.Num < o.Num:
			return -1
		case v.Num > o.Num:
			return 1
		}
		return 0
	}
	if v.Kind == KindDate && o.Kind == KindDate {
		return v.Time.Compare(o.Time)
	}
	return strings.Compare(v.String(), o.String())
}

// MarshalJSON renders missing values as null and numbers as JSON numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Missing {
		return []byte("null"), nil
	}
	if v.Kind == KindNumeric {
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.Num)
	}
	return json.Marshal(v.String())
}

// Record maps field name to value.
type Record map[string]Value

// Get returns the value of field and whether the record has it.
func (r Record) Get(field string) (Value, bool) {
	v, ok := r[field]
	return v, ok
}

// Float returns the numeric value of field when present and not missing.
func (r Record) Float(field string) (float64, bool) {
	v, ok := r[field]
	if !ok || v.Missing || v.Kind != KindNumeric {
		return 0, false
	}
	return v.Num, true
}

func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Dataset is an ordered collection of records sharing Fields.
type Dataset struct {
	Fields  []string `json:"fields"`
	Records []Record `json:"records"`
}

// FromRows builds a raw text dataset. Rows shorter than the header get
// missing trailing values.
func FromRows(header []string, rows [][]string) Dataset {
	fields := UniqueNames(header)
	ds := Dataset{Fields: fields, Records: make([]Record, 0, len(rows))}
	for _, row := range rows {
		rec := make(Record, len(fields))
		for i, f := range fields {
			if i < len(row) {
				rec[f] = Text(row[i])
			} else {
				rec[f] = Missing(KindText)
			}
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds
}

// Len returns the number of records.
func (d Dataset) Len() int { return len(d.Records) }

// HasField reports whether name is one of the dataset's fields.
func (d Dataset) HasField(name string) bool {
	for _, f := range d.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy; records can be modified without affecting d.
func (d Dataset) Clone() Dataset {
	out := Dataset{
		Fields:  append([]string(nil), d.Fields...),
		Records: make([]Record, len(d.Records)),
	}
	for i, r := range d.Records {
		out.Records[i] = r.clone()
	}
	return out
}

// Column returns the values of field in record order.
func (d Dataset) Column(field string) []Value {
	out := make([]Value, 0, len(d.Records))
	for _, r := range d.Records {
		out = append(out, r[field])
	}
	return out
}

// Filter returns a dataset with the records for which keep returns true.
// Records are shared, not copied.
func (d Dataset) Filter(keep func(Record) bool) Dataset {
	out := Dataset{Fields: append([]string(nil), d.Fields...)}
	for _, r := range d.Records {
		if keep(r) {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// FieldSpec describes how one column is normalized.
type FieldSpec struct {
	Name     string `koanf:"name" yaml:"name" json:"name" validate:"required"`
	Kind     Kind   `koanf:"kind" yaml:"kind" json:"kind" validate:"required,oneof=numeric date categorical text"`
	Required bool   `koanf:"required" yaml:"required" json:"required"`
	// MustExist rejects a source whose header lacks the column, without
	// dropping records where the value is blank.
	MustExist bool     `koanf:"must_exist" yaml:"must_exist" json:"must_exist,omitempty"`
	Aliases   []string `koanf:"aliases" yaml:"aliases" json:"aliases,omitempty"`
	// Pattern extracts the numeric token from text such as "Rotação 1".
	Pattern string `koanf:"pattern" yaml:"pattern" json:"pattern,omitempty"`
}
