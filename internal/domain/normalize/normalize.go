// Package normalize cleans raw spreadsheet datasets into typed values.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/okian/crewboard/internal/domain/dataset"
)

// Stats summarizes one normalization run.
type Stats struct {
	InputRows     int            `json:"input_rows"`
	KeptRows      int            `json:"kept_rows"`
	DroppedRows   int            `json:"dropped_rows"`
	ParseFailures map[string]int `json:"parse_failures,omitempty"`
}

var (
	dateLayouts = []string{ //nolint:gochecknoglobals // parse table
		"2/1/2006", "2/1/2006 15:04:05", "2/1/2006 15:04",
		"2/1/06", "2/1/06 15:04:05", "2/1/06 15:04",
		"2-1-2006", "2-1-2006 15:04:05", "2-1-2006 15:04",
		"2.1.2006",
		"2006-01-02", "2006-01-02 15:04:05", time.RFC3339,
	}
	symbolStripper = strings.NewReplacer("°", "", "º", "", "˚", "", "%", "") //nolint:gochecknoglobals // immutable
	unitSuffixes   = []string{"deg", "mm", "cm", "ms", "m", "s"}             //nolint:gochecknoglobals // longest first
)

// Headers trims field names, makes them unique and renames aliased columns
// to their spec names. Values are left untouched.
func Headers(raw dataset.Dataset, specs []dataset.FieldSpec) dataset.Dataset {
	trimmed := make([]string, len(raw.Fields))
	for i, f := range raw.Fields {
		trimmed[i] = strings.TrimSpace(f)
	}
	fields := dataset.UniqueNames(trimmed)

	fold := cases.Fold()
	folded := make([]string, len(fields))
	for i, f := range fields {
		folded[i] = fold.String(f)
	}
	taken := make(map[string]bool, len(fields))
	for _, f := range fields {
		taken[f] = true
	}
	renamed := append([]string(nil), fields...)
	for _, spec := range specs {
		if taken[spec.Name] {
			continue
		}
		candidates := append([]string{spec.Name}, spec.Aliases...)
	search:
		for _, c := range candidates {
			want := fold.String(strings.TrimSpace(c))
			for i, f := range folded {
				if f == want && renamed[i] == fields[i] {
					renamed[i] = spec.Name
					taken[spec.Name] = true
					break search
				}
			}
		}
	}

	out := dataset.Dataset{Fields: renamed, Records: make([]dataset.Record, len(raw.Records))}
	for i, r := range raw.Records {
		rec := make(dataset.Record, len(renamed))
		for j, name := range renamed {
			rec[name] = r[raw.Fields[j]]
		}
		out.Records[i] = rec
	}
	return out
}

// Normalize converts raw text values to the kinds named by specs. Records
// missing a required value are dropped; columns for optional specs that the
// source lacks are added as missing. A required or must-exist column absent
// from the header is a *SchemaError. Normalizing an already normalized dataset returns
// an equal dataset.
func Normalize(raw dataset.Dataset, specs []dataset.FieldSpec) (dataset.Dataset, Stats, error) {
	stats := Stats{InputRows: raw.Len(), ParseFailures: map[string]int{}}
	ds := Headers(raw, specs)

	var missing []string
	for _, spec := range specs {
		if (spec.Required || spec.MustExist) && !ds.HasField(spec.Name) {
			missing = append(missing, spec.Name)
		}
	}
	if len(missing) > 0 {
		return dataset.Dataset{}, stats, &SchemaError{Missing: missing}
	}

	patterns := make(map[string]*regexp.Regexp)
	for _, spec := range specs {
		if spec.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return dataset.Dataset{}, stats, fmt.Errorf("field %q: %w: %v", spec.Name, dataset.ErrBadPattern, err)
		}
		patterns[spec.Name] = re
	}
	for _, spec := range specs {
		if !ds.HasField(spec.Name) {
			ds.Fields = append(ds.Fields, spec.Name)
		}
	}

	out := dataset.Dataset{Fields: ds.Fields, Records: make([]dataset.Record, 0, ds.Len())}
	for _, r := range ds.Records {
		keep := true
		for _, spec := range specs {
			v, ok := r[spec.Name]
			if !ok {
				v = dataset.Missing(spec.Kind)
			}
			nv := convert(v, spec.Kind, patterns[spec.Name])
			if nv.Missing && !v.Missing && strings.TrimSpace(v.Raw) != "" {
				stats.ParseFailures[spec.Name]++
			}
			r[spec.Name] = nv
			if spec.Required && nv.Missing {
				keep = false
			}
		}
		if keep {
			out.Records = append(out.Records, r)
		}
	}
	stats.KeptRows = out.Len()
	stats.DroppedRows = stats.InputRows - stats.KeptRows
	return out, stats, nil
}

func convert(v dataset.Value, kind dataset.Kind, pattern *regexp.Regexp) dataset.Value {
	if v.Kind == kind {
		if kind == dataset.KindText && !v.Missing {
			return text(v.Raw, kind)
		}
		return v
	}
	if v.Missing {
		return dataset.Missing(kind)
	}
	src := v.String()
	switch kind {
	case dataset.KindNumeric:
		if f, ok := ParseNumber(src, pattern); ok {
			return dataset.Number(f)
		}
	case dataset.KindDate:
		if t, ok := ParseDate(src); ok {
			return dataset.Date(t)
		}
	default:
		return text(src, kind)
	}
	return dataset.Missing(kind)
}

func text(s string, kind dataset.Kind) dataset.Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return dataset.Missing(kind)
	}
	if kind == dataset.KindCategorical {
		return dataset.Category(s)
	}
	return dataset.Text(s)
}

// ParseNumber reads spreadsheet numbers such as "3,50°", "12 mm" or "85%".
// When pattern is set, its first capture group (or whole match) is parsed
// instead of the full text. Non-finite results are rejected.
func ParseNumber(s string, pattern *regexp.Regexp) (float64, bool) {
	s = strings.TrimSpace(s)
	if pattern != nil {
		m := pattern.FindStringSubmatch(s)
		switch {
		case m == nil:
			return 0, false
		case len(m) > 1:
			s = m[1]
		default:
			s = m[0]
		}
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, ",", ".")
	s = symbolStripper.Replace(s)
	lower := strings.ToLower(s)
	for _, unit := range unitSuffixes {
		if strings.HasSuffix(lower, unit) {
			s = s[:len(s)-len(unit)]
			break
		}
	}
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseDate reads day-first dates, falling back to ISO layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
