package api

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/internal/domain/normalize"
	"github.com/okian/crewboard/internal/report"
)

// Reserved query parameters. A parameter ending in .min or .max bounds a
// numeric field; every other parameter is an equality filter.
const (
	paramVariant = "variant"
	paramFrom    = "from"
	paramTo      = "to"
	paramSearch  = "q"
	suffixMin    = ".min"
	suffixMax    = ".max"
)

// parseQuery reads a report query. Dates use the 2006-01-02 layout.
func parseQuery(v url.Values) (report.Query, error) {
	q := report.Query{Variant: v.Get(paramVariant), Search: strings.TrimSpace(v.Get(paramSearch))}
	var err error
	if q.From, err = parseDay(v.Get(paramFrom)); err != nil {
		return report.Query{}, fmt.Errorf("from: %w", err)
	}
	if q.To, err = parseDay(v.Get(paramTo)); err != nil {
		return report.Query{}, fmt.Errorf("to: %w", err)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return report.Query{}, fmt.Errorf("to %s is before from %s", v.Get(paramTo), v.Get(paramFrom))
	}
	for key, values := range v {
		switch key {
		case paramVariant, paramFrom, paramTo, paramSearch:
			continue
		}
		if field, ok := strings.CutSuffix(key, suffixMin); ok && field != "" {
			if err := setBound(&q, field, v.Get(key), true); err != nil {
				return report.Query{}, err
			}
			continue
		}
		if field, ok := strings.CutSuffix(key, suffixMax); ok && field != "" {
			if err := setBound(&q, field, v.Get(key), false); err != nil {
				return report.Query{}, err
			}
			continue
		}
		if q.Equals == nil {
			q.Equals = make(map[string][]string)
		}
		q.Equals[key] = values
	}
	for field, r := range q.Ranges {
		if lo, hi := r.Bounds(); hi < lo {
			return report.Query{}, fmt.Errorf("%s: max %g is below min %g", field, hi, lo)
		}
	}
	return q, nil
}

func setBound(q *report.Query, field, raw string, isMin bool) error {
	x, ok := normalize.ParseNumber(raw, nil)
	if !ok {
		return fmt.Errorf("%s: %q is not a number", field, raw)
	}
	if q.Ranges == nil {
		q.Ranges = make(map[string]report.Range)
	}
	r := q.Ranges[field]
	if isMin {
		r.Min = &x
	} else {
		r.Max = &x
	}
	q.Ranges[field] = r
	return nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dataset.DateLayout, s)
}
