package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okian/crewboard/internal/adapters/export"
	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/internal/domain/normalize"
	"github.com/okian/crewboard/internal/report"
)

// Output formats for the report command.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var errRangeSyntax = errors.New("want field=min:max")

// queryFlags are shared by report and export.
type queryFlags struct {
	variant string
	from    string
	to      string
	filters []string
	ranges  []string
	search  string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.variant, "variant", "", "source variant, such as M03 or saida-2")
	cmd.Flags().StringVar(&f.from, "from", "", "first day included (2006-01-02)")
	cmd.Flags().StringVar(&f.to, "to", "", "last day included (2006-01-02)")
	cmd.Flags().StringArrayVar(&f.filters, "filter", nil, "field=value equality filter, repeatable")
	cmd.Flags().StringArrayVar(&f.ranges, "range", nil, "field=min:max numeric filter, either side may be empty, repeatable")
	cmd.Flags().StringVar(&f.search, "search", "", "keep rows where any field contains this text")
}

func (f *queryFlags) query() (report.Query, error) {
	q := report.Query{Variant: f.variant, Search: strings.TrimSpace(f.search)}
	var err error
	if f.from != "" {
		if q.From, err = time.Parse(dataset.DateLayout, f.from); err != nil {
			return report.Query{}, fmt.Errorf("--from: %w", err)
		}
	}
	if f.to != "" {
		if q.To, err = time.Parse(dataset.DateLayout, f.to); err != nil {
			return report.Query{}, fmt.Errorf("--to: %w", err)
		}
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return report.Query{}, fmt.Errorf("--to %s is before --from %s", f.to, f.from)
	}
	for _, kv := range f.filters {
		field, value, ok := strings.Cut(kv, "=")
		if !ok || field == "" {
			return report.Query{}, fmt.Errorf("--filter %q: want field=value", kv)
		}
		if q.Equals == nil {
			q.Equals = make(map[string][]string)
		}
		q.Equals[field] = append(q.Equals[field], value)
	}
	for _, kv := range f.ranges {
		field, r, err := parseRange(kv)
		if err != nil {
			return report.Query{}, fmt.Errorf("--range %q: %w", kv, err)
		}
		if q.Ranges == nil {
			q.Ranges = make(map[string]report.Range)
		}
		q.Ranges[field] = r
	}
	return q, nil
}

func parseRange(kv string) (string, report.Range, error) {
	field, bounds, ok := strings.Cut(kv, "=")
	if !ok || field == "" {
		return "", report.Range{}, errRangeSyntax
	}
	lo, hi, ok := strings.Cut(bounds, ":")
	if !ok {
		return "", report.Range{}, errRangeSyntax
	}
	var r report.Range
	for _, b := range []struct {
		raw string
		dst **float64
	}{{lo, &r.Min}, {hi, &r.Max}} {
		if strings.TrimSpace(b.raw) == "" {
			continue
		}
		x, ok := normalize.ParseNumber(b.raw, nil)
		if !ok {
			return "", report.Range{}, fmt.Errorf("%q is not a number", b.raw)
		}
		*b.dst = &x
	}
	if l, h := r.Bounds(); h < l {
		return "", report.Range{}, errors.New("max is below min")
	}
	return field, r, nil
}

func newPagesCmd(factory serviceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "pages",
		Short: "List report pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, factory, func(svc reporter) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PAGE\tTITLE\tVARIANTS")
				for _, p := range svc.Pages() {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Title, strings.Join(p.Variants, ","))
				}
				return tw.Flush()
			})
		},
	}
}

func newReportCmd(factory serviceFactory) *cobra.Command {
	var (
		flags  queryFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "report <page>",
		Short: "Print a page report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case formatText, formatJSON, formatYAML:
			default:
				return fmt.Errorf("--format %q: want text, json or yaml", format)
			}
			q, err := flags.query()
			if err != nil {
				return err
			}
			return withService(cmd, factory, func(svc reporter) error {
				rep, err := svc.Report(cmd.Context(), args[0], q)
				if err != nil {
					return err
				}
				return writeReport(cmd.OutOrStdout(), rep, format)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, json or yaml")
	return cmd
}

func newExportCmd(factory serviceFactory) *cobra.Command {
	var (
		flags queryFlags
		out   string
	)
	cmd := &cobra.Command{
		Use:   "export <page>",
		Short: "Write a page report as an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.query()
			if err != nil {
				return err
			}
			return withService(cmd, factory, func(svc reporter) error {
				rep, err := svc.Report(cmd.Context(), args[0], q)
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = args[0] + ".xlsx"
				}
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := export.XLSX(f, rep); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <page>.xlsx)")
	return cmd
}

func writeReport(w io.Writer, rep *report.Report, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(summaryOf(rep)); err != nil {
			return err
		}
		return enc.Close()
	}
	return writeText(w, rep)
}

// reportSummary is the YAML view of a report; the row-level dataset is left
// out.
type reportSummary struct {
	Page       string                        `yaml:"page"`
	Title      string                        `yaml:"title"`
	Variant    string                        `yaml:"variant,omitempty"`
	Rows       int                           `yaml:"rows"`
	Groups     map[string]map[string]float64 `yaml:"groups"`
	Highlights []report.Highlight            `yaml:"highlights,omitempty"`
	Breakdowns map[string][]report.Bucket    `yaml:"breakdowns,omitempty"`
	Insights   []string                      `yaml:"insights"`
}

func summaryOf(rep *report.Report) reportSummary {
	s := reportSummary{
		Page:       rep.Page,
		Title:      rep.Title,
		Variant:    rep.Variant,
		Rows:       rep.Dataset.Len(),
		Groups:     make(map[string]map[string]float64, len(rep.Aggregates)),
		Highlights: rep.Highlights,
		Breakdowns: rep.Breakdowns,
		Insights:   make([]string, 0, len(rep.Insights)),
	}
	for _, a := range rep.Aggregates {
		s.Groups[a.Label] = a.Stats
	}
	for _, in := range rep.Insights {
		s.Insights = append(s.Insights, in.Message)
	}
	return s
}

func writeText(w io.Writer, rep *report.Report) error {
	title := rep.Title
	if rep.Variant != "" {
		title += " (" + rep.Variant + ")"
	}
	fmt.Fprintf(w, "%s\n%d registros\n\n", title, rep.Dataset.Len())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "grupo\tregistros")
	for _, c := range rep.Columns {
		fmt.Fprintf(tw, "\t%s", c)
	}
	fmt.Fprintln(tw, "\t")
	for _, a := range rep.Aggregates {
		fmt.Fprintf(tw, "%s\t%d", a.Label, a.Count)
		for _, c := range rep.Columns {
			if v, ok := a.Get(c); ok {
				fmt.Fprintf(tw, "\t%.2f", v)
			} else {
				fmt.Fprint(tw, "\t-")
			}
		}
		fmt.Fprintln(tw, "\t")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(rep.Highlights) > 0 {
		fmt.Fprintln(w)
		for _, h := range rep.Highlights {
			fmt.Fprintf(w, "%s: %s (%.2f)\n", h.Title, h.Group, h.Value)
		}
	}
	for _, field := range slices.Sorted(maps.Keys(rep.Breakdowns)) {
		fmt.Fprintf(w, "\n%s:", field)
		for _, b := range rep.Breakdowns[field] {
			fmt.Fprintf(w, " %s=%d", b.Value, b.Count)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
	for _, in := range rep.Insights {
		fmt.Fprintf(w, "[%s] %s\n", in.Severity, in.Message)
	}
	return nil
}
