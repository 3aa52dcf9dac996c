// Package export writes reports as spreadsheet downloads.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/okian/crewboard/internal/domain/aggregate"
	"github.com/okian/crewboard/internal/domain/dataset"
	"github.com/okian/crewboard/internal/report"
)

// Sheet names used in workbook exports.
const (
	SheetData     = "Dados"
	SheetSummary  = "Resumo"
	SheetInsights = "Insights"
	// SheetBreakdowns is only written when the report has breakdowns.
	SheetBreakdowns = "Contagens"
)

const defaultSheet = "Sheet1"

// XLSX writes rep as a workbook with the filtered rows, the per-group
// summary and the recommendations.
func XLSX(w io.Writer, rep *report.Report) error {
	if rep == nil {
		return ErrNilReport
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}

	if err := f.SetSheetName(defaultSheet, SheetData); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}
	if err := writeSheet(f, SheetData, header, dataRows(rep)); err != nil {
		return err
	}
	type sheet struct {
		name string
		rows [][]any
	}
	sheets := []sheet{
		{SheetSummary, summaryRows(rep)},
		{SheetInsights, insightRows(rep)},
	}
	if len(rep.Breakdowns) > 0 {
		sheets = append(sheets, sheet{SheetBreakdowns, breakdownRows(rep)})
	}
	for _, s := range sheets {
		if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("export: new sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s.name, header, s.rows); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

// SummaryCSV writes the per-group summary, one row per group.
func SummaryCSV(w io.Writer, rep *report.Report) error {
	if rep == nil {
		return ErrNilReport
	}
	cw := csv.NewWriter(w)
	for _, row := range summaryRows(rep) {
		rec := make([]string, len(row))
		for i, cell := range row {
			rec[i] = cellString(cell)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("export: write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeSheet(f *excelize.File, sheet string, style int, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("export: %s row %d: %w", sheet, i+1, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("export: %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil
	}
	last, err := excelize.ColumnNumberToName(len(rows[0]))
	if err != nil {
		return fmt.Errorf("export: %s header: %w", sheet, err)
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", style); err != nil {
		return fmt.Errorf("export: %s header: %w", sheet, err)
	}
	return nil
}

func dataRows(rep *report.Report) [][]any {
	ds := rep.Dataset
	rows := make([][]any, 0, ds.Len()+1)
	rows = append(rows, anySlice(ds.Fields))
	for _, rec := range ds.Records {
		row := make([]any, len(ds.Fields))
		for i, field := range ds.Fields {
			v := rec[field]
			switch {
			case v.Missing:
				row[i] = nil
			case v.Kind == dataset.KindNumeric:
				row[i] = v.Num
			default:
				row[i] = v.String()
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func summaryRows(rep *report.Report) [][]any {
	cols := rep.Columns
	if len(cols) == 0 {
		cols = statNames(rep.Aggregates)
	}
	head := append([]any{"grupo", "registros"}, anySlice(cols)...)
	rows := [][]any{head}
	for _, a := range rep.Aggregates {
		row := []any{a.Label, a.Count}
		for _, c := range cols {
			if v, ok := a.Get(c); ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func insightRows(rep *report.Report) [][]any {
	rows := [][]any{{"regra", "nivel", "grupo", "valor", "mensagem"}}
	for _, in := range rep.Insights {
		rows = append(rows, []any{in.Rule, string(in.Severity), in.Group, in.Value, in.Message})
	}
	return rows
}

func breakdownRows(rep *report.Report) [][]any {
	rows := [][]any{{"campo", "valor", "registros"}}
	for _, field := range slices.Sorted(maps.Keys(rep.Breakdowns)) {
		for _, b := range rep.Breakdowns[field] {
			rows = append(rows, []any{field, b.Value, b.Count})
		}
	}
	return rows
}

func statNames(aggs []aggregate.Aggregate) []string {
	if len(aggs) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, a := range aggs {
		for name := range a.Stats {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	slices.Sort(out)
	return out
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
