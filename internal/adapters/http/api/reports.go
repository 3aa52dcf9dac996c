package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/okian/crewboard/internal/adapters/export"
	"github.com/okian/crewboard/internal/report"
)

// ReportBuilder builds one page report.
type ReportBuilder interface {
	Report(ctx context.Context, page string, q report.Query) (*report.Report, error)
}

// ReportsHandler serves reports and their downloads.
type ReportsHandler struct {
	deps ReportBuilder
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps ReportBuilder) *ReportsHandler {
	return &ReportsHandler{deps: deps}
}

// HandleGetReport handles GET /reports/{page}?variant=&from=&to=&<field>=v.
func (h *ReportsHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.build(w, r, "api.get_report")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleExportXLSX handles GET /reports/{page}/export.xlsx.
func (h *ReportsHandler) HandleExportXLSX(w http.ResponseWriter, r *http.Request) {
	const op = "api.export_xlsx"
	rep, ok := h.build(w, r, op)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.XLSX(&buf, rep); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment(rep, "xlsx"))
	_, _ = w.Write(buf.Bytes())
}

// HandleSummaryCSV handles GET /reports/{page}/summary.csv.
func (h *ReportsHandler) HandleSummaryCSV(w http.ResponseWriter, r *http.Request) {
	const op = "api.summary_csv"
	rep, ok := h.build(w, r, op)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.SummaryCSV(&buf, rep); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(rep, "csv"))
	_, _ = w.Write(buf.Bytes())
}

func (h *ReportsHandler) build(w http.ResponseWriter, r *http.Request, op string) (*report.Report, bool) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return nil, false
	}
	rep, err := h.deps.Report(r.Context(), r.PathValue("page"), q)
	if err != nil {
		writeReportError(w, err)
		return nil, false
	}
	return rep, true
}

func attachment(rep *report.Report, ext string) string {
	name := rep.Page
	if rep.Variant != "" {
		name += "-" + rep.Variant
	}
	return fmt.Sprintf("attachment; filename=%q", name+"."+ext)
}
