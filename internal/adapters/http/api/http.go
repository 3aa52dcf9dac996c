// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	service "github.com/okian/crewboard/internal/app"
	"github.com/okian/crewboard/internal/report"
)

// Default API configuration constants.
const defaultSessionCookie = "crew_session"

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PageLister
	ReportBuilder
	SessionManager
	CacheInvalidator
}

// PageInfo mirrors the page listing shape.
type PageInfo = service.PageInfo

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithSessionCookie sets the name of the session cookie.
func WithSessionCookie(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.cookie = name
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	cookie string

	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	pagesHandler    *PagesHandler
	reportsHandler  *ReportsHandler
	sessionsHandler *SessionsHandler
	cacheHandler    *CacheHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{cookie: defaultSessionCookie}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.pagesHandler = NewPagesHandler(deps)
	s.reportsHandler = NewReportsHandler(deps)
	s.sessionsHandler = NewSessionsHandler(deps, s.cookie)
	s.cacheHandler = NewCacheHandler(deps)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux, deps Dependencies) {
	session := func(next http.HandlerFunc) http.HandlerFunc {
		return SessionMiddleware(next, deps, s.cookie)
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /pages", MetricsMiddleware(s.pagesHandler.HandleListPages, "pages"))
	mux.HandleFunc("GET /reports/{page}", MetricsMiddleware(session(s.reportsHandler.HandleGetReport), "report"))
	mux.HandleFunc("GET /reports/{page}/export.xlsx", MetricsMiddleware(session(s.reportsHandler.HandleExportXLSX), "export_xlsx"))
	mux.HandleFunc("GET /reports/{page}/summary.csv", MetricsMiddleware(session(s.reportsHandler.HandleSummaryCSV), "summary_csv"))
	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionsHandler.HandleNewSession, "sessions"))
	mux.HandleFunc("POST /cache/invalidate", MetricsMiddleware(s.cacheHandler.HandleInvalidate, "cache_invalidate"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeReportError maps a report failure to its status code. The message is
// the report error text, "cannot build report: ...".
func writeReportError(w http.ResponseWriter, err error) {
	var re *report.Error
	if !errors.As(err, &re) {
		writeError(w, http.StatusInternalServerError, string(report.KindInternal), err)
		return
	}
	writeJSON(w, statusFor(re.Kind), errorResponse{Code: string(re.Kind), Message: re.Error()})
}

func statusFor(kind report.Kind) int {
	switch kind {
	case report.KindFetch:
		return http.StatusBadGateway
	case report.KindFormat, report.KindSchema, report.KindEmpty:
		return http.StatusUnprocessableEntity
	case report.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// sessionIDFrom returns the session carried by r, if any.
func sessionIDFrom(r *http.Request, cookie string) (uuid.UUID, bool) {
	c, err := r.Cookie(cookie)
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
