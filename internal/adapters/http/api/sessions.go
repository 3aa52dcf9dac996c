package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// SessionManager starts and reports dashboard sessions. NewSession always
// drops cached sheets; JoinSession serves visitors that arrive without one.
type SessionManager interface {
	Session() uuid.UUID
	NewSession(ctx context.Context) uuid.UUID
	JoinSession(ctx context.Context) uuid.UUID
}

// CacheInvalidator drops cached sheets.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, page string) (int, error)
}

type sessionResponse struct {
	Session string `json:"session"`
}

type invalidateResponse struct {
	Page    string `json:"page,omitempty"`
	Dropped int    `json:"dropped"`
}

// SessionsHandler handles session requests.
type SessionsHandler struct {
	deps   SessionManager
	cookie string
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionManager, cookie string) *SessionsHandler {
	return &SessionsHandler{deps: deps, cookie: cookie}
}

// HandleNewSession handles POST /sessions: cached sheets are dropped and a
// new session cookie is set.
func (h *SessionsHandler) HandleNewSession(w http.ResponseWriter, r *http.Request) {
	id := h.deps.NewSession(r.Context())
	setSessionCookie(w, h.cookie, id)
	writeJSON(w, http.StatusCreated, sessionResponse{Session: id.String()})
}

// CacheHandler handles cache requests.
type CacheHandler struct {
	deps CacheInvalidator
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(deps CacheInvalidator) *CacheHandler {
	return &CacheHandler{deps: deps}
}

// HandleInvalidate handles POST /cache/invalidate?page=. Without a page
// every page is invalidated.
func (h *CacheHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	page := r.URL.Query().Get("page")
	n, err := h.deps.Invalidate(r.Context(), page)
	if err != nil {
		writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invalidateResponse{Page: page, Dropped: n})
}

func setSessionCookie(w http.ResponseWriter, name string, id uuid.UUID) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    id.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
