package api

import (
	"net/http"
)

// PageLister lists the configured pages.
type PageLister interface {
	Pages() []PageInfo
}

// PagesHandler handles page listing requests.
type PagesHandler struct {
	deps PageLister
}

// NewPagesHandler creates a new pages handler.
func NewPagesHandler(deps PageLister) *PagesHandler {
	return &PagesHandler{deps: deps}
}

// HandleListPages handles GET /pages requests.
func (h *PagesHandler) HandleListPages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Pages())
}
