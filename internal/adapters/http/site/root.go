// Package site serves the embedded dashboard that renders report pages.
package site

import (
	"context"
	"errors"
	"net/http"
)

// ErrAssetMissing is returned when an embedded asset cannot be read.
var ErrAssetMissing = errors.New("dashboard asset missing")

// Register attaches the embedded dashboard routes to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.Handle("GET /", NewRootHandler())
}

// RootHandler serves the dashboard index and its assets.
type RootHandler struct {
	files http.Handler
}

// NewRootHandler creates a new root handler
func NewRootHandler() *RootHandler {
	return &RootHandler{files: http.FileServer(FS())}
}

// ServeHTTP serves GET / and static assets. Unknown paths under a page name,
// such as /estabilidade, fall back to the index so links can be shared.
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && !exists(r.URL.Path) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/"
		h.files.ServeHTTP(w, r2)
		return
	}
	h.files.ServeHTTP(w, r)
}

func exists(path string) bool {
	f, err := FS().Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
