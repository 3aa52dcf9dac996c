package site

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// FS returns an http.FileSystem rooted at the embedded dashboard.
func FS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return http.FS(staticFS)
	}
	return http.FS(sub)
}

// Index returns the dashboard index page.
func Index() ([]byte, error) {
	b, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		return nil, errors.Join(ErrAssetMissing, err)
	}
	return b, nil
}
