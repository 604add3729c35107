// Package handler contains the HTTP handlers for the jokebox API.
//
// Handlers are glue: they decode the request, call a service, and write the
// response through writeJSON/writeError. Business rules live in
// internal/service; handlers never touch storage directly.
package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// SPAHandler serves a built single-page app from a directory.
//
// Existing files are served as is. Any other GET falls back to index.html
// so client-side routes like /jokes/123 survive a page reload.
type SPAHandler struct {
	dir    string
	index  string
	files  http.Handler
	logger *slog.Logger
}

// NewSPAHandler checks that dir holds an index.html.
func NewSPAHandler(dir string, logger *slog.Logger) (*SPAHandler, error) {
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return nil, fmt.Errorf("handler: static dir %s: %w", dir, err)
	}
	return &SPAHandler{
		dir:    dir,
		index:  index,
		files:  http.FileServer(http.Dir(dir)),
		logger: logger,
	}, nil
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "no such route"})
		return
	}

	// path.Clean on a rooted path can't climb above the root.
	name := filepath.Join(h.dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		h.files.ServeHTTP(w, r)
		return
	}

	f, err := os.Open(h.index)
	if err != nil {
		writeError(w, r, fmt.Errorf("handler: opening index: %w", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, r, fmt.Errorf("handler: stat index: %w", err))
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "index.html", info.ModTime(), f)
}
