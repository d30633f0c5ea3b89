package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// reserved paths never fall back to the front-end.
func reserved(p string) bool {
	return strings.HasPrefix(p, "/api/") || p == "/api" || p == "/health" || p == "/export"
}

// Static serves the built front-end from dir. Unknown paths get index.html
// so client-side routes survive a reload.
func Static(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		if reserved(r.URL.Path) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}

		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if fi, err := os.Stat(name); err == nil && !fi.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, index)
	}
}
