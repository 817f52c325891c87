// Package web serves the embedded single-page workflow UI.
package web

import (
	"embed"
	"net/http"
)

//go:embed static/index.html
var staticFS embed.FS

// Handler returns the handler for the root page. Any other path under /
// is a 404 so API typos do not silently serve HTML.
func Handler() http.HandlerFunc {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		panic(err)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	}
}
