// Package site serves the embedded posture dashboard.
package site

import (
	"context"
	"net/http"
)

// Register attaches the dashboard routes to mux.
//
//	GET /            -> dashboard (index.html, app.js, style.css)
//	GET /dashboard   -> redirect to /
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	files := http.FileServer(FS())
	mux.Handle("/", noCache(files))
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
}

// noCache keeps browsers from pinning an old dashboard after an upgrade.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}
