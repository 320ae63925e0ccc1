package server

import (
	"embed"
	"io/fs"
	"net/http"
)

// assets holds the pages under static/ and their css and js.
//
//go:embed static
var assets embed.FS

// pageNames are the HTML pages served at /<name>.
var pageNames = []string{"dashboard", "games", "dlc", "fixes", "search"}

func staticFiles() http.Handler {
	sub, _ := fs.Sub(assets, "static") // cannot fail: the directory is embedded
	return http.FileServerFS(sub)
}

func (s *Server) handlePage(name string) http.HandlerFunc {
	file := "static/" + name + ".html"
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := assets.ReadFile(file)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page) //nolint:errcheck
	}
}
