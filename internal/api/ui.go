package api

import (
	"io/fs"
	"net/http"
	"path"
)

// uiHandler serves the bundled web interface.
//
// Unknown paths fall back to index.html so client-side routing works.
func uiHandler(ui fs.FS) http.Handler {
	fileSystem := http.FS(ui)
	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The bundle changes with every version code; never let a browser
		// keep a stale index.html.
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		upath := path.Clean("/" + r.URL.Path)
		if upath == "/" {
			fileServer.ServeHTTP(w, r)
			return
		}

		f, err := fileSystem.Open(upath)
		if err != nil {
			index := r.Clone(r.Context())
			index.URL.Path = "/"
			fileServer.ServeHTTP(w, index)
			return
		}
		f.Close()

		fileServer.ServeHTTP(w, r)
	})
}
