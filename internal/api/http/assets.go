package http

import (
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-testroom/internal/storage"
)

// MountAssets serves stored blobs read-only under the router's prefix.
func MountAssets(r chi.Router, bs storage.BlobStore) {
	// GET /assets/*   -> returns the blob at whatever follows /assets/
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key, err := storage.CleanKey(chi.URLParam(r, "*"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		rc, err := bs.Open(r.Context(), key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer rc.Close()
		ct := mime.TypeByExtension(path.Ext(key))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		_, _ = io.Copy(w, rc)
	})
}
