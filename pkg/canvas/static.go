package canvas

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/Scofieldfree/excalidraw-mcp/internal/frontend"
)

// =============================================================================
// Embedded SPA serving
// =============================================================================

// staticHandler serves the embedded frontend bundle. Unknown paths fall
// back to index.html so client-side routes survive a page reload; ETags
// are content hashes computed once per path.
type staticHandler struct {
	fsys   fs.FS
	logger *slog.Logger

	mu    sync.RWMutex
	etags map[string]string
}

func newStaticHandler(logger *slog.Logger) *staticHandler {
	return &staticHandler{
		fsys:   frontend.Dist,
		logger: logger,
		etags:  make(map[string]string),
	}
}

func (h *staticHandler) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	rel, ok := sanitizeStaticPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if rel == "" || !h.exists(rel) {
		// SPA fallback: every unknown GET path serves the app shell.
		rel = "index.html"
	}

	data, err := fs.ReadFile(h.fsys, rel)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	etag := h.etagFor(rel, data)
	w.Header().Set("ETag", etag)
	if rel == "index.html" {
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=3600, must-revalidate")
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	http.ServeContent(w, r, rel, time.Time{}, strings.NewReader(string(data)))
}

func (h *staticHandler) exists(rel string) bool {
	info, err := fs.Stat(h.fsys, rel)
	return err == nil && !info.IsDir()
}

func (h *staticHandler) etagFor(rel string, data []byte) string {
	h.mu.RLock()
	etag, ok := h.etags[rel]
	h.mu.RUnlock()
	if ok {
		return etag
	}

	sum := sha256.Sum256(data)
	etag = `"` + hex.EncodeToString(sum[:16]) + `"`

	h.mu.Lock()
	h.etags[rel] = etag
	h.mu.Unlock()
	return etag
}

// sanitizeStaticPath returns a clean relative path for a request, or
// false for traversal and absolute-path tricks that could escape the
// bundle root.
func sanitizeStaticPath(urlPath string) (string, bool) {
	rel := strings.TrimPrefix(urlPath, "/")

	// Reject NUL early (can appear via %00).
	if strings.IndexByte(rel, 0) != -1 {
		return "", false
	}
	if strings.Contains(rel, "\\") {
		return "", false
	}
	// A leading "/" after trimming means a double slash in the request,
	// an absolute-path attempt.
	if strings.HasPrefix(rel, "/") {
		return "", false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", false
		}
	}

	clean := path.Clean(rel)
	if clean == "." {
		return "", true
	}
	if strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", false
	}
	return clean, true
}
