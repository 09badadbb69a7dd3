// Package handler builds runnable request handlers from artifact
// descriptors: application adapters, static-file handlers, and reverse
// proxies.
package handler

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/frontd/frontd/internal/routing"
	"github.com/klauspost/compress/gzip"
)

// indexFileNames are probed, in order, when a request resolves to a
// directory.
var indexFileNames = []string{"index.html", "index.htm", "default.html", "default.htm"}

// noCompressionHeader is the request header that opts out of response
// compression.
const noCompressionHeader = "X-No-Compression"

// compressDenyExts lists file extensions whose content is already compressed
// and is served as-is.
var compressDenyExts = map[string]struct{}{
	".7z":    {},
	".avif":  {},
	".bz2":   {},
	".gif":   {},
	".gz":    {},
	".jpeg":  {},
	".jpg":   {},
	".m4a":   {},
	".mov":   {},
	".mp3":   {},
	".mp4":   {},
	".ogg":   {},
	".pdf":   {},
	".png":   {},
	".rar":   {},
	".tgz":   {},
	".webm":  {},
	".webp":  {},
	".woff":  {},
	".woff2": {},
	".xz":    {},
	".zip":   {},
	".zst":   {},
}

// staticHandler serves files rooted at the artifact's directory.  A miss
// defers to the next handler in the chain instead of responding with a
// terminal not-found.
type staticHandler struct {
	root     string
	compress bool
}

// NewStatic builds a static-file handler rooted at root.  Compression is
// applied to responses unless the file extension is on the deny list or the
// request opts out.
func NewStatic(root string) (h routing.Handler) {
	return &staticHandler{
		root:     filepath.Clean(root),
		compress: true,
	}
}

// type check
var _ routing.Handler = (*staticHandler)(nil)

// Handle implements the routing.Handler interface for *staticHandler.
func (h *staticHandler) Handle(w http.ResponseWriter, r *http.Request) (handled bool, err error) {
	fsPath, ok := h.resolve(r.URL.Path)
	if !ok {
		return false, nil
	}

	info, statErr := os.Stat(fsPath)
	if statErr != nil {
		return false, nil
	}

	if info.IsDir() {
		fsPath, ok = probeIndex(fsPath)
		if !ok {
			return false, nil
		}
	}

	return true, h.serveFile(w, r, fsPath)
}

// resolve maps the request path onto the handler's root, rejecting paths
// that escape it.
func (h *staticHandler) resolve(urlPath string) (fsPath string, ok bool) {
	clean := path.Clean("/" + urlPath)
	fsPath = filepath.Join(h.root, filepath.FromSlash(clean))

	if fsPath != h.root && !strings.HasPrefix(fsPath, h.root+string(filepath.Separator)) {
		return "", false
	}

	return fsPath, true
}

// probeIndex looks for an index file under dir and returns the first one
// that exists as a regular file.
func probeIndex(dir string) (fsPath string, ok bool) {
	for _, name := range indexFileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}

	return "", false
}

// serveFile writes the file to the response, compressing it when worthwhile.
func (h *staticHandler) serveFile(w http.ResponseWriter, r *http.Request, fsPath string) (err error) {
	if !h.shouldCompress(r, fsPath) {
		http.ServeFile(w, r, fsPath)

		return nil
	}

	f, err := os.Open(fsPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if ctype := mime.TypeByExtension(filepath.Ext(fsPath)); ctype != "" {
		w.Header().Set("Content-Type", ctype)
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Add("Vary", "Accept-Encoding")
	w.WriteHeader(http.StatusOK)

	gz := gzip.NewWriter(w)
	defer func() { _ = gz.Close() }()

	_, err = io.Copy(gz, f)

	return err
}

// shouldCompress reports whether the response for fsPath should be
// gzip-compressed.
func (h *staticHandler) shouldCompress(r *http.Request, fsPath string) (ok bool) {
	if !h.compress || r.Header.Get(noCompressionHeader) != "" {
		return false
	}

	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		return false
	}

	_, deny := compressDenyExts[strings.ToLower(filepath.Ext(fsPath))]

	return !deny
}
