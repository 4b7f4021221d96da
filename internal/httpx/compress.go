package httpx

import (
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5/middleware"
)

// Compress compresses JSON responses with brotli or gzip, whichever the
// client prefers, brotli winning ties.
func Compress(level int) func(http.Handler) http.Handler {
	c := middleware.NewCompressor(level, "application/json")
	c.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	return c.Handler
}
