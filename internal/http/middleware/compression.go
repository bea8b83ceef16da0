package middleware

import (
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// compressibleTypes are the content types worth compressing: Player API
// listings, M3U playlists and API documents.
var compressibleTypes = []string{
	"application/json",
	"application/problem+json",
	"audio/x-mpegurl",
	"application/x-mpegurl",
	"application/vnd.apple.mpegurl",
	"text/plain",
	"text/html",
}

// Compression compresses responses with brotli or gzip at the given level.
func Compression(level int) func(http.Handler) http.Handler {
	compressor := chimiddleware.NewCompressor(level, compressibleTypes...)
	compressor.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, brotliLevel(level))
	})
	return compressor.Handler
}

// brotliLevel maps a gzip-style level (1-9) onto brotli's 0-11 scale.
func brotliLevel(level int) int {
	switch {
	case level < 0:
		return brotli.DefaultCompression
	case level > brotli.BestCompression:
		return brotli.BestCompression
	default:
		return level
	}
}

// SkipCompression bypasses compress for requests matching skip. Relayed
// streams must not pass through the compressor, which buffers writes and
// defeats flushing.
func SkipCompression(compress func(http.Handler) http.Handler, skip func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressed := compress(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}
}
