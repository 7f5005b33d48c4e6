package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

// compressMinSize keeps small JSON bodies uncompressed.
const compressMinSize = 1024

// NewCompressionMiddleware gzips responses for clients that accept it.
// Audit exports are already zstd-compressed and pass through untouched.
func NewCompressionMiddleware() (func(http.Handler) http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(
		gzhttp.MinSize(compressMinSize),
		gzhttp.ExceptContentTypes([]string{"application/zstd"}),
	)
	if err != nil {
		return nil, fmt.Errorf("building gzip wrapper: %w", err)
	}
	return func(next http.Handler) http.Handler {
		return wrap(next)
	}, nil
}

// ContextTimeoutMiddleware sets a deadline on the request context. Store
// reads honour the deadline and surface unavailable_request_timeout.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
