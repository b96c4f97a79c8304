package ratelimit

import (
	"fmt"
	"net/http"
)

// KeyFunc derives the bucket key for a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// Middleware returns an HTTP middleware that enforces rate limits using the
// provided Limiter, bucketing requests by key(r).
//
// Rate-limit headers are always set on the response:
//
//	X-RateLimit-Limit      maximum requests allowed in the window
//	X-RateLimit-Remaining  tokens remaining in the current window
//	X-RateLimit-Reset      Unix timestamp when the bucket is fully replenished
//
// When the limit is exceeded the request is handed to reject, which writes
// the 429 response in whatever envelope the route uses.
func Middleware(limiter *Limiter, key KeyFunc, reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			limit, remaining, resetAt := limiter.Status(k)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))

			if !limiter.Allow(k) {
				reject(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
