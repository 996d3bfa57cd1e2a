package middleware

import (
	"net/http"
	"strconv"

	"github.com/bryanwahyu/cloudguard-sec/internal/ratelimit"
)

// RateLimitMiddleware gates HTTP requests through the shared token bucket
// limiter, keyed per tenant+IP under the "http" service rule.
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip rate limit for health check
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			// Use tenant + IP as rate limit key
			tenant := GetTenantFromContext(r.Context())
			key := tenant + ":" + r.RemoteAddr

			if !limiter.Allow(r.Context(), "http", key) {
				d, _ := limiter.CheckRateLimit(r.Context(), "http", key)
				retry := int(d.RetryAfterSeconds) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				http.Error(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
