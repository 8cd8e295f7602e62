package middleware

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/Nastaran-Nourbakhsh/nova/internal/api/response"
)

// RateLimitRecorder records when a request is rejected by the rate limiter (optional).
// Pass nil when metrics are disabled.
type RateLimitRecorder interface {
	RecordRateLimited(ctx context.Context)
}

// RateLimit returns a middleware that rejects requests with 429 once the limiter
// is exhausted. Scanners push diamonds and features in bursts; the limiter smooths
// those bursts instead of letting them saturate the pool. Pass a nil limiter to
// disable (no limit).
func RateLimit(limiter *rate.Limiter, recorder RateLimitRecorder) func(http.Handler) http.Handler {
	if limiter == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				if recorder != nil {
					recorder.RecordRateLimited(r.Context())
				}

				response.RespondTooManyRequests(w, "ingest rate limit exceeded, retry later")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
