package httpadapter

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// backpressureWait bounds how long a request waits for a slot before the
// server sheds it with 503. Generation requests already carry their own
// deadlines, so a short wait here keeps the queue from stacking up.
const backpressureWait = 200 * time.Millisecond

func rateLimitMiddleware(next http.Handler, rps float64, burst int) http.Handler {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded, retry later",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func backpressureMiddleware(next http.Handler, maxConcurrent int, wait time.Duration) http.Handler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	slots := make(chan struct{}, maxConcurrent)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case slots <- struct{}{}:
			defer func() { <-slots }()
			next.ServeHTTP(w, r)
		case <-timer.C:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "server is overloaded, retry later",
			})
		case <-r.Context().Done():
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "request canceled while waiting for capacity",
			})
		}
	})
}
