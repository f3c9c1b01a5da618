package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type ctxKeyRequestID struct{}

// requestID returns the id attached by withRequestID, or "" when the request
// never passed through it.
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return id
}

// withRequestID accepts a caller-supplied X-Request-Id or mints one, stores
// it on the context and echoes it on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID{}, id)))
	})
}

// logRequests emits one structured line per request, leveled by status class.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traced := &tracedResponse{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(traced, r)

		attrs := []any{
			"request_id", requestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", traced.status,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"bytes", traced.bytes,
			"remote_addr", r.RemoteAddr,
		}
		switch {
		case traced.status >= 500:
			slog.Error("http_request", attrs...)
		case traced.status >= 400:
			slog.Warn("http_request", attrs...)
		default:
			slog.Info("http_request", attrs...)
		}
	})
}

// tracedResponse captures the status and body size for the access log. All
// responses here are plain JSON, so the streaming optional interfaces
// (Flusher, Hijacker) are deliberately not forwarded.
type tracedResponse struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (t *tracedResponse) WriteHeader(status int) {
	t.status = status
	t.ResponseWriter.WriteHeader(status)
}

func (t *tracedResponse) Write(b []byte) (int, error) {
	n, err := t.ResponseWriter.Write(b)
	t.bytes += n
	return n, err
}
