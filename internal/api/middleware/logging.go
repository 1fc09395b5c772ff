package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger emits one log line per request. The entry carries the request ID,
// the authenticated user when there is one, and the trace and span IDs when
// tracing is active, so log lines can be joined with traces.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			entry := log.Info().
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Int64("bytes", rec.bytes).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent())
			if userID := GetUserID(r.Context()); userID != 0 {
				entry = entry.Int64("user_id", userID)
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				entry = entry.
					Str("trace_id", sc.TraceID().String()).
					Str("span_id", sc.SpanID().String())
			}
			entry.Msg("request completed")
		})
	}
}
