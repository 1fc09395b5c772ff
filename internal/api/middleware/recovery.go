package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/motis-project/prima-dispatch/internal/api/models"
)

// Recovery converts handler panics into 500 responses and logs the stack.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				requestID := GetRequestID(r.Context())
				log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")

				p := models.NewProblem(http.StatusInternalServerError, requestID, "an unexpected error occurred")
				p.Instance = r.URL.Path
				p.Write(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
