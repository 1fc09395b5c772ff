package middleware

import (
	"net/http"
	"strings"

	"github.com/motis-project/prima-dispatch/internal/api/models"
)

// ContentTypeJSON defaults responses to application/json. Handlers that set
// their own type win.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON rejects bodied requests whose declared Content-Type is not
// JSON. Requests without a Content-Type header pass through and fail at the
// decoder instead.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				p := models.NewProblem(http.StatusUnsupportedMediaType, GetRequestID(r.Context()), "request body must be application/json")
				p.Instance = r.URL.Path
				p.Write(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
