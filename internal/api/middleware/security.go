package middleware

import (
	"net/http"

	"github.com/motis-project/prima-dispatch/internal/api/models"
)

// securityHeaders go on every response. The API serves JSON only, so the
// content security policy forbids everything.
var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Permissions-Policy":        "geolocation=(), camera=(), microphone=()",
}

// SecurityHeaders attaches the standard security headers to every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range securityHeaders {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects plain-HTTP requests when enabled. The load balancer
// terminates TLS and reports the original scheme in X-Forwarded-Proto;
// requests without that header are assumed internal and pass.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled {
				proto := r.Header.Get("X-Forwarded-Proto")
				if proto != "" && proto != "https" {
					p := models.NewProblem(http.StatusForbidden, GetRequestID(r.Context()), "this endpoint requires HTTPS")
					p.Instance = r.URL.Path
					p.Write(w)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
