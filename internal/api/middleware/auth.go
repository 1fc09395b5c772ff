package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/motis-project/prima-dispatch/internal/api/models"
	"github.com/motis-project/prima-dispatch/internal/auth"
)

type userIDKey struct{}

// Auth validates the bearer token and stores the customer ID in the request
// context. Tokens are issued by the account system; this service only
// verifies them.
func Auth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, problem := bearerToken(r)
			if problem != "" {
				writeUnauthorized(w, r, problem)
				return
			}

			userID, err := jwtService.ValidateAccessToken(token)
			if err != nil {
				writeUnauthorized(w, r, authFailureDetail(err))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken pulls the token out of the Authorization header. The scheme is
// matched case-insensitively.
func bearerToken(r *http.Request) (token, problem string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}

	const scheme = "Bearer "
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", "invalid authorization header format"
	}
	if token = header[len(scheme):]; token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

func authFailureDetail(err error) string {
	switch {
	case errors.Is(err, auth.ErrAccessTokenExpired):
		return "access token has expired"
	case errors.Is(err, auth.ErrInvalidAccessToken):
		return "invalid access token"
	default:
		return "authentication failed"
	}
}

// writeUnauthorized writes the 401 directly; the response package depends on
// this one.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	p := models.NewProblem(http.StatusUnauthorized, GetRequestID(r.Context()), detail)
	p.Instance = r.URL.Path
	p.Write(w)
}

// GetUserID returns the authenticated customer ID, or zero for requests that
// did not pass Auth.
func GetUserID(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey{}).(int64)
	return id
}
