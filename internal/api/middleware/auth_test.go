package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/api/middleware"
	"github.com/motis-project/prima-dispatch/internal/auth"
)

func testJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://api.prima-dispatch.de",
		Audience:   "prima-dispatch-api",
	})
}

func authHandler(jwtService *auth.JWTService, captured *int64) http.Handler {
	return middleware.Auth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = middleware.GetUserID(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthRejectsBadHeaders(t *testing.T) {
	handler := authHandler(testJWTService(), nil)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "token123"},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"empty bearer token", "Bearer "},
		{"bare bearer", "Bearer"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/taxi/bookings", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestAuthStoresUserID(t *testing.T) {
	jwtService := testJWTService()
	token, _, err := jwtService.GenerateAccessToken(42)
	require.NoError(t, err)

	var userID int64
	handler := authHandler(jwtService, &userID)

	// The bearer scheme is matched case-insensitively.
	for _, prefix := range []string{"Bearer ", "bearer ", "BEARER "} {
		req := httptest.NewRequest(http.MethodGet, "/v1/taxi/bookings", http.NoBody)
		req.Header.Set("Authorization", prefix+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, prefix)
		assert.Equal(t, int64(42), userID)
	}
}

func TestAuthRejectsTokenFromOtherKey(t *testing.T) {
	other := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "a-different-key",
		Issuer:     "https://api.prima-dispatch.de",
		Audience:   "prima-dispatch-api",
	})
	token, _, err := other.GenerateAccessToken(42)
	require.NoError(t, err)

	handler := authHandler(testJWTService(), nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/taxi/bookings", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetUserIDUnauthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Zero(t, middleware.GetUserID(req.Context()))
}
