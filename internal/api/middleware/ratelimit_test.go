package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authenticated(r *http.Request, userID int64) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID))
}

func TestRateLimitByIPBlocksAfterBudget(t *testing.T) {
	cfg := RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}
	handler := RateLimitByIP(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/v1/taxi/whitelist", http.NoBody)
		req.RemoteAddr = "10.0.0.1:50000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/taxi/whitelist", http.NoBody)
	req.RemoteAddr = "10.0.0.1:50000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestRateLimitByIPSeparatesClients(t *testing.T) {
	cfg := RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute}
	handler := RateLimitByIP(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, addr := range []string{"10.0.0.1:1000", "10.0.0.2:1000"} {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, addr)
	}
}

func TestRateLimitByUserSeparatesUsers(t *testing.T) {
	cfg := RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute}
	handler := RateLimitByUser(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(userID int64) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/rideshare/bookings", http.NoBody)
		req.RemoteAddr = "10.0.0.1:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authenticated(req, userID))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(1))
	assert.Equal(t, http.StatusTooManyRequests, do(1))
	// A different user has their own budget even from the same address.
	assert.Equal(t, http.StatusOK, do(2))
}

func TestKeyByUserOrIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "10.0.0.9:1234"

	key, err := keyByUserOrIP(authenticated(req, 42))
	require.NoError(t, err)
	assert.Equal(t, "user:42", key)

	key, err = keyByUserOrIP(req)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", key)
}
