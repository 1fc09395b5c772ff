package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/motis-project/prima-dispatch/internal/api/middleware"
)

func TestRequestIDGenerated(t *testing.T) {
	var fromContext string
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = middleware.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/taxi/whitelist", http.NoBody))

	header := rec.Header().Get("X-Request-Id")
	assert.True(t, strings.HasPrefix(header, "req_"))
	assert.Equal(t, header, fromContext)
}

func TestRequestIDGeneratedUnique(t *testing.T) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	second := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.NotEqual(t, first.Header().Get("X-Request-Id"), second.Header().Get("X-Request-Id"))
}

func TestRequestIDKeepsCallerID(t *testing.T) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req_from-upstream", middleware.GetRequestID(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("X-Request-Id", "req_from-upstream")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req_from-upstream", rec.Header().Get("X-Request-Id"))
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	assert.Empty(t, middleware.GetRequestID(context.Background()))
}
