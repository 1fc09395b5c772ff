package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/api/models"
)

func TestNewProblemKnownStatuses(t *testing.T) {
	tests := []struct {
		status    int
		wantType  string
		wantTitle string
	}{
		{http.StatusBadRequest, "https://api.prima-dispatch.de/problems/validation-error", "Validation error"},
		{http.StatusUnauthorized, "https://api.prima-dispatch.de/problems/unauthorized", "Unauthorized"},
		{http.StatusForbidden, "https://api.prima-dispatch.de/problems/forbidden", "Forbidden"},
		{http.StatusNotFound, "https://api.prima-dispatch.de/problems/not-found", "Not found"},
		{http.StatusConflict, "https://api.prima-dispatch.de/problems/conflict", "Conflict"},
		{http.StatusTooManyRequests, "https://api.prima-dispatch.de/problems/too-many-requests", "Too many requests"},
		{http.StatusInternalServerError, "https://api.prima-dispatch.de/problems/internal-error", "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.wantTitle, func(t *testing.T) {
			p := models.NewProblem(tt.status, "req_abc", "something happened")
			assert.Equal(t, tt.wantType, p.Type)
			assert.Equal(t, tt.wantTitle, p.Title)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, "req_abc", p.TraceID)
			assert.Equal(t, "something happened", p.Detail)
		})
	}
}

func TestNewProblemUnknownStatus(t *testing.T) {
	p := models.NewProblem(http.StatusUnsupportedMediaType, "req_abc", "not json")
	assert.Equal(t, "about:blank", p.Type)
	assert.Equal(t, http.StatusText(http.StatusUnsupportedMediaType), p.Title)
	assert.Equal(t, http.StatusUnsupportedMediaType, p.Status)
}

func TestProblemWrite(t *testing.T) {
	p := models.NewProblem(http.StatusConflict, "req_xyz", "tour already cancelled")
	p.Instance = "/v1/taxi/bookings/9/cancel"

	rec := httptest.NewRecorder()
	p.Write(rec)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req_xyz", rec.Header().Get("X-Request-Id"))

	var decoded models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, *p, decoded)
}

func TestProblemFieldErrorsSerialization(t *testing.T) {
	p := models.NewProblem(http.StatusBadRequest, "req_abc", "invalid request")
	p.Errors = []models.FieldError{
		{Field: "capacities.passengers", Message: "must be positive", Code: "min"},
	}

	body, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(body), "capacities.passengers")

	// Without field errors the array is omitted entirely.
	empty, err := json.Marshal(models.NewProblem(http.StatusBadRequest, "req_abc", "invalid request"))
	require.NoError(t, err)
	assert.NotContains(t, string(empty), "errors")
}
