package response_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/api/middleware"
	"github.com/motis-project/prima-dispatch/internal/api/models"
	"github.com/motis-project/prima-dispatch/internal/api/response"
)

// request returns a request carrying a request ID, like every request that
// passed the middleware stack.
func request(t *testing.T) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/taxi/bookings", http.NoBody)
	var out *http.Request
	middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		out = r
	})).ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, out)
	return out
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestJSON(t *testing.T) {
	req := request(t)
	rec := httptest.NewRecorder()
	response.JSON(rec, req, http.StatusOK, map[string]int64{"requestId": 7})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, middleware.GetRequestID(req.Context()), rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"requestId":7}`, rec.Body.String())
}

func TestCreatedSetsLocation(t *testing.T) {
	rec := httptest.NewRecorder()
	response.Created(rec, request(t), "/v1/taxi/bookings/7", map[string]int64{"requestId": 7})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/v1/taxi/bookings/7", rec.Header().Get("Location"))
}

func TestNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	response.NoContent(rec, request(t))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestBadRequestCarriesFieldErrors(t *testing.T) {
	req := request(t)
	rec := httptest.NewRecorder()
	response.BadRequest(rec, req, "invalid booking", []models.FieldError{
		{Field: "connection1", Message: "required"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "/v1/taxi/bookings", p.Instance)
	assert.Equal(t, middleware.GetRequestID(req.Context()), p.TraceID)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "connection1", p.Errors[0].Field)
}

func TestProblemHelpers(t *testing.T) {
	tests := []struct {
		name  string
		write func(http.ResponseWriter, *http.Request, string)
		want  int
	}{
		{"forbidden", response.Forbidden, http.StatusForbidden},
		{"not found", response.NotFound, http.StatusNotFound},
		{"conflict", response.Conflict, http.StatusConflict},
		{"internal error", response.InternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec, request(t), "because")

			assert.Equal(t, tt.want, rec.Code)
			p := decodeProblem(t, rec)
			assert.Equal(t, tt.want, p.Status)
			assert.Equal(t, "because", p.Detail)
		})
	}
}

func TestErrorFillsInstance(t *testing.T) {
	rec := httptest.NewRecorder()
	p := models.NewProblem(http.StatusNotFound, "req_1", "no such request")
	response.Error(rec, request(t), p)

	decoded := decodeProblem(t, rec)
	assert.Equal(t, "/v1/taxi/bookings", decoded.Instance)
}

func TestJSONWithoutRequestID(t *testing.T) {
	// Responses written outside the middleware stack skip the header.
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody).WithContext(context.Background())
	rec := httptest.NewRecorder()
	response.JSON(rec, req, http.StatusOK, nil)

	assert.Empty(t, rec.Header().Get("X-Request-Id"))
	assert.Empty(t, rec.Body.String())
}
