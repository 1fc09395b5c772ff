// Package response writes the API's success and problem responses.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/motis-project/prima-dispatch/internal/api/middleware"
	"github.com/motis-project/prima-dispatch/internal/api/models"
)

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, "", data)
}

// Created writes a 201 with a Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data any) {
	write(w, r, http.StatusCreated, location, data)
}

// NoContent writes a 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set("X-Request-Id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func write(w http.ResponseWriter, r *http.Request, status int, location string, data any) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set("X-Request-Id", id)
	}
	w.Header().Set("Content-Type", "application/json")
	if location != "" {
		w.Header().Set("Location", location)
	}
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes a prepared problem, filling in the instance path.
func Error(w http.ResponseWriter, r *http.Request, p *models.Problem) {
	p.Instance = r.URL.Path
	p.Write(w)
}

// BadRequest writes a 400 with optional per-field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, fields []models.FieldError) {
	p := models.NewProblem(http.StatusBadRequest, middleware.GetRequestID(r.Context()), detail)
	p.Errors = fields
	Error(w, r, p)
}

// Forbidden writes a 403.
func Forbidden(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, http.StatusForbidden, detail)
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, http.StatusNotFound, detail)
}

// Conflict writes a 409.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, http.StatusConflict, detail)
}

// InternalError writes a 500.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, http.StatusInternalServerError, detail)
}

func problem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	Error(w, r, models.NewProblem(status, middleware.GetRequestID(r.Context()), detail))
}
