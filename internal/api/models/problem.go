package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body. All error responses use it, served with
// Content-Type application/problem+json.
type Problem struct {
	// Type is a URI identifying the problem class.
	Type string `json:"type"`

	// Title is a short human-readable summary of the problem class.
	Title string `json:"title"`

	// Status is the HTTP status code.
	Status int `json:"status"`

	// Detail explains this particular occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is the request path the problem occurred on.
	Instance string `json:"instance,omitempty"`

	// TraceID correlates the response with server logs.
	TraceID string `json:"traceId"`

	// Errors carries per-field validation failures.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError is one validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://api.prima-dispatch.de/problems/"

var problemTypes = map[int]struct{ slug, title string }{
	http.StatusBadRequest:          {"validation-error", "Validation error"},
	http.StatusUnauthorized:        {"unauthorized", "Unauthorized"},
	http.StatusForbidden:           {"forbidden", "Forbidden"},
	http.StatusNotFound:            {"not-found", "Not found"},
	http.StatusConflict:            {"conflict", "Conflict"},
	http.StatusTooManyRequests:     {"too-many-requests", "Too many requests"},
	http.StatusInternalServerError: {"internal-error", "Internal server error"},
}

// NewProblem builds the problem body for a status code. Statuses without a
// registered type fall back to about:blank with the standard status text.
func NewProblem(status int, traceID, detail string) *Problem {
	p := &Problem{
		Type:    "about:blank",
		Title:   http.StatusText(status),
		Status:  status,
		Detail:  detail,
		TraceID: traceID,
	}
	if pt, ok := problemTypes[status]; ok {
		p.Type = problemBase + pt.slug
		p.Title = pt.title
	}
	return p
}

// Write serializes the problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
