package handler

import (
	"encoding/json"
	"net/http"

	"github.com/motis-project/prima-dispatch/internal/api/models"
	"github.com/motis-project/prima-dispatch/internal/api/response"
	"github.com/motis-project/prima-dispatch/internal/taxi"
)

// WhitelistHandler handles feasibility queries for taxi legs.
type WhitelistHandler struct {
	taxi *taxi.Service
}

// NewWhitelistHandler creates a new WhitelistHandler.
func NewWhitelistHandler(taxiService *taxi.Service) *WhitelistHandler {
	return &WhitelistHandler{taxi: taxiService}
}

// Whitelist handles POST /v1/taxi/whitelist - evaluate candidate legs.
func (h *WhitelistHandler) Whitelist(w http.ResponseWriter, r *http.Request) {
	var input taxi.WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Capacities.Passengers <= 0 {
		response.BadRequest(w, r, "at least one passenger is required", []models.FieldError{
			{Field: "capacities.passengers", Message: "must be positive"},
		})
		return
	}

	resp, err := h.taxi.Whitelist(r.Context(), input)
	if err != nil {
		response.InternalError(w, r, "whitelist evaluation failed")
		return
	}
	response.JSON(w, r, http.StatusOK, resp)
}
