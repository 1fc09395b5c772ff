package handler

import (
	"encoding/json"
	"net/http"

	"github.com/motis-project/prima-dispatch/internal/api/response"
	"github.com/motis-project/prima-dispatch/internal/healthcheck"
)

// ConsistencyHandler exposes the schedule consistency check.
type ConsistencyHandler struct {
	health *healthcheck.Service
}

// NewConsistencyHandler creates a new ConsistencyHandler.
func NewConsistencyHandler(healthService *healthcheck.Service) *ConsistencyHandler {
	return &ConsistencyHandler{health: healthService}
}

// consistencyRunRequest narrows a run to one vehicle or one day. An empty
// body checks everything.
type consistencyRunRequest struct {
	VehicleID *int64 `json:"vehicleId,omitempty"`
	DayStart  *int64 `json:"dayStart,omitempty"`
}

type consistencyRunResponse struct {
	Healthy bool                `json:"healthy"`
	Issues  []healthcheck.Issue `json:"issues"`
}

// Run handles POST /v1/admin/consistency - verify the persisted schedule.
func (h *ConsistencyHandler) Run(w http.ResponseWriter, r *http.Request) {
	var input consistencyRunRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			response.BadRequest(w, r, "invalid JSON body", nil)
			return
		}
	}

	report, err := h.health.Run(r.Context(), healthcheck.RunOptions{
		VehicleID: input.VehicleID,
		DayStart:  input.DayStart,
	})
	if err != nil {
		response.InternalError(w, r, "consistency check failed")
		return
	}
	resp := consistencyRunResponse{Healthy: report.Healthy(), Issues: report.Issues}
	if resp.Issues == nil {
		resp.Issues = []healthcheck.Issue{}
	}
	response.JSON(w, r, http.StatusOK, resp)
}
