package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/motis-project/prima-dispatch/internal/api/response"
	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/rideshare"
)

// RideShareHandler handles ride share booking endpoints.
type RideShareHandler struct {
	rideShare *rideshare.Service
}

// NewRideShareHandler creates a new RideShareHandler.
func NewRideShareHandler(rideShareService *rideshare.Service) *RideShareHandler {
	return &RideShareHandler{rideShare: rideShareService}
}

// Book handles POST /v1/rideshare/bookings - place a pending ride share
// request on an offered tour.
func (h *RideShareHandler) Book(w http.ResponseWriter, r *http.Request) {
	var params rideshare.BookingParameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	params.CustomerID = GetUserID(r.Context())

	result, err := h.rideShare.Book(r.Context(), params)
	if err != nil {
		switch {
		case errors.Is(err, rideshare.ErrMissingConnection):
			response.BadRequest(w, r, err.Error(), nil)
		case errors.Is(err, booking.ErrInvalidSignature):
			response.BadRequest(w, r, err.Error(), nil)
		case errors.Is(err, rideshare.ErrNoMatchingTour):
			response.Conflict(w, r, err.Error())
		default:
			response.InternalError(w, r, "booking failed")
		}
		return
	}
	response.Created(w, r, "", result)
}

// Accept handles POST /v1/rideshare/requests/{requestId}/accept - the driver
// accepts a pending request on one of their tours.
func (h *RideShareHandler) Accept(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseInt(chi.URLParam(r, "requestId"), 10, 64)
	if err != nil {
		response.BadRequest(w, r, "invalid request id", nil)
		return
	}
	providerID := GetUserID(r.Context())

	if err := h.rideShare.Accept(r.Context(), requestID, providerID); err != nil {
		switch {
		case errors.Is(err, rideshare.ErrRequestNotFound):
			response.NotFound(w, r, "request not found")
		case errors.Is(err, rideshare.ErrNotTourOwner):
			response.Forbidden(w, r, "not the owner of this tour")
		case errors.Is(err, rideshare.ErrTourNoLongerValid):
			response.Conflict(w, r, err.Error())
		default:
			response.InternalError(w, r, "accept failed")
		}
		return
	}
	response.NoContent(w, r)
}

// Cancel handles POST /v1/rideshare/requests/{requestId}/cancel.
func (h *RideShareHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseInt(chi.URLParam(r, "requestId"), 10, 64)
	if err != nil {
		response.BadRequest(w, r, "invalid request id", nil)
		return
	}

	if err := h.rideShare.Cancel(r.Context(), requestID); err != nil {
		if errors.Is(err, rideshare.ErrRequestNotFound) {
			response.NotFound(w, r, "request not found")
			return
		}
		response.InternalError(w, r, "cancellation failed")
		return
	}
	response.NoContent(w, r)
}
