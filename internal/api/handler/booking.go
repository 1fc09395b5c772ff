package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/motis-project/prima-dispatch/internal/api/response"
	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/taxi"
)

// BookingHandler handles taxi booking endpoints.
type BookingHandler struct {
	taxi *taxi.Service
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(taxiService *taxi.Service) *BookingHandler {
	return &BookingHandler{taxi: taxiService}
}

// Book handles POST /v1/taxi/bookings - commit a taxi booking.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var params taxi.BookingParameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	params.CustomerID = GetUserID(r.Context())

	result, err := h.taxi.Book(r.Context(), params)
	if err != nil {
		switch {
		case errors.Is(err, taxi.ErrMissingConnection):
			response.BadRequest(w, r, err.Error(), nil)
		case errors.Is(err, booking.ErrInvalidSignature):
			response.BadRequest(w, r, err.Error(), nil)
		case errors.Is(err, taxi.ErrNoVehicleAvailable):
			response.Conflict(w, r, err.Error())
		default:
			response.InternalError(w, r, "booking failed")
		}
		return
	}
	response.Created(w, r, "", result)
}

// Cancel handles POST /v1/taxi/bookings/{requestId}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseInt(chi.URLParam(r, "requestId"), 10, 64)
	if err != nil {
		response.BadRequest(w, r, "invalid request id", nil)
		return
	}

	if err := h.taxi.Cancel(r.Context(), requestID); err != nil {
		if errors.Is(err, taxi.ErrRequestNotFound) {
			response.NotFound(w, r, "request not found")
			return
		}
		response.InternalError(w, r, "cancellation failed")
		return
	}
	response.NoContent(w, r)
}
