// Package booking holds the vocabulary shared by the booking endpoints: the
// requested connection legs, their signatures, and the times promised to the
// customer during search.
package booking

import (
	"github.com/motis-project/prima-dispatch/internal/dispatch"
)

// Mode distinguishes which fleet serves a connection.
type Mode int

const (
	// ModeTaxi is a company-owned vehicle with availability windows.
	ModeTaxi Mode = iota
	// ModeRideShare is a private driver offering seats on an existing tour.
	ModeRideShare
)

func (m Mode) String() string {
	if m == ModeRideShare {
		return "ride_share"
	}
	return "taxi"
}

// ExpectedConnection is one leg the customer wants served, as returned by a
// previous search. The signature proves the leg was offered by this system.
type ExpectedConnection struct {
	Start         dispatch.Coordinates `json:"start"`
	Target        dispatch.Coordinates `json:"target"`
	StartTime     int64                `json:"startTime"`
	TargetTime    int64                `json:"targetTime"`
	Signature     string               `json:"signature"`
	StartFixed    bool                 `json:"startFixed"`
	RequestedTime int64                `json:"requestedTime"`

	// TourID names the offered tour a ride-share connection was quoted on.
	// Unset for taxi connections.
	TourID *int64 `json:"tourId,omitempty"`

	Mode Mode `json:"mode"`
}

// PromisedTimes are the pickup and dropoff times communicated to the customer
// when the connection was offered. A booking must not commit a plan that
// breaks them.
type PromisedTimes struct {
	Pickup  int64 `json:"pickup"`
	Dropoff int64 `json:"dropoff"`
}
