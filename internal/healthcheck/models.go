// Package healthcheck validates the persisted schedule against the rules the
// dispatcher relies on: every request has its two stops, scheduled windows
// never grew past their buffers, stops of one vehicle never overlap, and the
// stored leg durations still match what the routing provider reports.
package healthcheck

import (
	"context"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// Event is one persisted stop.
type Event struct {
	ID               int64
	RequestID        int64
	IsPickup         bool
	Cancelled        bool
	RequestCancelled bool

	dispatch.Coordinates

	ScheduledTimeStart int64
	ScheduledTimeEnd   int64
	PrevLegDuration    int64
	NextLegDuration    int64
	EventGroup         string
}

// ScheduledWindow is the event's persisted scheduled interval.
func (e Event) ScheduledWindow() interval.Interval {
	return interval.Interval{Start: e.ScheduledTimeStart, End: e.ScheduledTimeEnd}
}

// Request is one persisted customer request with its stops.
type Request struct {
	ID        int64
	Cancelled bool

	dispatch.Capacities

	Events []Event
}

// Tour is one persisted tour with its requests.
type Tour struct {
	ID        int64
	VehicleID int64
	Cancelled bool

	// Company is the depot, nil for ride-share tours.
	Company *dispatch.Coordinates

	Departure int64
	Arrival   int64

	// DirectDuration is the stored driving time from the previous tour of
	// the same vehicle, nil when there is none.
	DirectDuration *int64

	Requests []Request
}

// Events returns all stops of the tour.
func (t *Tour) Events() []Event {
	var events []Event
	for _, r := range t.Requests {
		events = append(events, r.Events...)
	}
	return events
}

// Repository reads the persisted schedule.
type Repository interface {
	// ToursWithRequests returns the tours with their requests and events.
	// When includeCancelled is false, cancelled tours and requests are
	// dropped. A nil window or vehicle id places no bound.
	ToursWithRequests(ctx context.Context, includeCancelled bool, window *interval.Interval, vehicleID *int64) ([]Tour, error)
}
