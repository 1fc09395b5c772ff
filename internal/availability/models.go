// Package availability materializes the scheduling snapshot the insertion
// evaluators run on: per company and vehicle the merged availability
// intervals, sorted tours and sorted events for a search window.
package availability

import (
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// Event is one scheduled pickup or dropoff stop. Snapshots are never mutated;
// all derived computation produces new values.
type Event struct {
	ID        int64
	RequestID int64
	TourID    int64
	IsPickup  bool

	dispatch.Coordinates
	dispatch.Capacities

	// Time is the scheduled window [ScheduledTimeStart, ScheduledTimeEnd]
	// communicated to the passenger. It may shrink on later bookings but
	// never grows.
	Time             interval.Interval
	CommunicatedTime int64

	// PrevLegDuration and NextLegDuration are the driving times to and from
	// the adjacent stop, or the company depot at tour boundaries.
	PrevLegDuration int64
	NextLegDuration int64

	// DirectDuration is the driving time from the previous tour's last event
	// to this tour's first event, set only on first events of a tour.
	DirectDuration *int64

	// EventGroup ties together co-located events sharing one physical stop
	// and time window.
	EventGroup string

	// Departure and Arrival are the owning tour's bounds.
	Departure int64
	Arrival   int64
}

// ScheduledTime returns the instant the vehicle leaves the stop: the end of
// the window for pickups, the start for dropoffs.
func (e Event) ScheduledTime() int64 {
	if e.IsPickup {
		return e.Time.End
	}
	return e.Time.Start
}

// CapacityChange returns the load delta this event causes.
func (e Event) CapacityChange() dispatch.CapacityChange {
	return dispatch.CapacityChange{Capacities: e.Capacities, IsPickup: e.IsPickup}
}

// Tour is a vehicle's contiguous operating period from company departure to
// company return.
type Tour struct {
	ID        int64
	Departure int64
	Arrival   int64
}

// Vehicle is the per-vehicle snapshot for one evaluation.
type Vehicle struct {
	ID int64
	dispatch.Capacities

	// Availabilities are merged, disjoint and sorted.
	Availabilities []interval.Interval
	// Tours inside the expanded search window, sorted by departure.
	Tours []Tour
	// Events of those tours, sorted by scheduled window start.
	Events []Event

	// LastEventBefore and FirstEventAfter are the chronologically nearest
	// events outside the window, needed to bound new-tour placement against
	// tours the narrower window cannot see.
	LastEventBefore *Event
	FirstEventAfter *Event
}

// CapacityChanges lists the load deltas of the vehicle's sorted events.
func (v *Vehicle) CapacityChanges() []dispatch.CapacityChange {
	changes := make([]dispatch.CapacityChange, len(v.Events))
	for i, e := range v.Events {
		changes[i] = e.CapacityChange()
	}
	return changes
}

// Company is one operator with its depot location and eligible vehicles.
type Company struct {
	ID     int64
	ZoneID int64
	dispatch.Coordinates
	Vehicles []*Vehicle
}

// Snapshot is the full evaluation input for one request.
type Snapshot struct {
	Companies []Company

	// BusStopFilter maps each requested bus stop index to its compacted index
	// among the stops inside the zone, or -1 when the stop is outside.
	BusStopFilter []int
}
