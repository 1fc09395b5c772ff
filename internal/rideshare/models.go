// Package rideshare matches requests into tours offered by private drivers.
// Unlike the taxi fleet there are no availability windows and no company
// depots: a driver publishes one tour and requests are inserted between its
// existing stops when the insertion stays profitable for the driver.
package rideshare

import (
	"context"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// Event is one scheduled stop of an offered tour.
type Event struct {
	ID        int64
	RequestID int64
	TourID    int64
	IsPickup  bool

	// Pending marks a stop of a request the driver has not accepted yet.
	// Pending stops do not constrain new insertions.
	Pending bool

	// StartFixed and BusStopTime echo the booking parameters, needed when
	// the driver accepts the request and the insertion is re-derived.
	StartFixed  bool
	BusStopTime *int64

	dispatch.Coordinates
	dispatch.Capacities

	Time             interval.Interval
	CommunicatedTime int64
	PrevLegDuration  int64
	NextLegDuration  int64
	EventGroup       string
	Departure        int64
	Arrival          int64
}

// ScheduledTime is the moment the vehicle is bound to: the latest start for
// pickups, the earliest for dropoffs.
func (e Event) ScheduledTime() int64 {
	if e.IsPickup {
		return e.Time.End
	}
	return e.Time.Start
}

// CapacityChange is the load delta this event causes.
func (e Event) CapacityChange() dispatch.CapacityChange {
	return dispatch.CapacityChange{Capacities: e.Capacities, IsPickup: e.IsPickup}
}

// Offer is one tour a driver has published, with its accepted and pending
// stops sorted by scheduled window start.
type Offer struct {
	ID        int64
	VehicleID int64

	// Owner is the driver's user id.
	Owner int64

	dispatch.Capacities

	Departure int64
	Arrival   int64
	Events    []Event
}

// ActiveEvents returns the stops that constrain insertions, i.e. everything
// the driver has accepted.
func (o *Offer) ActiveEvents() []Event {
	active := make([]Event, 0, len(o.Events))
	for _, e := range o.Events {
		if !e.Pending {
			active = append(active, e)
		}
	}
	return active
}

// CapacityChanges returns the load deltas of the accepted stops in order.
func (o *Offer) CapacityChanges() []dispatch.CapacityChange {
	active := o.ActiveEvents()
	changes := make([]dispatch.CapacityChange, len(active))
	for i, e := range active {
		changes[i] = e.CapacityChange()
	}
	return changes
}

// Repository reads and writes offered tours.
type Repository interface {
	// OpenTours returns the published tours overlapping the window whose
	// vehicle fits the required capacities.
	OpenTours(ctx context.Context, window interval.Interval, required dispatch.Capacities) ([]Offer, error)

	// TourByRequest returns the tour containing the given request.
	TourByRequest(ctx context.Context, requestID int64) (*Offer, error)

	// CreatePendingRequest stores a matched request awaiting the driver's
	// approval and returns its id.
	CreatePendingRequest(ctx context.Context, commit *RequestCommit) (int64, error)

	// AcceptRequest flips a pending request to accepted and applies the
	// event updates derived for it.
	AcceptRequest(ctx context.Context, accept *AcceptCommit) error

	// CancelRequest marks a request cancelled.
	CancelRequest(ctx context.Context, requestID int64) error
}

// RequestCommit is the write plan of one pending ride-share request.
type RequestCommit struct {
	CustomerID    int64
	TourID        int64
	Required      dispatch.Capacities
	StartFixed    bool
	BusStopTime   int64
	RequestedTime int64
	Pickup        EventCommit
	Dropoff       EventCommit
}

// EventCommit is one new stop to persist.
type EventCommit struct {
	dispatch.Coordinates
	IsPickup           bool
	ScheduledTimeStart int64
	ScheduledTimeEnd   int64
	CommunicatedTime   int64
	PrevLegDuration    int64
	NextLegDuration    int64
	EventGroup         string
}

// AcceptCommit applies a driver's approval: the re-derived stop data and the
// neighbour adjustments.
type AcceptCommit struct {
	RequestID      int64
	PickupEventID  int64
	DropoffEventID int64
	Pickup         EventCommit
	Dropoff        EventCommit
	ScheduledTimes []ScheduledTimeUpdate
	PrevLegUpdates []LegDurationUpdate
	NextLegUpdates []LegDurationUpdate
}

// LegDurationUpdate overwrites one leg duration of an existing event.
type LegDurationUpdate struct {
	EventID  int64 `json:"event_id"`
	Duration int64 `json:"duration"`
}

// ScheduledTimeUpdate tightens one edge of an existing event's scheduled
// window.
type ScheduledTimeUpdate struct {
	EventID int64 `json:"event_id"`
	Time    int64 `json:"time"`
	Start   bool  `json:"start"`
}

// InsertionInfo addresses one insertion position inside one offer.
type InsertionInfo struct {
	TourIdx      int
	Offer        *Offer
	Events       []Event
	IdxInEvents  int
	CurrentRange dispatch.Range
	InsertionIdx int
}

// iterateAllInsertions visits every insertion position of every offer in a
// fixed order. InsertionIdx increases monotonically across the whole
// iteration so routing results can be stored in flat arrays.
func iterateAllInsertions(
	offers []*Offer,
	insertionRanges map[int64][]dispatch.Range,
	fn func(info InsertionInfo),
) {
	insertionIdx := 0
	for tourIdx, offer := range offers {
		events := offer.ActiveEvents()
		for _, r := range insertionRanges[offer.ID] {
			for idx := r.EarliestPickup; idx <= r.LatestDropoff; idx++ {
				fn(InsertionInfo{
					TourIdx:      tourIdx,
					Offer:        offer,
					Events:       events,
					IdxInEvents:  idx,
					CurrentRange: r,
					InsertionIdx: insertionIdx,
				})
				insertionIdx++
			}
		}
	}
}

// countInsertions returns the total number of insertion positions.
func countInsertions(offers []*Offer, insertionRanges map[int64][]dispatch.Range) int {
	count := 0
	for _, offer := range offers {
		for _, r := range insertionRanges[offer.ID] {
			count += r.LatestDropoff + 1 - r.EarliestPickup
		}
	}
	return count
}
