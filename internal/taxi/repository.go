package taxi

import (
	"context"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
)

// EventInsert is one new stop to persist.
type EventInsert struct {
	dispatch.Coordinates
	IsPickup           bool
	ScheduledTimeStart int64
	ScheduledTimeEnd   int64
	CommunicatedTime   int64
	PrevLegDuration    int64
	NextLegDuration    int64
	EventGroup         string
	Address            string
}

// BookingCommit is everything one booking writes: the new request with its
// two events, the tour it joins or opens, the tours it absorbs and the
// updates to neighbouring events.
type BookingCommit struct {
	CustomerID int64
	Required   dispatch.Capacities
	VehicleID  int64

	// Tour is the existing tour to extend, nil opens a new one.
	Tour      *int64
	Departure *int64
	Arrival   *int64

	Pickup  EventInsert
	Dropoff EventInsert

	// MergeTourList names the tours absorbed into Tour, excluding Tour
	// itself.
	MergeTourList []int64

	DirectDurations   DirectDrivingDurations
	EventGroupUpdates []EventGroupUpdate
	ScheduledTimes    []ScheduledTimeUpdate
	PrevLegDurations  []LegDurationUpdate
	NextLegDurations  []LegDurationUpdate
}

// Repository persists committed bookings.
type Repository interface {
	// CommitBooking applies one booking atomically and returns the id of the
	// created request.
	CommitBooking(ctx context.Context, commit *BookingCommit) (int64, error)

	// CancelRequest marks a request cancelled.
	CancelRequest(ctx context.Context, requestID int64) error
}
