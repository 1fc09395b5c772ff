package taxi_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/notify"
	"github.com/motis-project/prima-dispatch/internal/taxi"
)

// whitelistedConnection runs a whitelist request and shapes the offered entry
// into a bookable connection, the way a client would.
func whitelistedConnection(t *testing.T, f *fixture) *booking.ExpectedConnection {
	t.Helper()
	resp, err := f.service.Whitelist(context.Background(), taxi.WhitelistRequest{
		Start:         rideStart,
		Target:        dispatch.Coordinates{Lat: 51.5, Lng: 13.9},
		StartBusStops: []taxi.BusStop{{Coordinates: transitStop, Times: []int64{f.noon}}},
		Capacities:    dispatch.Capacities{Passengers: 1},
	})
	require.NoError(t, err)
	entry := resp.Start[0][0]
	require.NotNil(t, entry)

	return &booking.ExpectedConnection{
		Start:         rideStart,
		Target:        transitStop,
		StartTime:     entry.PickupTime,
		TargetTime:    entry.DropoffTime,
		RequestedTime: f.noon,
		StartFixed:    false,
		Signature:     entry.Signature,
	}
}

func TestBookCommitsWhitelistedLeg(t *testing.T) {
	f := newFixture(t)
	c := whitelistedConnection(t, f)

	result, err := f.service.Book(context.Background(), taxi.BookingParameters{
		Connection1: c,
		Capacities:  dispatch.Capacities{Passengers: 1},
		CustomerID:  99,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.RequestID1)
	assert.Equal(t, int64(1), *result.RequestID1)
	assert.Nil(t, result.RequestID2)
	assert.Greater(t, result.Cost, 0.0)

	require.Len(t, f.bookings.Commits, 1)
	commit := f.bookings.Commits[0]
	assert.Equal(t, int64(99), commit.CustomerID)
	assert.Equal(t, int64(7), commit.VehicleID)
	assert.Nil(t, commit.Tour, "an idle vehicle opens a new tour")
	assert.Empty(t, commit.MergeTourList)
	assert.True(t, commit.Pickup.IsPickup)
	assert.False(t, commit.Dropoff.IsPickup)
	assert.Equal(t, c.StartTime, commit.Pickup.CommunicatedTime,
		"promised pickup time must be kept")
	assert.Equal(t, c.TargetTime, commit.Dropoff.CommunicatedTime,
		"promised dropoff time must be kept")
	assert.Equal(t, int64(constantDriveTime), commit.Pickup.PrevLegDuration,
		"approach leg carries no passenger change time")
	assert.Equal(t, int64(constantDriveTime+taxi.PassengerChangeDuration),
		commit.Pickup.NextLegDuration)
	assert.Equal(t, int64(constantDriveTime+taxi.PassengerChangeDuration),
		commit.Dropoff.PrevLegDuration)
	require.NotNil(t, commit.Departure)
	require.NotNil(t, commit.Arrival)
	assert.Less(t, *commit.Departure, *commit.Arrival)

	require.Len(t, f.notifier.changes, 1)
	change := f.notifier.changes[0]
	assert.Equal(t, notify.ChangeNewTour, change.Change)
	assert.Equal(t, int64(7), change.VehicleID)
	assert.Equal(t, int64(1), change.RequestID)
}

func TestBookRejectsTamperedSignature(t *testing.T) {
	f := newFixture(t)
	c := whitelistedConnection(t, f)
	c.StartTime += dispatch.Minute

	_, err := f.service.Book(context.Background(), taxi.BookingParameters{
		Connection1: c,
		Capacities:  dispatch.Capacities{Passengers: 1},
	})
	assert.ErrorIs(t, err, booking.ErrInvalidSignature)
	assert.Empty(t, f.bookings.Commits)
}

func TestBookRejectsTamperedRequestedTime(t *testing.T) {
	f := newFixture(t)
	c := whitelistedConnection(t, f)

	// Moving the requested time would widen the candidate search around a
	// different anchor than the one that was offered.
	c.RequestedTime = f.noon + 30*dispatch.Minute

	_, err := f.service.Book(context.Background(), taxi.BookingParameters{
		Connection1: c,
		Capacities:  dispatch.Capacities{Passengers: 1},
	})
	assert.ErrorIs(t, err, booking.ErrInvalidSignature)
	assert.Empty(t, f.bookings.Commits)
}

func TestBookRequiresConnection(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Book(context.Background(), taxi.BookingParameters{
		Capacities: dispatch.Capacities{Passengers: 1},
	})
	assert.ErrorIs(t, err, taxi.ErrMissingConnection)
}

func TestBookNoVehicleAvailable(t *testing.T) {
	f := newFixture(t)
	c := whitelistedConnection(t, f)

	// The vehicle loses its availability between whitelist and booking.
	f.availRepo.AvailabilityRows = nil

	_, err := f.service.Book(context.Background(), taxi.BookingParameters{
		Connection1: c,
		Capacities:  dispatch.Capacities{Passengers: 1},
	})
	assert.ErrorIs(t, err, taxi.ErrNoVehicleAvailable)
	assert.Empty(t, f.bookings.Commits)
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	c := whitelistedConnection(t, f)

	result, err := f.service.Book(context.Background(), taxi.BookingParameters{
		Connection1: c,
		Capacities:  dispatch.Capacities{Passengers: 1},
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Cancel(context.Background(), *result.RequestID1))
	assert.Equal(t, []int64{*result.RequestID1}, f.bookings.Cancelled)

	require.Len(t, f.notifier.changes, 2)
	assert.Equal(t, notify.ChangeCancelled, f.notifier.changes[1].Change)
}

func TestCancelUnknownRequest(t *testing.T) {
	f := newFixture(t)

	err := f.service.Cancel(context.Background(), 42)
	assert.ErrorIs(t, err, taxi.ErrRequestNotFound)
}
