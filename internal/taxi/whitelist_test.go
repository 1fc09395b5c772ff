package taxi_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/availability"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/taxi"
)

func TestWhitelistOffersFirstMileLeg(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.Whitelist(context.Background(), taxi.WhitelistRequest{
		Start:          rideStart,
		Target:         dispatch.Coordinates{Lat: 51.5, Lng: 13.9},
		StartBusStops:  []taxi.BusStop{{Coordinates: transitStop, Times: []int64{f.noon}}},
		TargetBusStops: nil,
		Capacities:     dispatch.Capacities{Passengers: 1},
	})
	require.NoError(t, err)
	require.Len(t, resp.Start, 1)
	require.Len(t, resp.Start[0], 1)

	entry := resp.Start[0][0]
	require.NotNil(t, entry, "idle vehicle must be able to open a tour")

	// The vehicle arrives at the stop right at the transit departure. Each
	// leg takes the constant drive time plus the passenger change duration.
	legDuration := constantDriveTime + taxi.PassengerChangeDuration
	assert.Equal(t, f.noon, entry.DropoffTime)
	assert.Equal(t, f.noon-legDuration-15*dispatch.Minute, entry.PickupTime)
	assert.Equal(t, legDuration, entry.PassengerDuration)
	assert.Greater(t, entry.Cost, 0.0)
	assert.NotEmpty(t, entry.Signature)
	assert.Empty(t, resp.Direct)
}

func TestWhitelistNoAvailability(t *testing.T) {
	f := newFixture(t)
	f.availRepo.AvailabilityRows = nil

	resp, err := f.service.Whitelist(context.Background(), taxi.WhitelistRequest{
		Start:         rideStart,
		Target:        dispatch.Coordinates{Lat: 51.5, Lng: 13.9},
		StartBusStops: []taxi.BusStop{{Coordinates: transitStop, Times: []int64{f.noon}}},
		Capacities:    dispatch.Capacities{Passengers: 1},
	})
	require.NoError(t, err)
	require.Len(t, resp.Start, 1)
	require.Len(t, resp.Start[0], 1)
	assert.Nil(t, resp.Start[0][0])
}

func TestWhitelistRespectsShiftHours(t *testing.T) {
	f := newFixture(t)
	f.availRepo.AvailabilityRows = []availability.AvailabilityRow{
		{VehicleID: 7, Start: f.noon - 5*dispatch.Hour, End: f.noon + 12*dispatch.Hour},
	}

	// 23:00 local is outside the permitted shift hours even though the
	// vehicle is marked available.
	resp, err := f.service.Whitelist(context.Background(), taxi.WhitelistRequest{
		Start:         rideStart,
		Target:        dispatch.Coordinates{Lat: 51.5, Lng: 13.9},
		StartBusStops: []taxi.BusStop{{Coordinates: transitStop, Times: []int64{f.noon + 11*dispatch.Hour}}},
		Capacities:    dispatch.Capacities{Passengers: 1},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Start[0][0])
}

func TestWhitelistRespectsLeadTime(t *testing.T) {
	f := newFixture(t)

	// The clock stands at noon minus four hours; half an hour of lead time
	// is not enough to dispatch a vehicle.
	resp, err := f.service.Whitelist(context.Background(), taxi.WhitelistRequest{
		Start:         rideStart,
		Target:        dispatch.Coordinates{Lat: 51.5, Lng: 13.9},
		StartBusStops: []taxi.BusStop{{Coordinates: transitStop, Times: []int64{f.noon - 3*dispatch.Hour - 30*dispatch.Minute}}},
		Capacities:    dispatch.Capacities{Passengers: 1},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Start[0][0])
}

func TestWhitelistFiltersUndersizedVehicles(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.Whitelist(context.Background(), taxi.WhitelistRequest{
		Start:         rideStart,
		Target:        dispatch.Coordinates{Lat: 51.5, Lng: 13.9},
		StartBusStops: []taxi.BusStop{{Coordinates: transitStop, Times: []int64{f.noon}}},
		Capacities:    dispatch.Capacities{Passengers: 5},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Start[0][0])
}

func TestWhitelistDirectRide(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.Whitelist(context.Background(), taxi.WhitelistRequest{
		Start:       rideStart,
		Target:      transitStop,
		DirectTimes: []int64{f.noon},
		StartFixed:  false,
		Capacities:  dispatch.Capacities{Passengers: 1},
	})
	require.NoError(t, err)
	require.Len(t, resp.Direct, 1)
	require.NotNil(t, resp.Direct[0])
	assert.Equal(t, f.noon, resp.Direct[0].DropoffTime)
	assert.NotEmpty(t, resp.Direct[0].Signature)
}
