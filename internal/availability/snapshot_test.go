package availability_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/availability"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

func event(id, tourID int64, start, end int64, pickup bool) availability.Event {
	return availability.Event{
		ID:               id,
		TourID:           tourID,
		IsPickup:         pickup,
		Time:             interval.New(start, end),
		CommunicatedTime: start,
		Capacities:       dispatch.Capacities{Passengers: 1},
	}
}

func testRepo() *availability.InMemoryRepository {
	repo := availability.NewInMemoryRepository()
	repo.CompanyRows = []availability.CompanyRow{
		{ID: 1, ZoneID: 10, Coordinates: dispatch.Coordinates{Lat: 51.0, Lng: 13.7}},
	}
	repo.VehicleRows = []availability.VehicleRow{
		{ID: 7, CompanyID: 1, Capacities: dispatch.Capacities{Passengers: 3, Luggage: 2}},
		{ID: 8, CompanyID: 1, Capacities: dispatch.Capacities{Passengers: 1}},
	}
	return repo
}

func TestSnapshotMergesAvailabilities(t *testing.T) {
	repo := testRepo()
	repo.AvailabilityRows = []availability.AvailabilityRow{
		{VehicleID: 7, Start: 0, End: 5 * dispatch.Hour},
		{VehicleID: 7, Start: 4 * dispatch.Hour, End: 9 * dispatch.Hour},
		{VehicleID: 7, Start: 12 * dispatch.Hour, End: 14 * dispatch.Hour},
	}
	svc := availability.NewService(availability.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
	})

	snap, err := svc.Snapshot(context.Background(),
		dispatch.Coordinates{Lat: 51, Lng: 13.7},
		dispatch.Capacities{Passengers: 2},
		interval.New(6*dispatch.Hour, 8*dispatch.Hour),
		nil)
	require.NoError(t, err)
	require.Len(t, snap.Companies, 1)
	require.Len(t, snap.Companies[0].Vehicles, 1, "undersized vehicle must be filtered")

	vehicle := snap.Companies[0].Vehicles[0]
	require.Len(t, vehicle.Availabilities, 2)
	assert.Equal(t, interval.New(0, 9*dispatch.Hour), vehicle.Availabilities[0])
	assert.Equal(t, interval.New(12*dispatch.Hour, 14*dispatch.Hour), vehicle.Availabilities[1])
}

func TestSnapshotSentinelEvents(t *testing.T) {
	repo := testRepo()
	day := dispatch.Day
	repo.AvailabilityRows = []availability.AvailabilityRow{
		{VehicleID: 7, Start: day, End: 2 * day},
	}
	// One tour far before the window, one inside, one far after. The search
	// window is expanded by 3h on each side, so tours beyond that expansion
	// surface only as sentinels.
	repo.TourRows = []availability.TourRow{
		{
			ID: 1, VehicleID: 7, Departure: day + 1*dispatch.Hour, Arrival: day + 2*dispatch.Hour,
			Events: []availability.Event{
				event(1, 1, day+1*dispatch.Hour, day+70*dispatch.Minute, true),
				event(2, 1, day+100*dispatch.Minute, day+2*dispatch.Hour, false),
			},
		},
		{
			ID: 2, VehicleID: 7, Departure: day + 12*dispatch.Hour, Arrival: day + 13*dispatch.Hour,
			Events: []availability.Event{
				event(3, 2, day+12*dispatch.Hour, day+12*dispatch.Hour+10*dispatch.Minute, true),
				event(4, 2, day+750*dispatch.Minute, day+13*dispatch.Hour, false),
			},
		},
		{
			ID: 3, VehicleID: 7, Departure: day + 22*dispatch.Hour, Arrival: day + 23*dispatch.Hour,
			Events: []availability.Event{
				event(5, 3, day+22*dispatch.Hour, day+1330*dispatch.Minute, true),
				event(6, 3, day+1350*dispatch.Minute, day+23*dispatch.Hour, false),
			},
		},
	}
	svc := availability.NewService(availability.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
	})

	snap, err := svc.Snapshot(context.Background(),
		dispatch.Coordinates{Lat: 51, Lng: 13.7},
		dispatch.Capacities{Passengers: 1},
		interval.New(day+11*dispatch.Hour, day+14*dispatch.Hour),
		nil)
	require.NoError(t, err)
	require.Len(t, snap.Companies, 1)

	vehicle := snap.Companies[0].Vehicles[0]
	require.Len(t, vehicle.Tours, 1)
	assert.Equal(t, int64(2), vehicle.Tours[0].ID)
	require.Len(t, vehicle.Events, 2)
	assert.True(t, vehicle.Events[0].IsPickup)

	require.NotNil(t, vehicle.LastEventBefore)
	assert.Equal(t, int64(2), vehicle.LastEventBefore.ID, "latest event of earlier tours")
	require.NotNil(t, vehicle.FirstEventAfter)
	assert.Equal(t, int64(5), vehicle.FirstEventAfter.ID, "earliest event of later tours")
}

func TestSnapshotBusStopFilter(t *testing.T) {
	repo := testRepo()
	repo.CoveredFn = func(p dispatch.Coordinates) bool { return p.Lat < 52 }
	svc := availability.NewService(availability.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
	})

	snap, err := svc.Snapshot(context.Background(),
		dispatch.Coordinates{Lat: 51, Lng: 13.7},
		dispatch.Capacities{Passengers: 1},
		interval.New(0, dispatch.Hour),
		[]dispatch.Coordinates{
			{Lat: 53, Lng: 13},
			{Lat: 51.1, Lng: 13.7},
			{Lat: 51.2, Lng: 13.8},
		})
	require.NoError(t, err)
	assert.Equal(t, []int{-1, 0, 1}, snap.BusStopFilter)
}

func TestSnapshotNoCompanies(t *testing.T) {
	repo := availability.NewInMemoryRepository()
	svc := availability.NewService(availability.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
	})

	snap, err := svc.Snapshot(context.Background(),
		dispatch.Coordinates{}, dispatch.Capacities{}, interval.New(0, 1),
		[]dispatch.Coordinates{{Lat: 1, Lng: 1}})
	require.NoError(t, err)
	assert.Empty(t, snap.Companies)
	assert.Equal(t, []int{-1}, snap.BusStopFilter)
}
