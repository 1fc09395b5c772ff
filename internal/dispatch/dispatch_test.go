package dispatch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
)

func TestCapacitiesFits(t *testing.T) {
	vehicle := dispatch.Capacities{Passengers: 3, Luggage: 2, Bikes: 1, Wheelchairs: 0}

	tests := []struct {
		name     string
		required dispatch.Capacities
		want     bool
	}{
		{"empty request", dispatch.Capacities{}, true},
		{"exact fit", dispatch.Capacities{Passengers: 3, Luggage: 2, Bikes: 1}, true},
		{"too many passengers", dispatch.Capacities{Passengers: 4}, false},
		{"wheelchair without space", dispatch.Capacities{Wheelchairs: 1}, false},
		{"luggage on free seats", dispatch.Capacities{Passengers: 1, Luggage: 4}, true},
		{"luggage beyond free seats", dispatch.Capacities{Passengers: 3, Luggage: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, vehicle.Fits(tt.required))
		})
	}
}

func TestInsertionTypeValidity(t *testing.T) {
	cases := []struct {
		name string
		typ  dispatch.InsertionType
		can  bool
	}{
		{
			"prepend before first event",
			dispatch.InsertionType{How: dispatch.Prepend, Where: dispatch.BeforeFirstEvent},
			true,
		},
		{
			"append before first event",
			dispatch.InsertionType{How: dispatch.Append, Where: dispatch.BeforeFirstEvent},
			false,
		},
		{
			"insert between tours",
			dispatch.InsertionType{How: dispatch.Insert, Where: dispatch.BetweenTours},
			false,
		},
		{
			"connect between tours",
			dispatch.InsertionType{How: dispatch.Connect, Where: dispatch.BetweenTours},
			true,
		},
		{
			"insert between events",
			dispatch.InsertionType{How: dispatch.Insert, Where: dispatch.BetweenEvents},
			true,
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.can, tt.typ.CanBeValid())
		})
	}
}

func TestInsertionTypeIsValidSingleLegs(t *testing.T) {
	// A lone pickup leg cannot be the last event of a tour and a lone dropoff
	// leg cannot be the first.
	pickupLeg := dispatch.InsertionType{
		What:      dispatch.BusStop,
		Direction: dispatch.BusStopPickup,
		How:       dispatch.Append,
	}
	assert.False(t, pickupLeg.IsValid())

	dropoffLeg := dispatch.InsertionType{
		What:      dispatch.BusStop,
		Direction: dispatch.BusStopDropoff,
		How:       dispatch.Prepend,
	}
	assert.False(t, dropoffLeg.IsValid())

	both := dispatch.InsertionType{What: dispatch.Both, How: dispatch.Append}
	assert.True(t, both.IsValid())
}

func TestSamePlace(t *testing.T) {
	a := dispatch.Coordinates{Lat: 51.0255, Lng: 13.7213}
	assert.True(t, dispatch.SamePlace(a, dispatch.Coordinates{Lat: 51.025500001, Lng: 13.7213}))
	assert.False(t, dispatch.SamePlace(a, dispatch.Coordinates{Lat: 51.0257, Lng: 13.7213}))
}

func change(passengers int, pickup bool) dispatch.CapacityChange {
	return dispatch.CapacityChange{
		Capacities: dispatch.Capacities{Passengers: passengers},
		IsPickup:   pickup,
	}
}

func TestPossibleInsertions(t *testing.T) {
	vehicle := dispatch.Capacities{Passengers: 3, Luggage: 0}
	required := dispatch.Capacities{Passengers: 1}

	t.Run("no events", func(t *testing.T) {
		assert.Empty(t, dispatch.PossibleInsertions(vehicle, required, nil))
	})

	t.Run("vehicle too small", func(t *testing.T) {
		assert.Empty(t, dispatch.PossibleInsertions(
			dispatch.Capacities{Passengers: 1}, dispatch.Capacities{Passengers: 2},
			[]dispatch.CapacityChange{change(1, true)}))
	})

	t.Run("single range over whole schedule", func(t *testing.T) {
		events := []dispatch.CapacityChange{
			change(1, true), change(1, false),
			change(2, true), change(2, false),
		}
		got := dispatch.PossibleInsertions(vehicle, required, events)
		require.Len(t, got, 1)
		assert.Equal(t, dispatch.Range{EarliestPickup: 0, LatestDropoff: 4}, got[0])
	})

	t.Run("full vehicle splits ranges", func(t *testing.T) {
		// Between indices 2 and 3 the vehicle carries 3 passengers, leaving no
		// room for the new one.
		events := []dispatch.CapacityChange{
			change(1, true),  // load 1
			change(2, true),  // load 3
			change(2, false), // load 1
			change(1, false), // load 0
		}
		got := dispatch.PossibleInsertions(vehicle, required, events)
		require.Len(t, got, 2)
		assert.Equal(t, dispatch.Range{EarliestPickup: 0, LatestDropoff: 1}, got[0])
		assert.Equal(t, dispatch.Range{EarliestPickup: 3, LatestDropoff: 4}, got[1])
	})
}

func TestAllowedTimesSpansDays(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Two winter days (CET, UTC+1).
	earliest := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC).UnixMilli()
	latest := time.Date(2026, 1, 13, 18, 0, 0, 0, time.UTC).UnixMilli()
	got := dispatch.AllowedTimes(earliest, latest, 6*dispatch.Hour, 21*dispatch.Hour, berlin)
	require.Len(t, got, 2)

	// 06:00 Berlin is 05:00 UTC in winter.
	wantStart := time.Date(2026, 1, 12, 5, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, wantStart, got[0].Start)
	assert.Equal(t, wantStart+15*dispatch.Hour, got[0].End)
}

func TestAllowedTimesDSTChangeover(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Saturday 2026-03-28 is still CET, clocks jump to CEST during the night
	// to Sunday 2026-03-29. The operating windows must stay at 06:00-21:00
	// local wall-clock time on both days.
	earliest := time.Date(2026, 3, 28, 9, 0, 0, 0, berlin).UnixMilli()
	latest := time.Date(2026, 3, 29, 18, 0, 0, 0, berlin).UnixMilli()
	got := dispatch.AllowedTimes(earliest, latest, 6*dispatch.Hour, 21*dispatch.Hour, berlin)
	require.Len(t, got, 2)

	// 06:00 CET is 05:00 UTC, 06:00 CEST is 04:00 UTC.
	assert.Equal(t, time.Date(2026, 3, 28, 5, 0, 0, 0, time.UTC).UnixMilli(), got[0].Start)
	assert.Equal(t, time.Date(2026, 3, 28, 20, 0, 0, 0, time.UTC).UnixMilli(), got[0].End)
	assert.Equal(t, time.Date(2026, 3, 29, 4, 0, 0, 0, time.UTC).UnixMilli(), got[1].Start)
	assert.Equal(t, time.Date(2026, 3, 29, 19, 0, 0, 0, time.UTC).UnixMilli(), got[1].End)
}

func TestAllowedTimesEmptyRange(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	assert.Empty(t, dispatch.AllowedTimes(100, 100, 0, dispatch.Day, berlin))
}
