package availability

import (
	"context"
	"errors"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// ErrNoZone indicates that no service zone covers the user-chosen coordinates.
var ErrNoZone = errors.New("no zone covers the requested coordinates")

// AvailabilityRow is one raw availability record of a vehicle.
type AvailabilityRow struct {
	VehicleID int64
	Start     int64
	End       int64
}

// TourRow is one tour with its events, as stored.
type TourRow struct {
	ID        int64
	VehicleID int64
	Departure int64
	Arrival   int64
	Events    []Event
}

// VehicleRow is one capacity-eligible vehicle of a company.
type VehicleRow struct {
	ID        int64
	CompanyID int64
	dispatch.Capacities
}

// CompanyRow is one company inside the user's zone.
type CompanyRow struct {
	ID     int64
	ZoneID int64
	dispatch.Coordinates
}

// Repository reads the persisted scheduling state. Implementations must filter
// vehicles by capacity (seats, wheelchairs, bikes; luggage jointly with free
// seats) and companies by the zone covering the user-chosen coordinates.
type Repository interface {
	// CompaniesInZone returns the companies whose zone covers the point.
	CompaniesInZone(ctx context.Context, point dispatch.Coordinates) ([]CompanyRow, error)

	// EligibleVehicles returns the vehicles of the given companies that can
	// serve the required capacities.
	EligibleVehicles(ctx context.Context, companyIDs []int64, required dispatch.Capacities) ([]VehicleRow, error)

	// Availabilities returns the raw availability rows of the given vehicles
	// intersecting the window.
	Availabilities(ctx context.Context, vehicleIDs []int64, window interval.Interval) ([]AvailabilityRow, error)

	// Tours returns the tours of the given vehicles intersecting the window,
	// each with its events.
	Tours(ctx context.Context, vehicleIDs []int64, window interval.Interval) ([]TourRow, error)

	// CoveredBusStops reports which of the stops lie inside the zone covering
	// the user-chosen point.
	CoveredBusStops(ctx context.Context, point dispatch.Coordinates, stops []dispatch.Coordinates) ([]bool, error)
}
