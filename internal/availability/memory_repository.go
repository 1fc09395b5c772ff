package availability

import (
	"context"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// InMemoryRepository is an in-memory implementation of Repository for tests
// and local development. The zone check degenerates to "everything covered"
// unless CoveredFn is set.
type InMemoryRepository struct {
	CompanyRows      []CompanyRow
	VehicleRows      []VehicleRow
	AvailabilityRows []AvailabilityRow
	TourRows         []TourRow

	// CoveredFn overrides the zone coverage check when set.
	CoveredFn func(point dispatch.Coordinates) bool
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) covered(point dispatch.Coordinates) bool {
	if r.CoveredFn == nil {
		return true
	}
	return r.CoveredFn(point)
}

// CompaniesInZone returns all companies when the point is covered.
func (r *InMemoryRepository) CompaniesInZone(_ context.Context, point dispatch.Coordinates) ([]CompanyRow, error) {
	if !r.covered(point) {
		return nil, nil
	}
	return r.CompanyRows, nil
}

// EligibleVehicles filters the stored vehicles by company and capacity.
func (r *InMemoryRepository) EligibleVehicles(_ context.Context, companyIDs []int64, required dispatch.Capacities) ([]VehicleRow, error) {
	ids := make(map[int64]bool, len(companyIDs))
	for _, id := range companyIDs {
		ids[id] = true
	}
	var out []VehicleRow
	for _, v := range r.VehicleRows {
		if ids[v.CompanyID] && v.Fits(required) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Availabilities returns stored availability rows intersecting the window.
func (r *InMemoryRepository) Availabilities(_ context.Context, vehicleIDs []int64, window interval.Interval) ([]AvailabilityRow, error) {
	ids := make(map[int64]bool, len(vehicleIDs))
	for _, id := range vehicleIDs {
		ids[id] = true
	}
	var out []AvailabilityRow
	for _, a := range r.AvailabilityRows {
		if ids[a.VehicleID] && a.Start <= window.End && a.End >= window.Start {
			out = append(out, a)
		}
	}
	return out, nil
}

// Tours returns stored tours intersecting the window.
func (r *InMemoryRepository) Tours(_ context.Context, vehicleIDs []int64, window interval.Interval) ([]TourRow, error) {
	ids := make(map[int64]bool, len(vehicleIDs))
	for _, id := range vehicleIDs {
		ids[id] = true
	}
	var out []TourRow
	for _, t := range r.TourRows {
		if ids[t.VehicleID] && t.Departure <= window.End && t.Arrival >= window.Start {
			out = append(out, t)
		}
	}
	return out, nil
}

// CoveredBusStops applies CoveredFn to each stop.
func (r *InMemoryRepository) CoveredBusStops(_ context.Context, _ dispatch.Coordinates, stops []dispatch.Coordinates) ([]bool, error) {
	covered := make([]bool, len(stops))
	for i, s := range stops {
		covered[i] = r.covered(s)
	}
	return covered, nil
}
