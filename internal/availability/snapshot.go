package availability

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// ServiceConfig holds configuration for the snapshot service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// MaxTravel bounds a single leg's driving duration (default: 1h). The
	// search window is expanded by multiples of it so tours and
	// availabilities reachable from the window edges are not missed.
	MaxTravel int64
}

// Service shapes raw repository rows into evaluation snapshots.
type Service struct {
	repo      Repository
	logger    zerolog.Logger
	maxTravel int64
}

// NewService creates a snapshot service.
func NewService(cfg ServiceConfig) *Service {
	maxTravel := cfg.MaxTravel
	if maxTravel == 0 {
		maxTravel = dispatch.Hour
	}
	return &Service{repo: cfg.Repository, logger: cfg.Logger, maxTravel: maxTravel}
}

// MaxTravel returns the configured single-leg driving bound.
func (s *Service) MaxTravel() int64 {
	return s.maxTravel
}

// Snapshot materializes the evaluation input for one request. Tours are
// fetched from a twice-expanded window so that the nearest events outside the
// expanded window can seed LastEventBefore and FirstEventAfter.
func (s *Service) Snapshot(
	ctx context.Context,
	userChosen dispatch.Coordinates,
	required dispatch.Capacities,
	searchWindow interval.Interval,
	busStops []dispatch.Coordinates,
) (*Snapshot, error) {
	expanded := searchWindow.Expand(3*s.maxTravel, 3*s.maxTravel)
	twiceExpanded := searchWindow.Expand(6*s.maxTravel, 6*s.maxTravel)

	s.logger.Debug().
		Stringer("search_window", searchWindow).
		Stringer("expanded_window", expanded).
		Float64("lat", userChosen.Lat).
		Float64("lng", userChosen.Lng).
		Msg("materializing availability snapshot")

	companyRows, err := s.repo.CompaniesInZone(ctx, userChosen)
	if err != nil {
		return nil, fmt.Errorf("fetch companies: %w", err)
	}
	if len(companyRows) == 0 {
		return &Snapshot{BusStopFilter: unmatchedFilter(len(busStops))}, nil
	}

	companyIDs := make([]int64, len(companyRows))
	for i, c := range companyRows {
		companyIDs[i] = c.ID
	}
	vehicleRows, err := s.repo.EligibleVehicles(ctx, companyIDs, required)
	if err != nil {
		return nil, fmt.Errorf("fetch vehicles: %w", err)
	}

	vehicleIDs := make([]int64, len(vehicleRows))
	for i, v := range vehicleRows {
		vehicleIDs[i] = v.ID
	}
	availabilityRows, err := s.repo.Availabilities(ctx, vehicleIDs, expanded)
	if err != nil {
		return nil, fmt.Errorf("fetch availabilities: %w", err)
	}
	tourRows, err := s.repo.Tours(ctx, vehicleIDs, twiceExpanded)
	if err != nil {
		return nil, fmt.Errorf("fetch tours: %w", err)
	}

	covered, err := s.repo.CoveredBusStops(ctx, userChosen, busStops)
	if err != nil {
		return nil, fmt.Errorf("filter bus stops: %w", err)
	}

	availabilitiesByVehicle := make(map[int64][]interval.Interval)
	for _, row := range availabilityRows {
		availabilitiesByVehicle[row.VehicleID] = append(
			availabilitiesByVehicle[row.VehicleID], interval.New(row.Start, row.End))
	}
	toursByVehicle := make(map[int64][]TourRow)
	for _, row := range tourRows {
		toursByVehicle[row.VehicleID] = append(toursByVehicle[row.VehicleID], row)
	}

	vehiclesByCompany := make(map[int64][]*Vehicle)
	for _, row := range vehicleRows {
		vehicle := buildVehicle(row, availabilitiesByVehicle[row.ID], toursByVehicle[row.ID], expanded)
		vehiclesByCompany[row.CompanyID] = append(vehiclesByCompany[row.CompanyID], vehicle)
	}

	companies := make([]Company, 0, len(companyRows))
	for _, row := range companyRows {
		vehicles := vehiclesByCompany[row.ID]
		if len(vehicles) == 0 {
			continue
		}
		companies = append(companies, Company{
			ID:          row.ID,
			ZoneID:      row.ZoneID,
			Coordinates: row.Coordinates,
			Vehicles:    vehicles,
		})
	}

	filter := make([]int, len(busStops))
	counter := 0
	for i := range busStops {
		if i < len(covered) && covered[i] {
			filter[i] = counter
			counter++
		} else {
			filter[i] = -1
		}
	}

	s.logger.Debug().
		Int("companies", len(companies)).
		Int("bus_stops_in_zone", counter).
		Msg("snapshot materialized")

	return &Snapshot{Companies: companies, BusStopFilter: filter}, nil
}

// buildVehicle shapes one vehicle: merged availabilities, tours and events
// restricted to the expanded window, and the nearest out-of-window events.
func buildVehicle(row VehicleRow, availabilities []interval.Interval, tours []TourRow, window interval.Interval) *Vehicle {
	vehicle := &Vehicle{
		ID:             row.ID,
		Capacities:     row.Capacities,
		Availabilities: interval.Merge(availabilities),
	}

	var before, after []TourRow
	for _, tour := range tours {
		tourInterval := interval.New(tour.Departure, tour.Arrival)
		switch {
		case window.Overlaps(tourInterval):
			vehicle.Tours = append(vehicle.Tours, Tour{
				ID:        tour.ID,
				Departure: tour.Departure,
				Arrival:   tour.Arrival,
			})
			vehicle.Events = append(vehicle.Events, tour.Events...)
		case tour.Arrival < window.Start:
			before = append(before, tour)
		case tour.Departure > window.End:
			after = append(after, tour)
		}
	}

	sort.Slice(vehicle.Tours, func(a, b int) bool {
		return vehicle.Tours[a].Departure < vehicle.Tours[b].Departure
	})
	sort.Slice(vehicle.Events, func(a, b int) bool {
		return vehicle.Events[a].Time.Start < vehicle.Events[b].Time.Start
	})

	for _, tour := range before {
		for i := range tour.Events {
			e := tour.Events[i]
			if vehicle.LastEventBefore == nil || e.CommunicatedTime > vehicle.LastEventBefore.CommunicatedTime {
				vehicle.LastEventBefore = &e
			}
		}
	}
	for _, tour := range after {
		for i := range tour.Events {
			e := tour.Events[i]
			if vehicle.FirstEventAfter == nil || e.CommunicatedTime < vehicle.FirstEventAfter.CommunicatedTime {
				vehicle.FirstEventAfter = &e
			}
		}
	}
	return vehicle
}

func unmatchedFilter(n int) []int {
	filter := make([]int, n)
	for i := range filter {
		filter[i] = -1
	}
	return filter
}
