package healthcheck

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
	"github.com/motis-project/prima-dispatch/internal/rideshare"
	"github.com/motis-project/prima-dispatch/internal/routing"
	"github.com/motis-project/prima-dispatch/internal/taxi"
)

// directDurationMaxGap is the largest gap between two tours of one vehicle
// for which a stored direct duration is still expected.
const directDurationMaxGap = 3 * dispatch.Hour

// durationTolerance is how far a stored duration may drift from a freshly
// routed one before it counts as a mismatch.
const durationTolerance = dispatch.Second

// Issue is one detected inconsistency.
type Issue struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

// Report is the outcome of one run.
type Report struct {
	Issues []Issue `json:"issues"`
}

// Healthy reports whether the run found no inconsistencies.
func (r *Report) Healthy() bool { return len(r.Issues) == 0 }

// RunOptions narrow a run to one vehicle or one day.
type RunOptions struct {
	VehicleID *int64
	DayStart  *int64
}

// ServiceConfig holds configuration for the health check service.
type ServiceConfig struct {
	// Repository reads the persisted schedule.
	Repository Repository

	// Routing re-derives leg durations. Optional; the routing-backed checks
	// are skipped when unset.
	Routing *routing.Service

	// Logger for detected issues.
	Logger zerolog.Logger
}

// Service runs consistency checks over the persisted schedule.
type Service struct {
	repo    Repository
	routing *routing.Service
	logger  zerolog.Logger
}

// NewService creates a health check service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:    cfg.Repository,
		routing: cfg.Routing,
		logger:  cfg.Logger.With().Str("component", "healthcheck").Logger(),
	}
}

// Run executes all checks and returns the collected issues.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	var window *interval.Interval
	if opts.DayStart != nil {
		w := interval.New(*opts.DayStart, *opts.DayStart+dispatch.Day)
		window = &w
	}

	allTours, err := s.repo.ToursWithRequests(ctx, true, window, opts.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("loading tours: %w", err)
	}
	tours, err := s.repo.ToursWithRequests(ctx, false, window, opts.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("loading uncancelled tours: %w", err)
	}

	report := &Report{}
	s.checkRequestEvents(report, tours)
	s.checkCancellationConsistency(report, allTours)
	s.checkCapacities(report, tours)
	s.checkOverlaps(report, tours)
	s.checkEventsInsideTours(report, tours)
	s.checkScheduledWindows(report, tours)
	if s.routing != nil {
		s.checkDirectDurations(ctx, report, tours)
		s.checkLegDurations(ctx, report, tours)
		s.checkDepotDurations(ctx, report, tours)
	}

	s.logger.Info().
		Int("tours", len(tours)).
		Int("issues", len(report.Issues)).
		Msg("health check finished")
	return report, nil
}

func (s *Service) addIssue(report *Report, check, format string, args ...any) {
	issue := Issue{Check: check, Message: fmt.Sprintf(format, args...)}
	report.Issues = append(report.Issues, issue)
	s.logger.Warn().Str("check", check).Msg(issue.Message)
}

// checkRequestEvents verifies that every request has exactly one pickup and
// one dropoff, and that no tour or request is empty.
func (s *Service) checkRequestEvents(report *Report, tours []Tour) {
	for _, tour := range tours {
		if len(tour.Requests) == 0 {
			s.addIssue(report, "request_events", "tour %d has no requests", tour.ID)
		}
		for _, request := range tour.Requests {
			if len(request.Events) != 2 {
				s.addIssue(report, "request_events",
					"request %d has %d events instead of 2", request.ID, len(request.Events))
				continue
			}
			var pickups, dropoffs int
			for _, e := range request.Events {
				if e.IsPickup {
					pickups++
				} else {
					dropoffs++
				}
			}
			if pickups != 1 || dropoffs != 1 {
				s.addIssue(report, "request_events",
					"request %d does not have both pickup and dropoff", request.ID)
			}
		}
	}
}

// checkCancellationConsistency verifies that cancellation flags agree between
// events, requests and tours.
func (s *Service) checkCancellationConsistency(report *Report, tours []Tour) {
	for _, tour := range tours {
		allCancelled := true
		for _, request := range tour.Requests {
			for _, e := range request.Events {
				if e.Cancelled != e.RequestCancelled {
					s.addIssue(report, "cancellation",
						"event %d and its request disagree on cancellation", e.ID)
				}
			}
			if !request.Cancelled {
				allCancelled = false
				if tour.Cancelled {
					s.addIssue(report, "cancellation",
						"tour %d is cancelled but request %d is not", tour.ID, request.ID)
				}
			}
		}
		if allCancelled && !tour.Cancelled && len(tour.Requests) > 0 {
			s.addIssue(report, "cancellation",
				"all requests of tour %d are cancelled but the tour is not", tour.ID)
		}
	}
}

// checkCapacities verifies that stored capacities are plausible.
func (s *Service) checkCapacities(report *Report, tours []Tour) {
	for _, tour := range tours {
		for _, request := range tour.Requests {
			if request.Passengers <= 0 {
				s.addIssue(report, "capacities",
					"request %d has non-positive passengers %d", request.ID, request.Passengers)
			}
			if request.Wheelchairs < 0 || request.Bikes < 0 || request.Luggage < 0 {
				s.addIssue(report, "capacities",
					"request %d has negative capacity values", request.ID)
			}
		}
	}
}

// checkOverlaps verifies that scheduled windows of one tour never overlap
// unless they describe the same stop, and that tours of one vehicle do not
// overlap each other.
func (s *Service) checkOverlaps(report *Report, tours []Tour) {
	for i, tour := range tours {
		events := tour.Events()
		for a := 0; a < len(events); a++ {
			for b := a + 1; b < len(events); b++ {
				e1, e2 := events[a], events[b]
				if !e1.ScheduledWindow().Overlaps(e2.ScheduledWindow()) {
					continue
				}
				sameStop := dispatch.SamePlace(e1.Coordinates, e2.Coordinates) &&
					e1.ScheduledWindow().Equal(e2.ScheduledWindow())
				if !sameStop {
					s.addIssue(report, "event_overlap",
						"events %d and %d of tour %d overlap", e1.ID, e2.ID, tour.ID)
				}
			}
		}
		for j := i + 1; j < len(tours); j++ {
			other := tours[j]
			if tour.VehicleID != other.VehicleID {
				continue
			}
			if interval.New(tour.Departure, tour.Arrival).
				Overlaps(interval.New(other.Departure, other.Arrival)) {
				s.addIssue(report, "tour_overlap",
					"tours %d and %d of vehicle %d overlap", tour.ID, other.ID, tour.VehicleID)
			}
		}
	}
}

// checkEventsInsideTours verifies that every stop happens between its tour's
// departure and arrival.
func (s *Service) checkEventsInsideTours(report *Report, tours []Tour) {
	for _, tour := range tours {
		tourWindow := interval.New(tour.Departure, tour.Arrival)
		for _, e := range tour.Events() {
			if !tourWindow.Overlaps(e.ScheduledWindow()) {
				s.addIssue(report, "event_bounds",
					"event %d lies outside tour %d", e.ID, tour.ID)
			}
		}
	}
}

// checkScheduledWindows verifies that scheduled windows are ordered and never
// grew past the communicated-time buffers.
func (s *Service) checkScheduledWindows(report *Report, tours []Tour) {
	for _, tour := range tours {
		for _, request := range tour.Requests {
			var pickup, dropoff *Event
			for i := range request.Events {
				e := &request.Events[i]
				if e.ScheduledTimeEnd < e.ScheduledTimeStart {
					s.addIssue(report, "window_order",
						"event %d has scheduled end before start", e.ID)
				}
				if e.IsPickup {
					pickup = e
				} else {
					dropoff = e
				}
			}
			if pickup == nil || dropoff == nil {
				continue
			}
			durationApprox := dropoff.ScheduledTimeStart - pickup.ScheduledTimeEnd
			if pickup.ScheduledWindow().Size() > rideshare.ScheduledTimeBufferPickup {
				s.addIssue(report, "window_size",
					"pickup event %d window grew past its buffer", pickup.ID)
			}
			if dropoff.ScheduledWindow().Size() > rideshare.ScheduledTimeBufferDropoff(durationApprox) {
				s.addIssue(report, "window_size",
					"dropoff event %d window grew past its buffer", dropoff.ID)
			}
		}
	}
}

// checkDirectDurations re-routes the connection between consecutive tours of
// one vehicle and compares it with the stored direct duration.
func (s *Service) checkDirectDurations(ctx context.Context, report *Report, tours []Tour) {
	byVehicle := make(map[int64][]Tour)
	for _, t := range tours {
		byVehicle[t.VehicleID] = append(byVehicle[t.VehicleID], t)
	}
	for _, vehicleTours := range byVehicle {
		sort.Slice(vehicleTours, func(a, b int) bool {
			return vehicleTours[a].Departure < vehicleTours[b].Departure
		})
		for i := 1; i < len(vehicleTours); i++ {
			earlier, later := vehicleTours[i-1], vehicleTours[i]
			earlierEvents := sortedEvents(&earlier)
			laterEvents := sortedEvents(&later)
			if len(earlierEvents) == 0 || len(laterEvents) == 0 {
				continue
			}
			gap := later.Departure - earlier.Arrival
			if gap <= 0 || gap > directDurationMaxGap {
				continue
			}
			from := earlierEvents[len(earlierEvents)-1]
			to := laterEvents[0]
			forward := s.routeOne(ctx, from.Coordinates, to.Coordinates, false)
			backward := s.routeOne(ctx, to.Coordinates, from.Coordinates, true)
			if forward == nil && backward == nil {
				if later.DirectDuration != nil {
					s.addIssue(report, "direct_duration",
						"tour %d stores a direct duration for an unroutable connection", later.ID)
				}
				continue
			}
			if later.DirectDuration == nil {
				if forward != nil && backward != nil {
					s.addIssue(report, "direct_duration",
						"tour %d is missing its direct duration", later.ID)
				}
				continue
			}
			stored := *later.DirectDuration
			if forward != nil && backward != nil &&
				abs64(*forward-stored) > durationTolerance &&
				abs64(*backward-stored) > durationTolerance {
				s.addIssue(report, "direct_duration",
					"tour %d direct duration %d does not match routing (%d or %d)",
					later.ID, stored, *forward, *backward)
			}
		}
	}
}

// checkLegDurations verifies that consecutive stops agree on the leg between
// them, that the stored leg is long enough to drive, and that the scheduled
// windows leave room for it.
func (s *Service) checkLegDurations(ctx context.Context, report *Report, tours []Tour) {
	for _, tour := range tours {
		events := sortedEvents(&tour)
		for i := 0; i+1 < len(events); i++ {
			earlier, later := events[i], events[i+1]
			if earlier.EventGroup != "" && earlier.EventGroup == later.EventGroup {
				continue
			}
			if earlier.NextLegDuration != later.PrevLegDuration {
				s.addIssue(report, "leg_duration",
					"events %d and %d disagree on their shared leg (%d vs %d)",
					earlier.ID, later.ID, earlier.NextLegDuration, later.PrevLegDuration)
			}
			samePlace := dispatch.SamePlace(earlier.Coordinates, later.Coordinates)
			forward := s.routeOne(ctx, earlier.Coordinates, later.Coordinates, false)
			backward := s.routeOne(ctx, later.Coordinates, earlier.Coordinates, true)
			expected := legExpectation(forward, samePlace)
			expected2 := legExpectation(backward, samePlace)
			if expected != nil && expected2 != nil &&
				*expected > earlier.NextLegDuration && *expected2 > earlier.NextLegDuration {
				s.addIssue(report, "leg_duration",
					"leg %d -> %d is shorter than the routed duration", earlier.ID, later.ID)
			}
			timeDiff := later.ScheduledTimeStart - earlier.ScheduledTimeEnd
			if samePlace {
				timeDiff = 0
			}
			if expected != nil && expected2 != nil && timeDiff < *expected && timeDiff < *expected2 {
				s.addIssue(report, "leg_duration",
					"scheduled gap between events %d and %d cannot fit the drive", earlier.ID, later.ID)
			}
		}
	}
}

// checkDepotDurations verifies the first and last legs against the depot and
// that the tour bounds leave no unexplained waiting.
func (s *Service) checkDepotDurations(ctx context.Context, report *Report, tours []Tour) {
	for _, tour := range tours {
		if tour.Company == nil {
			continue
		}
		events := sortedEvents(&tour)
		if len(events) == 0 {
			continue
		}
		first := events[0]
		last := events[len(events)-1]

		fromDepot := s.routeOne(ctx, *tour.Company, first.Coordinates, false)
		fromDepotBwd := s.routeOne(ctx, first.Coordinates, *tour.Company, true)
		if fromDepot != nil && fromDepotBwd != nil &&
			abs64(*fromDepot-first.PrevLegDuration) > durationTolerance &&
			abs64(*fromDepotBwd-first.PrevLegDuration) > durationTolerance {
			s.addIssue(report, "depot_duration",
				"tour %d first leg from depot does not match routing", tour.ID)
		}
		if first.ScheduledTimeEnd-first.PrevLegDuration-tour.Departure != 0 {
			s.addIssue(report, "depot_duration",
				"tour %d has unexplained waiting after departure", tour.ID)
		}
		if tour.Arrival-last.ScheduledTimeStart-last.NextLegDuration != 0 {
			s.addIssue(report, "depot_duration",
				"tour %d has unexplained waiting before arrival", tour.ID)
		}
		toDepot := s.routeOne(ctx, last.Coordinates, *tour.Company, false)
		if toDepot != nil &&
			abs64(*toDepot+taxi.PassengerChangeDuration-last.NextLegDuration) > durationTolerance {
			s.addIssue(report, "depot_duration",
				"tour %d last leg to depot does not match routing", tour.ID)
		}
	}
}

// routeOne returns the routed duration of one leg, nil when unroutable or the
// provider failed. Routing failures are not health issues by themselves.
func (s *Service) routeOne(ctx context.Context, from, to dispatch.Coordinates, arriveBy bool) *int64 {
	durations, err := s.routing.BatchOneToMany(ctx, from, []*dispatch.Coordinates{&to}, arriveBy)
	if err != nil {
		s.logger.Debug().Err(err).Msg("health check routing failed")
		return nil
	}
	return durations[0]
}

func legExpectation(routed *int64, samePlace bool) *int64 {
	if routed == nil {
		return nil
	}
	if samePlace {
		zero := int64(0)
		return &zero
	}
	expected := *routed + taxi.PassengerChangeDuration
	return &expected
}

func sortedEvents(tour *Tour) []Event {
	events := tour.Events()
	sort.Slice(events, func(a, b int) bool {
		if events[a].ScheduledTimeStart != events[b].ScheduledTimeStart {
			return events[a].ScheduledTimeStart < events[b].ScheduledTimeStart
		}
		return events[a].ScheduledTimeEnd < events[b].ScheduledTimeEnd
	})
	return events
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
