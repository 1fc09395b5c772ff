package taxi

import (
	"context"
	"fmt"
	"math"

	"github.com/motis-project/prima-dispatch/internal/availability"
	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// BusStop is one requested public-transit stop with the candidate departure
// or arrival times to connect to.
type BusStop struct {
	dispatch.Coordinates
	Times []int64
}

// EvaluateRequest prices every way of serving the request with the given
// companies and returns the cheapest insertion per bus stop and time, nil
// where no vehicle can serve the connection. startFixed states whether the
// bus stop is the pickup.
func (s *Service) EvaluateRequest(
	ctx context.Context,
	companies []availability.Company,
	expanded interval.Interval,
	userChosen dispatch.Coordinates,
	busStops []BusStop,
	required dispatch.Capacities,
	startFixed bool,
	promised *booking.PromisedTimes,
) ([][]*Insertion, error) {
	if len(companies) == 0 {
		return emptyResult(busStops), nil
	}

	stopCoords := make([]*dispatch.Coordinates, len(busStops))
	for i := range busStops {
		stopCoords[i] = &busStops[i].Coordinates
	}
	directDurations, err := s.routing.BatchOneToMany(ctx, userChosen, stopCoords, startFixed)
	if err != nil {
		return nil, fmt.Errorf("routing direct durations: %w", err)
	}
	for i, d := range directDurations {
		if d != nil {
			directDurations[i] = int64Ptr(*d + PassengerChangeDuration + BufferTime)
		}
	}

	insertionRanges := make(map[int64][]dispatch.Range)
	for _, company := range companies {
		for _, vehicle := range company.Vehicles {
			insertionRanges[vehicle.ID] = dispatch.PossibleInsertions(
				vehicle.Capacities, required, vehicle.CapacityChanges())
		}
	}

	backward, forward := gatherRoutingCoordinates(companies, insertionRanges)
	coords := make([]dispatch.Coordinates, len(busStops))
	for i := range busStops {
		coords[i] = busStops[i].Coordinates
	}
	results, err := routeInsertions(ctx, s.routing, companies, backward, forward, userChosen, coords)
	if err != nil {
		return nil, err
	}

	busStopTimes := make([][]interval.Interval, len(busStops))
	for i, bs := range busStops {
		busStopTimes[i] = make([]interval.Interval, len(bs.Times))
		for j, t := range bs.Times {
			if startFixed {
				busStopTimes[i][j] = interval.New(t, t+MaxPassengerWaitingTimeDropoff)
			} else {
				busStopTimes[i][j] = interval.New(t-MaxPassengerWaitingTimePickup, t)
			}
		}
	}

	// Smallest interval containing all availabilities and tours.
	earliest := int64(math.MaxInt64)
	latest := int64(0)
	for _, company := range companies {
		for _, vehicle := range company.Vehicles {
			for _, a := range vehicle.Availabilities {
				earliest = min(earliest, a.Start)
				latest = max(latest, a.End)
			}
			for _, t := range vehicle.Tours {
				earliest = min(earliest, t.Departure)
				latest = max(latest, t.Arrival)
			}
		}
	}
	if earliest >= latest {
		return emptyResult(busStops), nil
	}
	allowedTimes := dispatch.AllowedTimes(earliest, latest, EarliestShiftStart, LatestShiftEnd, s.loc)

	now := s.now().In(s.loc)
	newTourEvaluations := evaluateNewTours(companies, required, startFixed, expanded,
		busStopTimes, results, directDurations, allowedTimes, now, promised)
	evaluations := evaluateSingleInsertions(companies, required, startFixed, expanded,
		insertionRanges, busStopTimes, results, directDurations, allowedTimes, now, promised)
	pairEvaluations := evaluatePairInsertions(companies, startFixed, insertionRanges,
		busStopTimes, evaluations.BusStopEvaluations, evaluations.UserChosenEvaluations, required)

	best := takeBest(takeBest(evaluations.BothEvaluations, pairEvaluations), newTourEvaluations)

	s.logger.Debug().
		Int("companies", len(companies)).
		Int("busStops", len(busStops)).
		Bool("startFixed", startFixed).
		Msg("request evaluated")
	return best, nil
}

func emptyResult(busStops []BusStop) [][]*Insertion {
	result := make([][]*Insertion, len(busStops))
	for i, bs := range busStops {
		result[i] = make([]*Insertion, len(bs.Times))
	}
	return result
}
