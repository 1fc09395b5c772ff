package taxi

import (
	"context"
	"fmt"

	"github.com/motis-project/prima-dispatch/internal/availability"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/routing"
)

// InsertionRoutingResult holds durations between one fixed location and every
// possible neighbour of an insertion: Company is indexed by company index,
// Event by insertion index. Nil entries are unreachable legs.
type InsertionRoutingResult struct {
	Company []*int64
	Event   []*int64
}

// DirectionalResult pairs both driving directions for one location. To holds
// legs arriving at the location (from the preceding neighbour), From holds
// legs departing it (towards the following neighbour).
type DirectionalResult struct {
	To   InsertionRoutingResult
	From InsertionRoutingResult
}

// RoutingResults carries all durations needed to evaluate every insertion of
// one request.
type RoutingResults struct {
	UserChosen DirectionalResult
	BusStops   []DirectionalResult
}

// gatherRoutingCoordinates collects, per insertion position, the coordinates
// of the preceding and following neighbour event. Positions at the schedule
// edge fall back to the boundary sentinels; nil marks a missing neighbour.
func gatherRoutingCoordinates(
	companies []availability.Company,
	insertionRanges map[int64][]dispatch.Range,
) (backward, forward []*dispatch.Coordinates) {
	n := countInsertions(companies, insertionRanges)
	backward = make([]*dispatch.Coordinates, 0, n)
	forward = make([]*dispatch.Coordinates, 0, n)
	iterateAllInsertions(companies, insertionRanges, func(info InsertionInfo) {
		vehicle := info.Vehicle
		switch {
		case info.IdxInEvents != 0:
			backward = append(backward, &vehicle.Events[info.IdxInEvents-1].Coordinates)
		case vehicle.LastEventBefore != nil:
			backward = append(backward, &vehicle.LastEventBefore.Coordinates)
		default:
			backward = append(backward, nil)
		}
		switch {
		case info.IdxInEvents != len(vehicle.Events):
			forward = append(forward, &vehicle.Events[info.IdxInEvents].Coordinates)
		case vehicle.FirstEventAfter != nil:
			forward = append(forward, &vehicle.FirstEventAfter.Coordinates)
		default:
			forward = append(forward, nil)
		}
	})
	return backward, forward
}

// routeInsertions computes the duration sets for the user-chosen location and
// every bus stop, in both directions. Legs between co-located points are
// forced to zero, all others include the passenger change duration.
func routeInsertions(
	ctx context.Context,
	svc *routing.Service,
	companies []availability.Company,
	backward, forward []*dispatch.Coordinates,
	userChosen dispatch.Coordinates,
	busStops []dispatch.Coordinates,
) (*RoutingResults, error) {
	companyCoords := make([]*dispatch.Coordinates, len(companies))
	for i := range companies {
		companyCoords[i] = &companies[i].Coordinates
	}

	oneDirection := func(one dispatch.Coordinates, events []*dispatch.Coordinates, arriveBy bool) (InsertionRoutingResult, error) {
		many := make([]*dispatch.Coordinates, 0, len(companyCoords)+len(events))
		many = append(many, companyCoords...)
		many = append(many, events...)
		durations, err := svc.BatchOneToMany(ctx, one, many, arriveBy)
		if err != nil {
			return InsertionRoutingResult{}, err
		}
		zeroForMatchingPlaces(one, many, durations)
		return InsertionRoutingResult{
			Company: durations[:len(companyCoords)],
			Event:   durations[len(companyCoords):],
		}, nil
	}

	results := &RoutingResults{BusStops: make([]DirectionalResult, len(busStops))}
	var err error
	if results.UserChosen.To, err = oneDirection(userChosen, backward, true); err != nil {
		return nil, fmt.Errorf("routing to user-chosen: %w", err)
	}
	if results.UserChosen.From, err = oneDirection(userChosen, forward, false); err != nil {
		return nil, fmt.Errorf("routing from user-chosen: %w", err)
	}
	for i, stop := range busStops {
		if results.BusStops[i].To, err = oneDirection(stop, backward, true); err != nil {
			return nil, fmt.Errorf("routing to bus stop %d: %w", i, err)
		}
		if results.BusStops[i].From, err = oneDirection(stop, forward, false); err != nil {
			return nil, fmt.Errorf("routing from bus stop %d: %w", i, err)
		}
	}
	return results, nil
}

func zeroForMatchingPlaces(one dispatch.Coordinates, many []*dispatch.Coordinates, durations []*int64) {
	for i, m := range many {
		if m == nil {
			continue
		}
		if dispatch.SamePlace(one, *m) {
			zero := int64(0)
			durations[i] = &zero
		}
	}
}
