package rideshare

import (
	"context"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/routing"
	"github.com/motis-project/prima-dispatch/internal/taxi"
)

// routingResults holds the driving durations of every leg an insertion can
// create, flat per insertion index. The bus stop arrays are additionally
// indexed by bus stop.
type routingResults struct {
	userChosenTo   []*int64
	userChosenFrom []*int64
	busStopTo      [][]*int64
	busStopFrom    [][]*int64
}

// routeInsertions batches all leg durations: to/from the user-chosen place
// against every neighbour event, and per neighbour event against every bus
// stop. Legs between identical places cost zero, all other legs include the
// passenger change time.
func routeInsertions(
	ctx context.Context,
	svc *routing.Service,
	offers []*Offer,
	insertionRanges map[int64][]dispatch.Range,
	userChosen dispatch.Coordinates,
	busStops []dispatch.Coordinates,
) (*routingResults, error) {
	var forward, backward []*dispatch.Coordinates
	iterateAllInsertions(offers, insertionRanges, func(info InsertionInfo) {
		if info.IdxInEvents == len(info.Events) {
			forward = append(forward, nil)
		} else {
			forward = append(forward, &info.Events[info.IdxInEvents].Coordinates)
		}
		if info.IdxInEvents == 0 {
			backward = append(backward, nil)
		} else {
			backward = append(backward, &info.Events[info.IdxInEvents-1].Coordinates)
		}
	})

	userChosenFrom, err := svc.BatchOneToMany(ctx, userChosen, forward, false)
	if err != nil {
		return nil, err
	}
	userChosenTo, err := svc.BatchOneToMany(ctx, userChosen, backward, true)
	if err != nil {
		return nil, err
	}
	zeroForMatchingPlaces(userChosen, forward, userChosenFrom)
	zeroForMatchingPlaces(userChosen, backward, userChosenTo)

	stopPtrs := make([]*dispatch.Coordinates, len(busStops))
	for i := range busStops {
		stopPtrs[i] = &busStops[i]
	}
	busStopFrom := emptyMatrix(len(busStops), len(forward))
	busStopTo := emptyMatrix(len(busStops), len(backward))
	for i, event := range forward {
		if event == nil {
			continue
		}
		row, err := svc.BatchOneToMany(ctx, *event, stopPtrs, true)
		if err != nil {
			return nil, err
		}
		zeroForMatchingPlaces(*event, stopPtrs, row)
		for stopIdx := range busStops {
			busStopFrom[stopIdx][i] = row[stopIdx]
		}
	}
	for i, event := range backward {
		if event == nil {
			continue
		}
		row, err := svc.BatchOneToMany(ctx, *event, stopPtrs, false)
		if err != nil {
			return nil, err
		}
		zeroForMatchingPlaces(*event, stopPtrs, row)
		for stopIdx := range busStops {
			busStopTo[stopIdx][i] = row[stopIdx]
		}
	}

	return &routingResults{
		userChosenTo:   userChosenTo,
		userChosenFrom: userChosenFrom,
		busStopTo:      busStopTo,
		busStopFrom:    busStopFrom,
	}, nil
}

func zeroForMatchingPlaces(one dispatch.Coordinates, many []*dispatch.Coordinates, durations []*int64) {
	for i, c := range many {
		if c == nil || i >= len(durations) {
			continue
		}
		if dispatch.SamePlace(one, *c) {
			zero := int64(0)
			durations[i] = &zero
		} else if durations[i] != nil {
			d := *durations[i] + taxi.PassengerChangeDuration
			durations[i] = &d
		}
	}
}

func emptyMatrix(rows, cols int) [][]*int64 {
	m := make([][]*int64, rows)
	for i := range m {
		m[i] = make([]*int64, cols)
	}
	return m
}
