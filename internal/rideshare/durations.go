package rideshare

import (
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// getPrevLegDuration returns the driving time from the preceding stop to the
// newly inserted one, nil when unroutable within the tour bound.
func getPrevLegDuration(
	t dispatch.InsertionType,
	results *routingResults,
	info InsertionInfo,
	busStopIdx int,
) *int64 {
	switch t.What {
	case dispatch.UserChosen:
		return results.userChosenTo[info.InsertionIdx]
	case dispatch.BusStop:
		return results.busStopTo[busStopIdx][info.InsertionIdx]
	default:
		if t.Direction == dispatch.BusStopPickup {
			return results.busStopTo[busStopIdx][info.InsertionIdx]
		}
		return results.userChosenTo[info.InsertionIdx]
	}
}

// getNextLegDuration returns the driving time from the newly inserted stop to
// the following one.
func getNextLegDuration(
	t dispatch.InsertionType,
	results *routingResults,
	info InsertionInfo,
	busStopIdx int,
) *int64 {
	switch t.What {
	case dispatch.UserChosen:
		return results.userChosenFrom[info.InsertionIdx]
	case dispatch.BusStop:
		return results.busStopFrom[busStopIdx][info.InsertionIdx]
	default:
		if t.Direction == dispatch.BusStopPickup {
			return results.userChosenFrom[info.InsertionIdx]
		}
		return results.busStopFrom[busStopIdx][info.InsertionIdx]
	}
}

// getAllowedOperationTimes is the window between the two neighbouring stops
// of the same tour, floored by the preparation lead time. Offered tours have
// no availability calendar, so this is the only constraint.
func getAllowedOperationTimes(prev, next *Event, prepTime int64) []interval.Interval {
	windowEnd := next.Time.End
	if windowEnd < prepTime {
		return nil
	}
	windowStart := max(prev.Time.Start, prepTime)
	if windowStart > windowEnd {
		return nil
	}
	return []interval.Interval{{Start: windowStart, End: windowEnd}}
}

// getArrivalWindow shrinks each candidate window by the surrounding legs and
// the passenger's direct driving time, clips it to the bus stop window and
// picks the best: earliest end with a fixed departure, latest end otherwise.
func getArrivalWindow(
	t dispatch.InsertionType,
	windows []interval.Interval,
	directDuration int64,
	busStopWindow *interval.Interval,
	prevLegDuration, nextLegDuration int64,
) *interval.Interval {
	var best *interval.Interval
	for _, w := range windows {
		shrunk, ok := w.Shrink(prevLegDuration, nextLegDuration)
		if !ok {
			continue
		}
		pre, post := directDuration, int64(0)
		if t.Direction == dispatch.BusStopPickup {
			pre, post = 0, directDuration
		}
		if shrunk, ok = shrunk.Shrink(pre, post); !ok {
			continue
		}
		if busStopWindow != nil {
			if shrunk, ok = busStopWindow.Intersect(shrunk); !ok {
				continue
			}
		}
		better := best == nil
		if !better {
			if t.Direction == dispatch.BusStopPickup {
				better = shrunk.End < best.End
			} else {
				better = shrunk.End > best.End
			}
		}
		if better {
			w := shrunk
			best = &w
		}
	}
	return best
}
