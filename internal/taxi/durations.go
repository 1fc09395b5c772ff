package taxi

import (
	"github.com/motis-project/prima-dispatch/internal/availability"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// getPrevLegDuration returns the driving time from the preceding neighbour to
// the newly inserted stop, or nil when the leg is unreachable within
// MaxTravel.
func getPrevLegDuration(
	t dispatch.InsertionType,
	results *RoutingResults,
	info InsertionInfo,
	busStopIdx int,
) *int64 {
	var relevant InsertionRoutingResult
	switch t.What {
	case dispatch.UserChosen:
		relevant = results.UserChosen.To
	case dispatch.BusStop:
		relevant = results.BusStops[busStopIdx].To
	case dispatch.Both:
		if t.Direction == dispatch.BusStopPickup {
			relevant = results.BusStops[busStopIdx].To
		} else {
			relevant = results.UserChosen.To
		}
	}

	duration := relevant.Event[info.InsertionIdx]
	if t.ComesFromCompany() {
		duration = relevant.Company[info.CompanyIdx]
	}
	if duration == nil {
		return nil
	}
	withBuffer := *duration + BufferTime
	return &withBuffer
}

// getNextLegDuration returns the driving time from the newly inserted stop to
// the following neighbour plus the passenger change time, or nil when the leg
// is unreachable within MaxTravel.
func getNextLegDuration(
	t dispatch.InsertionType,
	results *RoutingResults,
	info InsertionInfo,
	busStopIdx int,
) *int64 {
	var relevant InsertionRoutingResult
	switch t.What {
	case dispatch.UserChosen:
		relevant = results.UserChosen.From
	case dispatch.BusStop:
		relevant = results.BusStops[busStopIdx].From
	case dispatch.Both:
		if t.Direction == dispatch.BusStopPickup {
			relevant = results.UserChosen.From
		} else {
			relevant = results.BusStops[busStopIdx].From
		}
	}

	duration := relevant.Event[info.InsertionIdx]
	if t.ReturnsToCompany() {
		duration = relevant.Company[info.CompanyIdx]
	}
	if duration == nil {
		return nil
	}
	withChange := *duration + PassengerChangeDuration + BufferTime
	return &withChange
}

// getAllowedOperationTimes computes the intervals in which the new stop may be
// served for one insertion position: the window between the neighbouring
// events restricted to the vehicle's availability or tour structure, the
// preparation lead time and the permitted shift hours.
func getAllowedOperationTimes(
	t dispatch.InsertionType,
	prev, next *availability.Event,
	expanded interval.Interval,
	prepTime int64,
	vehicle *availability.Vehicle,
	allowedTimes []interval.Interval,
) []interval.Interval {
	windowEnd := expanded.End
	if next != nil {
		if t.ReturnsToCompany() {
			windowEnd = next.Departure
		} else {
			windowEnd = next.Time.End
		}
	}
	if windowEnd < prepTime {
		return nil
	}
	windowStart := expanded.Start
	if prev != nil {
		if t.ComesFromCompany() {
			windowStart = prev.Arrival
		} else {
			windowStart = prev.Time.Start
		}
	}
	windowStart = max(windowStart, prepTime)
	window := interval.Interval{Start: windowStart, End: windowEnd}
	if t.How == dispatch.Insert {
		return interval.Intersection([]interval.Interval{window}, allowedTimes)
	}

	var relevant []interval.Interval
	switch t.How {
	case dispatch.Append:
		for _, a := range vehicle.Availabilities {
			if a.Covers(windowStart) {
				relevant = append(relevant, a)
			}
		}
	case dispatch.Prepend:
		for _, a := range vehicle.Availabilities {
			if a.Covers(windowEnd) {
				relevant = append(relevant, a)
			}
		}
	case dispatch.Connect:
		for _, a := range vehicle.Availabilities {
			if a.Contains(window) {
				relevant = append(relevant, a)
			}
		}
	case dispatch.NewTour:
		tourIntervals := make([]interval.Interval, len(vehicle.Tours))
		for i, tour := range vehicle.Tours {
			tourIntervals[i] = interval.Interval{Start: tour.Departure, End: tour.Arrival}
		}
		relevant = interval.Subtract(vehicle.Availabilities, tourIntervals)
	}

	windowed := make([]interval.Interval, 0, len(relevant))
	for _, r := range relevant {
		if clipped, ok := r.Intersect(window); ok {
			windowed = append(windowed, clipped)
		}
	}
	return interval.Intersection(windowed, allowedTimes)
}

// getArrivalWindow picks the best window for arriving at the new stop: each
// candidate is shrunk by the surrounding leg durations and the passenger's
// direct driving time, then clipped to the bus stop's time window. With a
// fixed departure the earliest-ending window wins, with a fixed arrival the
// latest-ending one.
func getArrivalWindow(
	t dispatch.InsertionType,
	windows []interval.Interval,
	directDuration int64,
	busStopWindow *interval.Interval,
	prevLegDuration, nextLegDuration int64,
) *interval.Interval {
	arrivalWindows := make([]interval.Interval, 0, len(windows))
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
		arrivalWindows = append(arrivalWindows, shrunk)
	}
	if len(arrivalWindows) == 0 {
		return nil
	}
	best := arrivalWindows[0]
	for _, w := range arrivalWindows[1:] {
		if t.Direction == dispatch.BusStopPickup {
			if w.End < best.End {
				best = w
			}
		} else if w.End > best.End {
			best = w
		}
	}
	return &best
}
