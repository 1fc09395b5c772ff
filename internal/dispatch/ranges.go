package dispatch

// Range bounds the event indices where a request's pickup and dropoff may be
// inserted without violating the vehicle's capacity at any point in between.
type Range struct {
	EarliestPickup int
	LatestDropoff  int
}

// CapacityChange is the load delta of one scheduled event.
type CapacityChange struct {
	Capacities
	IsPickup bool
}

// PossibleInsertions walks the capacity deltas of a vehicle's sorted events
// and returns the maximal index ranges where the new request's capacities fit
// continuously. An empty event list yields no ranges; the caller handles the
// empty schedule as a new-tour case.
func PossibleInsertions(vehicle, required Capacities, events []CapacityChange) []Range {
	if len(events) == 0 || !vehicle.Fits(required) {
		return nil
	}

	current := required
	var ranges []Range
	start := -1
	hasStart := true
	for i, ev := range events {
		sign := -1
		if ev.IsPickup {
			sign = 1
		}
		current.Bikes += sign * ev.Bikes
		current.Luggage += sign * ev.Luggage
		current.Wheelchairs += sign * ev.Wheelchairs
		current.Passengers += sign * ev.Passengers

		if !vehicle.Fits(current) && hasStart {
			// Range end found, close it and search for the next start.
			ranges = append(ranges, Range{EarliestPickup: start + 1, LatestDropoff: i})
			hasStart = false
		} else if !hasStart {
			start = i
			hasStart = true
		}
	}
	if hasStart {
		ranges = append(ranges, Range{EarliestPickup: start + 1, LatestDropoff: len(events)})
	}
	return ranges
}
