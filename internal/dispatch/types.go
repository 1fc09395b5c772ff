// Package dispatch holds the shared vocabulary of the insertion heuristic:
// capacities, coordinates, insertion type classification and the capacity
// feasible insertion ranges over a vehicle's event sequence.
package dispatch

import "fmt"

// Time units in milliseconds.
const (
	Second int64 = 1000
	Minute       = 60 * Second
	Hour         = 60 * Minute
	Day          = 24 * Hour
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// coordinateRoundingErrorThreshold is the degree delta below which two points
// count as the same physical place.
const coordinateRoundingErrorThreshold = 0.00001

// SamePlace reports whether two coordinates refer to the same physical stop.
func SamePlace(a, b Coordinates) bool {
	return abs(a.Lat-b.Lat) < coordinateRoundingErrorThreshold &&
		abs(a.Lng-b.Lng) < coordinateRoundingErrorThreshold
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Capacities is the capacity vector of a vehicle or the requirement of a request.
type Capacities struct {
	Passengers  int `json:"passengers"`
	Wheelchairs int `json:"wheelchairs"`
	Bikes       int `json:"bikes"`
	Luggage     int `json:"luggage"`
}

// Fits reports whether a vehicle with capacities c can serve required.
// Unoccupied seats may hold luggage, so the luggage bound is joint.
func (c Capacities) Fits(required Capacities) bool {
	return c.Bikes >= required.Bikes &&
		c.Wheelchairs >= required.Wheelchairs &&
		c.Luggage+c.Passengers >= required.Luggage+required.Passengers &&
		c.Passengers >= required.Passengers
}

// InsertHow describes how the new stop attaches to the vehicle's schedule.
type InsertHow int

const (
	Connect InsertHow = iota
	Append
	Prepend
	Insert
	NewTour
)

// HowOptions are the attachment modes tried for positions inside an existing
// schedule. NewTour is evaluated separately against the availability gaps.
var HowOptions = []InsertHow{Connect, Append, Prepend, Insert}

func (h InsertHow) String() string {
	switch h {
	case Append:
		return "APPEND"
	case Prepend:
		return "PREPEND"
	case Connect:
		return "CONNECT"
	case NewTour:
		return "NEW_TOUR"
	case Insert:
		return "INSERT"
	}
	return fmt.Sprintf("InsertHow(%d)", int(h))
}

// InsertWhat describes which leg(s) of the request an evaluation covers.
type InsertWhat int

const (
	UserChosen InsertWhat = iota
	BusStop
	Both
)

func (w InsertWhat) String() string {
	switch w {
	case UserChosen:
		return "USER_CHOSEN"
	case BusStop:
		return "BUS_STOP"
	case Both:
		return "BOTH"
	}
	return fmt.Sprintf("InsertWhat(%d)", int(w))
}

// InsertWhere is the structural position class of the insertion index.
type InsertWhere int

const (
	BeforeFirstEvent InsertWhere = iota
	AfterLastEvent
	BetweenEvents
	BetweenTours
)

func (w InsertWhere) String() string {
	switch w {
	case BeforeFirstEvent:
		return "BEFORE_FIRST_EVENT"
	case AfterLastEvent:
		return "AFTER_LAST_EVENT"
	case BetweenEvents:
		return "BETWEEN_EVENTS"
	case BetweenTours:
		return "BETWEEN_TOURS"
	}
	return fmt.Sprintf("InsertWhere(%d)", int(w))
}

// InsertDirection states whether the bus-stop leg is the pickup or the dropoff.
type InsertDirection int

const (
	BusStopDropoff InsertDirection = iota
	BusStopPickup
)

func (d InsertDirection) String() string {
	if d == BusStopPickup {
		return "FROM_BUS_STOP"
	}
	return "TO_BUS_STOP"
}

// InsertionType fully classifies one insertion evaluation.
type InsertionType struct {
	How       InsertHow
	What      InsertWhat
	Where     InsertWhere
	Direction InsertDirection
}

func (t InsertionType) String() string {
	return fmt.Sprintf("how: %s, where: %s, what: %s, direction: %s",
		t.How, t.Where, t.What, t.Direction)
}

// CanBeValid reports whether the (how, where) combination is structurally
// possible, independent of what is inserted.
func (t InsertionType) CanBeValid() bool {
	switch t.Where {
	case BeforeFirstEvent:
		return t.How == Prepend
	case AfterLastEvent:
		return t.How == Append
	case BetweenTours:
		return t.How != Insert
	case BetweenEvents:
		return t.How == Insert
	}
	return false
}

// IsValid reports whether the (what, direction, how) combination makes sense:
// a single pickup leg cannot be appended after the last event and a single
// dropoff leg cannot be prepended before the first.
func (t InsertionType) IsValid() bool {
	switch t.What {
	case UserChosen:
		if t.Direction == BusStopDropoff {
			return t.How != Append
		}
		return t.How != Prepend
	case BusStop:
		if t.Direction == BusStopDropoff {
			return t.How != Prepend
		}
		return t.How != Append
	case Both:
		return true
	}
	return false
}

// ComesFromCompany reports whether the vehicle approaches the new stop from
// the company's depot rather than from a previous event.
func (t InsertionType) ComesFromCompany() bool {
	return t.How == Prepend || t.How == NewTour
}

// ReturnsToCompany reports whether the vehicle returns to the depot after the
// new stop rather than driving on to a next event.
func (t InsertionType) ReturnsToCompany() bool {
	return t.How == Append || t.How == NewTour
}
