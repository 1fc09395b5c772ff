package taxi

import (
	"time"

	"github.com/motis-project/prima-dispatch/internal/availability"
	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// InsertionEvaluation prices one way of serving both stops of a request with
// one vehicle.
type InsertionEvaluation struct {
	PickupTime                      int64
	DropoffTime                     int64
	ScheduledPickupTimeStart        int64
	ScheduledPickupTimeEnd          int64
	ScheduledDropoffTimeStart       int64
	ScheduledDropoffTimeEnd         int64
	PickupCase                      dispatch.InsertionType
	DropoffCase                     dispatch.InsertionType
	TaxiWaitingTime                 int64
	ApproachPlusReturnDurationDelta int64
	FullyPayedDurationDelta         int64
	PassengerDuration               int64
	Cost                            float64
	Departure                       *int64
	Arrival                         *int64
	PickupPrevLegDuration           int64
	PickupNextLegDuration           int64
	DropoffPrevLegDuration          int64
	DropoffNextLegDuration          int64
}

// Insertion is a fully placed evaluation: which vehicle, which tour and which
// neighbour events the new stops go between.
type Insertion struct {
	InsertionEvaluation

	PickupIdx          *int
	DropoffIdx         *int
	Company            int
	Vehicle            int64
	Tour               *int64
	PrevPickupID       *int64
	NextPickupID       *int64
	PrevDropoffID      *int64
	NextDropoffID      *int64
	PickupIdxInEvents  *int
	DropoffIdxInEvents *int
}

// SingleInsertionEvaluation prices the insertion of one stop of a request,
// to be paired with a matching evaluation of the other stop later.
type SingleInsertionEvaluation struct {
	Window                          interval.Interval
	PrevLegDuration                 int64
	NextLegDuration                 int64
	Case                            dispatch.InsertionType
	TaxiWaitingTime                 int64
	ApproachPlusReturnDurationDelta int64
	FullyPayedDurationDelta         int64
	Cost                            float64
	PrevID                          *int64
	NextID                          *int64
	IdxInEvents                     int
	Time                            int64
}

// Evaluations collects all per-position results of the single-stop pass.
// BusStopEvaluations is indexed by bus stop, bus time and insertion index,
// UserChosenEvaluations by insertion index only.
type Evaluations struct {
	BusStopEvaluations    [][][]*SingleInsertionEvaluation
	UserChosenEvaluations []*SingleInsertionEvaluation
	BothEvaluations       [][]*Insertion
}

// NeighbourIDs names the events adjacent to the new stops in the chosen plan.
type NeighbourIDs struct {
	PrevPickup       *int64
	PrevPickupGroup  *string
	NextPickup       *int64
	NextPickupGroup  *string
	PrevDropoff      *int64
	PrevDropoffGroup *string
	NextDropoff      *int64
	NextDropoffGroup *string
}

// isPickupLeg reports whether a single-stop evaluation concerns the pickup.
func isPickupLeg(t dispatch.InsertionType) bool {
	if t.What == dispatch.Both {
		return false
	}
	return (t.What == dispatch.BusStop) == (t.Direction == dispatch.BusStopPickup)
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func eventID(e *availability.Event) *int64 {
	if e == nil {
		return nil
	}
	return int64Ptr(e.ID)
}

func eventAt(events []availability.Event, idx int) *availability.Event {
	if idx < 0 || idx >= len(events) {
		return nil
	}
	return &events[idx]
}

func indexOfEvent(events []availability.Event, id int64) int {
	for i := range events {
		if events[i].ID == id {
			return i
		}
	}
	return -1
}

// evaluateSingleInsertion prices the insertion of one stop at one position.
// Returns nil when no valid arrival window exists or a promised time cannot
// be kept.
func evaluateSingleInsertion(
	t dispatch.InsertionType,
	windows []interval.Interval,
	busStopWindow *interval.Interval,
	results *RoutingResults,
	info InsertionInfo,
	busStopIdx int,
	prev, next *availability.Event,
	promised *booking.PromisedTimes,
) *SingleInsertionEvaluation {
	events := info.Vehicle.Events
	prevLeg := getPrevLegDuration(t, results, info, busStopIdx)
	nextLeg := getNextLegDuration(t, results, info, busStopIdx)
	if prevLeg == nil || nextLeg == nil {
		return nil
	}
	arrivalWindow := getArrivalWindow(t, windows, 0, busStopWindow, *prevLeg, *nextLeg)
	if arrivalWindow == nil {
		return nil
	}
	passengerDuration := *prevLeg
	if (t.What == dispatch.BusStop) == (t.Direction == dispatch.BusStopPickup) {
		passengerDuration = *nextLeg
	}
	if promised != nil && !keepsPromises(t, *arrivalWindow, passengerDuration, *promised) {
		return nil
	}
	taxiDurationDelta := *prevLeg + *nextLeg - getOldDrivingTime(t, prev, next)

	var communicatedTime int64
	if isPickupLeg(t) {
		if promised != nil && arrivalWindow.Covers(promised.Pickup) {
			communicatedTime = promised.Pickup
		} else {
			communicatedTime = arrivalWindow.Start
		}
	} else {
		if promised != nil && arrivalWindow.Covers(promised.Dropoff) {
			communicatedTime = promised.Dropoff
		} else {
			communicatedTime = arrivalWindow.End
		}
	}
	scheduledTimeCandidate := communicatedTime
	if isPickupLeg(t) {
		scheduledTimeCandidate += min(arrivalWindow.Size(), MaxPassengerWaitingTimePickup)
	} else {
		scheduledTimeCandidate -= min(arrivalWindow.Size(), MaxPassengerWaitingTimeDropoff)
	}

	var prevShift int64
	if !t.ComesFromCompany() && prev.IsPickup && communicatedTime-prev.Time.End-*prevLeg < 0 {
		newEndTimePrev := communicatedTime - *prevLeg
		prevShift = prev.ScheduledTime() - newEndTimePrev
	}
	var nextShift int64
	if !t.ReturnsToCompany() && !next.IsPickup && communicatedTime-next.Time.End-*nextLeg < 0 {
		newStartTimeNext := communicatedTime + *nextLeg
		nextShift = newStartTimeNext - next.ScheduledTime()
	}

	taxiWaitingTime := getWaitingTimeDelta(t, scheduledTimeCandidate, scheduledTimeCandidate,
		*prevLeg, *nextLeg, prev, next, events, nil, nil, prevShift, nextShift, taxiDurationDelta)
	weightedPassengerDuration := getWeightedPassengerDurationDelta(t, prev, next, prevShift, nextShift)
	approachPlusReturnDurationDelta := getApproachPlusReturnDurationDelta(t, prev, next, *prevLeg, *nextLeg)
	fullyPayedDurationDelta := taxiDurationDelta - approachPlusReturnDurationDelta
	cost := computeCost(weightedPassengerDuration, approachPlusReturnDurationDelta,
		fullyPayedDurationDelta, taxiWaitingTime)

	return &SingleInsertionEvaluation{
		Window:                          *arrivalWindow,
		PrevLegDuration:                 *prevLeg,
		NextLegDuration:                 *nextLeg,
		Case:                            t,
		FullyPayedDurationDelta:         fullyPayedDurationDelta,
		ApproachPlusReturnDurationDelta: approachPlusReturnDurationDelta,
		TaxiWaitingTime:                 taxiWaitingTime,
		Cost:                            cost,
		PrevID:                          eventID(prev),
		NextID:                          eventID(next),
		Time:                            scheduledTimeCandidate,
		IdxInEvents:                     info.IdxInEvents,
	}
}

// evaluateBothInsertion prices serving pickup and dropoff back to back at one
// position.
func evaluateBothInsertion(
	t dispatch.InsertionType,
	windows []interval.Interval,
	passengerDuration *int64,
	busStopWindow *interval.Interval,
	results *RoutingResults,
	info InsertionInfo,
	busStopIdx int,
	prev, next *availability.Event,
	passengerCount int,
	promised *booking.PromisedTimes,
) *InsertionEvaluation {
	events := info.Vehicle.Events
	prevLeg := getPrevLegDuration(t, results, info, busStopIdx)
	nextLeg := getNextLegDuration(t, results, info, busStopIdx)
	if prevLeg == nil || nextLeg == nil || passengerDuration == nil {
		return nil
	}
	arrivalWindow := getArrivalWindow(t, windows, *passengerDuration, busStopWindow, *prevLeg, *nextLeg)
	if arrivalWindow == nil {
		return nil
	}
	if promised != nil && !keepsPromises(t, *arrivalWindow, *passengerDuration, *promised) {
		return nil
	}
	taxiDurationDelta := *prevLeg + *nextLeg + *passengerDuration - getOldDrivingTime(t, prev, next)

	var pickupLeeway, dropoffLeeway int64
	switch t.How {
	case dispatch.Prepend:
		pickupLeeway = min(arrivalWindow.Size(), MaxPassengerWaitingTimePickup)
	case dispatch.NewTour:
		pickupLeeway = min(arrivalWindow.Size()/2, MaxPassengerWaitingTimePickup)
	}
	switch t.How {
	case dispatch.Append:
		dropoffLeeway = min(arrivalWindow.Size(), MaxPassengerWaitingTimeDropoff)
	case dispatch.NewTour:
		dropoffLeeway = min(arrivalWindow.Size()/2, MaxPassengerWaitingTimeDropoff)
	}

	ts := getTimestamps(t, *arrivalWindow, promised, prev, next,
		*prevLeg, *nextLeg, *passengerDuration, pickupLeeway, dropoffLeeway)

	var prevShift int64
	if !t.ComesFromCompany() && prev.IsPickup {
		prevShift = max(prev.ScheduledTime()-ts.communicatedPickupTime+*prevLeg, 0)
	}
	var nextShift int64
	if !t.ReturnsToCompany() && !next.IsPickup {
		nextShift = max(ts.communicatedDropoffTime+*nextLeg-next.ScheduledTime(), 0)
	}

	weightedPassengerDuration := int64(passengerCount)*(ts.scheduledDropoffTimeStart-ts.scheduledPickupTimeEnd) +
		getWeightedPassengerDurationDelta(t, prev, next, prevShift, nextShift)

	var departure, arrival *int64
	if t.ComesFromCompany() {
		departure = int64Ptr(ts.scheduledPickupTimeEnd - *prevLeg)
	}
	if t.ReturnsToCompany() {
		arrival = int64Ptr(ts.scheduledDropoffTimeStart + *nextLeg)
	}

	taxiWaitingTime := getWaitingTimeDelta(t, ts.scheduledPickupTimeEnd, ts.scheduledDropoffTimeStart,
		*prevLeg, *nextLeg, prev, next, events, arrival, departure, prevShift, nextShift, taxiDurationDelta)

	approachPlusReturnDurationDelta := getApproachPlusReturnDurationDelta(t, prev, next, *prevLeg, *nextLeg)
	fullyPayedDurationDelta := getFullyPayedDurationDelta(t, prev, next, *prevLeg, *nextLeg, *passengerDuration)
	cost := computeCost(weightedPassengerDuration, approachPlusReturnDurationDelta,
		fullyPayedDurationDelta, taxiWaitingTime)

	return &InsertionEvaluation{
		PickupTime:                      ts.communicatedPickupTime,
		DropoffTime:                     ts.communicatedDropoffTime,
		ScheduledPickupTimeStart:        ts.scheduledPickupTimeStart,
		ScheduledPickupTimeEnd:          ts.scheduledPickupTimeEnd,
		ScheduledDropoffTimeStart:       ts.scheduledDropoffTimeStart,
		ScheduledDropoffTimeEnd:         ts.scheduledDropoffTimeEnd,
		PickupCase:                      t,
		DropoffCase:                     t,
		PassengerDuration:               weightedPassengerDuration,
		ApproachPlusReturnDurationDelta: approachPlusReturnDurationDelta,
		FullyPayedDurationDelta:         fullyPayedDurationDelta,
		TaxiWaitingTime:                 taxiWaitingTime,
		Cost:                            cost,
		Departure:                       departure,
		Arrival:                         arrival,
		PickupPrevLegDuration:           *prevLeg,
		PickupNextLegDuration:           *passengerDuration,
		DropoffPrevLegDuration:          *passengerDuration,
		DropoffNextLegDuration:          *nextLeg,
	}
}

// newTourPrepTime returns the earliest instant a newly created tour may start.
// Outside staffed hours (Friday evening through Sunday) dispatching resumes
// Monday at 10:00 local time.
func newTourPrepTime(now time.Time) int64 {
	wd := now.Weekday()
	if (wd == time.Friday && now.Hour() >= 18) || wd == time.Saturday || wd == time.Sunday {
		daysUntilMonday := (int(time.Monday) + 7 - int(wd)) % 7
		monday := time.Date(now.Year(), now.Month(), now.Day()+daysUntilMonday, 10, 0, 0, 0, now.Location())
		return monday.UnixMilli()
	}
	return now.UnixMilli() + MinPrep
}

// evaluateNewTours prices opening a fresh tour on every vehicle for each bus
// stop and time, keeping the cheapest option per combination.
func evaluateNewTours(
	companies []availability.Company,
	required dispatch.Capacities,
	startFixed bool,
	expanded interval.Interval,
	busStopTimes [][]interval.Interval,
	results *RoutingResults,
	travelDurations []*int64,
	allowedTimes []interval.Interval,
	now time.Time,
	promised *booking.PromisedTimes,
) [][]*Insertion {
	best := make([][]*Insertion, len(busStopTimes))
	for i := range busStopTimes {
		best[i] = make([]*Insertion, len(busStopTimes[i]))
	}

	t := dispatch.InsertionType{
		How:       dispatch.NewTour,
		What:      dispatch.Both,
		Where:     dispatch.BeforeFirstEvent,
		Direction: direction(startFixed),
	}
	prepTime := newTourPrepTime(now)

	for companyIdx := range companies {
		for _, vehicle := range companies[companyIdx].Vehicles {
			info := InsertionInfo{
				CompanyIdx:   companyIdx,
				Vehicle:      vehicle,
				IdxInEvents:  -1,
				InsertionIdx: -1,
			}
			windows := getAllowedOperationTimes(t, nil, nil, expanded, prepTime, vehicle, allowedTimes)
			for busStopIdx := range busStopTimes {
				for busTimeIdx := range busStopTimes[busStopIdx] {
					result := evaluateBothInsertion(t, windows, travelDurations[busStopIdx],
						&busStopTimes[busStopIdx][busTimeIdx], results, info, busStopIdx,
						nil, nil, required.Passengers, promised)
					if result == nil {
						continue
					}
					if best[busStopIdx][busTimeIdx] == nil || result.Cost < best[busStopIdx][busTimeIdx].Cost {
						best[busStopIdx][busTimeIdx] = &Insertion{
							InsertionEvaluation: *result,
							Company:             companyIdx,
							Vehicle:             vehicle.ID,
						}
					}
				}
			}
		}
	}
	return best
}

func direction(startFixed bool) dispatch.InsertDirection {
	if startFixed {
		return dispatch.BusStopPickup
	}
	return dispatch.BusStopDropoff
}

// evaluateSingleInsertions prices every single-stop and back-to-back insertion
// at every position of every vehicle.
func evaluateSingleInsertions(
	companies []availability.Company,
	required dispatch.Capacities,
	startFixed bool,
	expanded interval.Interval,
	insertionRanges map[int64][]dispatch.Range,
	busStopTimes [][]interval.Interval,
	results *RoutingResults,
	travelDurations []*int64,
	allowedTimes []interval.Interval,
	now time.Time,
	promised *booking.PromisedTimes,
) Evaluations {
	total := countInsertions(companies, insertionRanges)
	bothEvaluations := make([][]*Insertion, len(busStopTimes))
	busStopEvaluations := make([][][]*SingleInsertionEvaluation, len(busStopTimes))
	for i := range busStopTimes {
		bothEvaluations[i] = make([]*Insertion, len(busStopTimes[i]))
		busStopEvaluations[i] = make([][]*SingleInsertionEvaluation, len(busStopTimes[i]))
		for j := range busStopTimes[i] {
			busStopEvaluations[i][j] = make([]*SingleInsertionEvaluation, total)
		}
	}
	userChosenEvaluations := make([]*SingleInsertionEvaluation, total)
	prepTime := now.UnixMilli() + MinPrep

	iterateAllInsertions(companies, insertionRanges, func(info InsertionInfo) {
		events := info.Vehicle.Events
		prev := eventAt(events, info.IdxInEvents-1)
		if info.IdxInEvents == 0 {
			prev = info.Vehicle.LastEventBefore
		}
		next := eventAt(events, info.IdxInEvents)
		if info.IdxInEvents == len(events) {
			next = info.Vehicle.FirstEventAfter
		}
		where := dispatch.BetweenEvents
		switch {
		case info.IdxInEvents == 0:
			where = dispatch.BeforeFirstEvent
		case info.IdxInEvents == len(events):
			where = dispatch.AfterLastEvent
		case prev.TourID != next.TourID:
			where = dispatch.BetweenTours
		}

		for _, how := range dispatch.HowOptions {
			t := dispatch.InsertionType{
				How:       how,
				What:      dispatch.BusStop,
				Where:     where,
				Direction: direction(startFixed),
			}
			if !t.CanBeValid() {
				continue
			}
			windows := getAllowedOperationTimes(t, prev, next, expanded, prepTime, info.Vehicle, allowedTimes)

			// An INSERT may shift its neighbours' scheduled windows. When the
			// neighbour is the edge of its tour, the shift prolongs the whole
			// tour; clip the window so the prolongation stays within the gap
			// to the adjacent tour.
			if how == dispatch.Insert && prev != nil && next != nil && len(windows) != 0 {
				twoBefore := eventAt(events, info.IdxInEvents-2)
				if twoBefore == nil {
					twoBefore = info.Vehicle.LastEventBefore
				}
				if twoBefore != nil && twoBefore.TourID != prev.TourID {
					tourDifference := prev.Departure - twoBefore.Arrival
					scheduledTimeLength := prev.Time.End - prev.Time.Start
					windows[0].Start += max(0, scheduledTimeLength-tourDifference)
				}
				twoAfter := eventAt(events, info.IdxInEvents+1)
				if twoAfter == nil {
					twoAfter = info.Vehicle.FirstEventAfter
				}
				if twoAfter != nil && twoAfter.TourID != next.TourID {
					tourDifference := twoAfter.Departure - next.Arrival
					scheduledTimeLength := next.Time.End - next.Time.Start
					windows[0].End -= max(0, scheduledTimeLength-tourDifference)
				}
			}

			for busStopIdx := range busStopTimes {
				for busTimeIdx := range busStopTimes[busStopIdx] {
					t.What = dispatch.Both
					resultBoth := evaluateBothInsertion(t, windows, travelDurations[busStopIdx],
						&busStopTimes[busStopIdx][busTimeIdx], results, info, busStopIdx,
						prev, next, required.Passengers, promised)
					if resultBoth != nil &&
						(bothEvaluations[busStopIdx][busTimeIdx] == nil ||
							resultBoth.Cost < bothEvaluations[busStopIdx][busTimeIdx].Cost) &&
						!waitsTooLong(resultBoth.TaxiWaitingTime) {
						tour := next
						if how == dispatch.Append {
							tour = prev
						}
						bothEvaluations[busStopIdx][busTimeIdx] = &Insertion{
							InsertionEvaluation: *resultBoth,
							Company:             info.CompanyIdx,
							Vehicle:             info.Vehicle.ID,
							Tour:                int64Ptr(tour.TourID),
							PickupIdx:           intPtr(info.IdxInEvents),
							DropoffIdx:          intPtr(info.IdxInEvents),
							PrevPickupID:        eventID(prev),
							NextPickupID:        eventID(next),
							PrevDropoffID:       eventID(prev),
							NextDropoffID:       eventID(next),
							PickupIdxInEvents:   intPtr(info.IdxInEvents),
							DropoffIdxInEvents:  intPtr(info.IdxInEvents),
						}
					}

					t.What = dispatch.BusStop
					if !t.IsValid() {
						continue
					}
					resultBus := evaluateSingleInsertion(t, windows,
						&busStopTimes[busStopIdx][busTimeIdx], results, info, busStopIdx,
						prev, next, promised)
					if resultBus != nil &&
						(busStopEvaluations[busStopIdx][busTimeIdx][info.InsertionIdx] == nil ||
							resultBus.Cost < busStopEvaluations[busStopIdx][busTimeIdx][info.InsertionIdx].Cost) &&
						!waitsTooLong(resultBus.TaxiWaitingTime) {
						busStopEvaluations[busStopIdx][busTimeIdx][info.InsertionIdx] = resultBus
					}
				}
			}

			t.What = dispatch.UserChosen
			if !t.IsValid() {
				continue
			}
			resultUserChosen := evaluateSingleInsertion(t, windows, nil, results, info, -1,
				prev, next, promised)
			if resultUserChosen != nil &&
				(userChosenEvaluations[info.InsertionIdx] == nil ||
					resultUserChosen.Cost < userChosenEvaluations[info.InsertionIdx].Cost) &&
				!waitsTooLong(resultUserChosen.TaxiWaitingTime) {
				userChosenEvaluations[info.InsertionIdx] = resultUserChosen
			}
		}
	})
	return Evaluations{
		BusStopEvaluations:    busStopEvaluations,
		UserChosenEvaluations: userChosenEvaluations,
		BothEvaluations:       bothEvaluations,
	}
}

// evaluatePairInsertions combines the single-stop evaluations into plans where
// pickup and dropoff straddle existing events, keeping the cheapest plan per
// bus stop and time.
func evaluatePairInsertions(
	companies []availability.Company,
	startFixed bool,
	insertionRanges map[int64][]dispatch.Range,
	busStopTimes [][]interval.Interval,
	busStopEvaluations [][][]*SingleInsertionEvaluation,
	userChosenEvaluations []*SingleInsertionEvaluation,
	required dispatch.Capacities,
) [][]*Insertion {
	best := make([][]*Insertion, len(busStopTimes))
	for i := range busStopTimes {
		best[i] = make([]*Insertion, len(busStopTimes[i]))
	}

	iterateAllInsertions(companies, insertionRanges, func(info InsertionInfo) {
		events := info.Vehicle.Events
		pickupIdx := info.IdxInEvents
		prevPickup := eventAt(events, pickupIdx-1)
		twoBeforePickup := eventAt(events, pickupIdx-2)
		nextPickup := eventAt(events, pickupIdx)
		twoAfterPickup := eventAt(events, pickupIdx+1)
		if pickupIdx < len(events)-1 && nextPickup.TourID != twoAfterPickup.TourID {
			var direct int64
			if twoAfterPickup.DirectDuration != nil {
				direct = *twoAfterPickup.DirectDuration
			}
			if twoAfterPickup.Time.End-nextPickup.Time.Start-direct < 0 {
				return
			}
		}
		var cumulatedTaxiDrivingDelta int64
		pickupInvalid := false
		for dropoffIdx := pickupIdx + 1; dropoffIdx != info.Range.LatestDropoff+1; dropoffIdx++ {
			if pickupInvalid {
				break
			}
			prevDropoffIdx := dropoffIdx - 1
			if dropoffIdx > 1 && prevDropoffIdx != pickupIdx && dropoffIdx != len(events) &&
				events[prevDropoffIdx].TourID != events[dropoffIdx-2].TourID {
				drivingTime := events[prevDropoffIdx].DirectDuration
				if drivingTime == nil {
					return
				}
				cumulatedTaxiDrivingDelta += *drivingTime -
					events[prevDropoffIdx].PrevLegDuration -
					events[dropoffIdx-2].NextLegDuration
			}
			for busStopIdx := range busStopTimes {
				if pickupInvalid {
					break
				}
				for timeIdx := range busStopTimes[busStopIdx] {
					pickup := userChosenEvaluations[info.InsertionIdx]
					if startFixed {
						pickup = busStopEvaluations[busStopIdx][timeIdx][info.InsertionIdx]
					}
					if pickup == nil {
						pickupInvalid = true
						break
					}
					dropoffEvalIdx := info.InsertionIdx + dropoffIdx - pickupIdx
					dropoff := busStopEvaluations[busStopIdx][timeIdx][dropoffEvalIdx]
					if startFixed {
						dropoff = userChosenEvaluations[dropoffEvalIdx]
					}
					if dropoff == nil {
						continue
					}
					prevDropoff := eventAt(events, dropoffIdx-1)
					nextDropoff := eventAt(events, dropoffIdx)
					twoAfterDropoff := eventAt(events, dropoffIdx+1)
					communicatedPickupTime := max(
						pickup.Window.End-MaxPassengerWaitingTimePickup,
						pickup.Window.Start)
					communicatedDropoffTime := min(
						dropoff.Window.Start+MaxPassengerWaitingTimeDropoff,
						dropoff.Window.End)

					// With no or one event between the stops, the shifts the
					// pickup and dropoff induce must be mutually compatible.
					if dropoffIdx < pickupIdx+3 {
						availableDistance := communicatedDropoffTime - communicatedPickupTime -
							dropoff.PrevLegDuration - pickup.NextLegDuration
						if pickupIdx+2 == dropoffIdx {
							if nextPickup.TourID != prevDropoff.TourID {
								if prevDropoff.DirectDuration == nil {
									continue
								}
								availableDistance -= *prevDropoff.DirectDuration
							} else {
								availableDistance -= prevDropoff.PrevLegDuration
							}
						}
						if availableDistance-2 < 0 {
							continue
						}
					}

					leewayBetweenPickupDropoff := communicatedDropoffTime - communicatedPickupTime -
						pickup.NextLegDuration - dropoff.PrevLegDuration
					pickupScheduledShift := min(
						pickup.Window.Size(),
						MaxPassengerWaitingTimePickup,
						leewayBetweenPickupDropoff)
					scheduledPickupTime := communicatedPickupTime
					if pickup.Case.How != dispatch.Append {
						scheduledPickupTime += pickupScheduledShift
					}
					scheduledDropoffTime := communicatedDropoffTime
					if dropoff.Case.How != dispatch.Prepend {
						scheduledDropoffTime -= min(
							dropoff.Window.Size(),
							MaxPassengerWaitingTimeDropoff,
							leewayBetweenPickupDropoff-pickupScheduledShift)
					}

					approachPlusReturnDurationDelta := pickup.ApproachPlusReturnDurationDelta +
						dropoff.ApproachPlusReturnDurationDelta
					fullyPayedDurationDelta := pickup.FullyPayedDurationDelta +
						dropoff.FullyPayedDurationDelta + cumulatedTaxiDrivingDelta

					var newDeparture int64
					switch {
					case pickup.Case.ComesFromCompany():
						newDeparture = scheduledPickupTime - pickup.PrevLegDuration
					case twoBeforePickup == nil || prevPickup.TourID != twoBeforePickup.TourID:
						newDeparture = min(
							communicatedPickupTime-pickup.PrevLegDuration,
							prevPickup.ScheduledTime()) - prevPickup.PrevLegDuration
					default:
						newDeparture = prevPickup.Departure
					}
					var newArrival int64
					switch {
					case dropoff.Case.ReturnsToCompany():
						newArrival = scheduledDropoffTime + dropoff.NextLegDuration
					case twoAfterDropoff == nil || nextDropoff.TourID != twoAfterDropoff.TourID:
						newArrival = max(
							communicatedDropoffTime+dropoff.NextLegDuration,
							nextDropoff.ScheduledTime()) + nextDropoff.NextLegDuration
					default:
						newArrival = nextDropoff.Arrival
					}

					relevantStart := pickupIdx
					if pickup.Case.How == dispatch.Connect {
						relevantStart = pickupIdx - 1
					}
					relevantEnd := dropoffIdx
					if dropoff.Case.How == dispatch.Connect {
						relevantEnd = dropoffIdx + 1
					}
					seen := make(map[int64]struct{})
					var oldTourDurationSum int64
					for _, e := range events[relevantStart:relevantEnd] {
						if _, ok := seen[e.TourID]; !ok {
							oldTourDurationSum += e.Arrival - e.Departure
							seen[e.TourID] = struct{}{}
						}
					}
					tourDurationDelta := newArrival - newDeparture - oldTourDurationSum
					taxiWaitingTime := tourDurationDelta - approachPlusReturnDurationDelta -
						fullyPayedDurationDelta
					if waitsTooLong(taxiWaitingTime) {
						continue
					}

					var prevShiftPickup int64
					if !pickup.Case.ComesFromCompany() && prevPickup.IsPickup {
						prevShiftPickup = max(0,
							prevPickup.ScheduledTime()-communicatedPickupTime+pickup.PrevLegDuration)
					}
					var nextShiftPickup int64
					if !pickup.Case.ReturnsToCompany() && !nextPickup.IsPickup {
						nextShiftPickup = max(0,
							scheduledPickupTime+pickup.NextLegDuration-nextPickup.ScheduledTime())
					}
					var prevShiftDropoff int64
					if !dropoff.Case.ComesFromCompany() && prevDropoff.IsPickup {
						prevShiftDropoff = max(0,
							prevDropoff.ScheduledTime()-scheduledDropoffTime+dropoff.PrevLegDuration)
					}
					var nextShiftDropoff int64
					if !dropoff.Case.ReturnsToCompany() && !nextDropoff.IsPickup {
						nextShiftDropoff = max(0,
							communicatedDropoffTime+dropoff.NextLegDuration-nextDropoff.ScheduledTime())
					}

					weightedPassengerDuration := int64(required.Passengers) *
						(scheduledDropoffTime - scheduledPickupTime)
					weightedPassengerDuration += getWeightedPassengerDurationDelta(
						pickup.Case, prevPickup, nextPickup, prevShiftPickup, nextShiftPickup)
					weightedPassengerDuration += getWeightedPassengerDurationDelta(
						dropoff.Case, prevDropoff, nextDropoff, prevShiftDropoff, nextShiftDropoff)

					cost := computeCost(weightedPassengerDuration, approachPlusReturnDurationDelta,
						fullyPayedDurationDelta, taxiWaitingTime)
					if best[busStopIdx][timeIdx] != nil && cost >= best[busStopIdx][timeIdx].Cost {
						continue
					}
					var departure, arrival *int64
					if pickup.Case.ComesFromCompany() {
						departure = int64Ptr(scheduledPickupTime - pickup.PrevLegDuration)
					}
					if dropoff.Case.ReturnsToCompany() {
						arrival = int64Ptr(scheduledDropoffTime + dropoff.NextLegDuration)
					}
					best[busStopIdx][timeIdx] = &Insertion{
						InsertionEvaluation: InsertionEvaluation{
							PickupTime:                      communicatedPickupTime,
							DropoffTime:                     communicatedDropoffTime,
							ScheduledPickupTimeStart:        communicatedPickupTime,
							ScheduledPickupTimeEnd:          scheduledPickupTime,
							ScheduledDropoffTimeStart:       scheduledDropoffTime,
							ScheduledDropoffTimeEnd:         communicatedDropoffTime,
							PickupCase:                      pickup.Case,
							DropoffCase:                     dropoff.Case,
							TaxiWaitingTime:                 taxiWaitingTime,
							ApproachPlusReturnDurationDelta: approachPlusReturnDurationDelta,
							FullyPayedDurationDelta:         fullyPayedDurationDelta,
							PassengerDuration:               weightedPassengerDuration,
							Cost:                            cost,
							Departure:                       departure,
							Arrival:                         arrival,
							PickupPrevLegDuration:           pickup.PrevLegDuration,
							PickupNextLegDuration:           pickup.NextLegDuration,
							DropoffPrevLegDuration:          dropoff.PrevLegDuration,
							DropoffNextLegDuration:          dropoff.NextLegDuration,
						},
						PickupIdx:          intPtr(pickupIdx),
						DropoffIdx:         intPtr(dropoffIdx),
						Company:            info.CompanyIdx,
						Vehicle:            info.Vehicle.ID,
						Tour:               int64Ptr(events[pickupIdx].TourID),
						PrevPickupID:       pickup.PrevID,
						NextPickupID:       pickup.NextID,
						PrevDropoffID:      dropoff.PrevID,
						NextDropoffID:      dropoff.NextID,
						PickupIdxInEvents:  intPtr(pickup.IdxInEvents),
						DropoffIdxInEvents: intPtr(dropoff.IdxInEvents),
					}
				}
			}
		}
	})
	return best
}

// getOldDrivingTime returns the driving time the insertion replaces.
func getOldDrivingTime(t dispatch.InsertionType, prev, next *availability.Event) int64 {
	if t.How == dispatch.NewTour {
		return 0
	}
	if t.How == dispatch.Connect {
		return next.PrevLegDuration + prev.NextLegDuration
	}
	if t.ComesFromCompany() {
		return next.PrevLegDuration
	}
	return prev.NextLegDuration
}

// expandToFullMinutes widens the interval outward to whole minutes, matching
// the granularity of communicated times.
func expandToFullMinutes(i interval.Interval) interval.Interval {
	start := (i.Start / dispatch.Minute) * dispatch.Minute
	end := ((i.End + dispatch.Minute - 1) / dispatch.Minute) * dispatch.Minute
	return interval.Interval{Start: start, End: end}
}

// keepsPromises checks that times already communicated to the customer stay
// reachable from the arrival window.
func keepsPromises(
	t dispatch.InsertionType,
	arrivalWindow interval.Interval,
	directDuration int64,
	promised booking.PromisedTimes,
) bool {
	var shift int64
	if t.What == dispatch.Both {
		shift = directDuration
	}
	if t.Direction != dispatch.BusStopPickup {
		shift = -shift
	}
	w := arrivalWindow.Shift(shift)

	pickupWindow := arrivalWindow
	if t.Direction != dispatch.BusStopPickup {
		pickupWindow = w.Shift(-MaxPassengerWaitingTimePickup)
	}
	pickupWindow = expandToFullMinutes(pickupWindow)
	dropoffWindow := arrivalWindow
	if t.Direction != dispatch.BusStopDropoff {
		dropoffWindow = w.Shift(MaxPassengerWaitingTimePickup)
	}
	dropoffWindow = expandToFullMinutes(dropoffWindow)

	var checkPickup, checkDropoff bool
	switch t.What {
	case dispatch.Both:
		checkPickup = true
		checkDropoff = true
	case dispatch.BusStop:
		if t.Direction == dispatch.BusStopPickup {
			checkPickup = true
		} else {
			checkDropoff = true
		}
	case dispatch.UserChosen:
		if t.Direction != dispatch.BusStopPickup {
			checkPickup = true
		} else {
			checkDropoff = true
		}
	}
	if checkPickup && !pickupWindow.Covers(promised.Pickup) {
		return false
	}
	if checkDropoff && !dropoffWindow.Covers(promised.Dropoff) {
		return false
	}
	return true
}

// takeBest merges two evaluation grids elementwise by cost.
func takeBest(evals1, evals2 [][]*Insertion) [][]*Insertion {
	result := make([][]*Insertion, len(evals1))
	for busStopIdx := range evals1 {
		result[busStopIdx] = make([]*Insertion, len(evals1[busStopIdx]))
		for timeIdx := range evals1[busStopIdx] {
			e1, e2 := evals1[busStopIdx][timeIdx], evals2[busStopIdx][timeIdx]
			switch {
			case e1 == nil:
				result[busStopIdx][timeIdx] = e2
			case e2 == nil:
				result[busStopIdx][timeIdx] = e1
			case e1.Cost < e2.Cost:
				result[busStopIdx][timeIdx] = e1
			default:
				result[busStopIdx][timeIdx] = e2
			}
		}
	}
	return result
}

// getWaitingTimeDelta computes the additional time the driver spends waiting:
// the growth of the containing tour minus the time spent driving.
func getWaitingTimeDelta(
	t dispatch.InsertionType,
	pickupTime, dropoffTime int64,
	prevLegDuration, nextLegDuration int64,
	prev, next *availability.Event,
	events []availability.Event,
	arrival, departure *int64,
	prevShift, nextShift int64,
	taxiDurationDelta int64,
) int64 {
	var tourDurationDelta int64
	switch t.How {
	case dispatch.Append:
		tourDurationDelta = dropoffTime + nextLegDuration - prev.Arrival
	case dispatch.Prepend:
		tourDurationDelta = next.Departure - pickupTime + prevLegDuration
	case dispatch.Insert:
		if prev != nil && prevShift != 0 {
			twoBefore := eventAt(events, indexOfEvent(events, prev.ID)-1)
			if twoBefore == nil || twoBefore.TourID != prev.TourID {
				tourDurationDelta += prevShift
			}
		}
		if next != nil && nextShift != 0 {
			twoAfter := eventAt(events, indexOfEvent(events, next.ID)+1)
			if twoAfter == nil || twoAfter.TourID != next.TourID {
				tourDurationDelta += nextShift
			}
		}
	case dispatch.NewTour:
		tourDurationDelta = *arrival - *departure
	case dispatch.Connect:
		tourDurationDelta = next.Departure - prev.Arrival
	}
	return tourDurationDelta - taxiDurationDelta
}

// getWeightedPassengerDurationDelta weights the shifts induced on neighbour
// events by the passengers already on board there.
func getWeightedPassengerDurationDelta(
	t dispatch.InsertionType,
	prev, next *availability.Event,
	prevShift, nextShift int64,
) int64 {
	var enteringInPrev, exitingAtNext int64
	if !t.ComesFromCompany() && prev.IsPickup {
		enteringInPrev = int64(prev.Passengers)
	}
	if !t.ReturnsToCompany() && !next.IsPickup {
		exitingAtNext = int64(next.Passengers)
	}
	return enteringInPrev*prevShift + exitingAtNext*nextShift
}

// getApproachPlusReturnDurationDelta is the change in unpaid driving to and
// from the depot.
func getApproachPlusReturnDurationDelta(
	t dispatch.InsertionType,
	prev, next *availability.Event,
	prevLegDuration, nextLegDuration int64,
) int64 {
	var before, after int64
	switch t.How {
	case dispatch.Append:
		before = prev.NextLegDuration
		after = nextLegDuration
	case dispatch.Prepend:
		before = next.PrevLegDuration
		after = prevLegDuration
	case dispatch.NewTour:
		after = prevLegDuration + nextLegDuration
	case dispatch.Connect:
		before = next.PrevLegDuration + prev.NextLegDuration
	}
	return after - before
}

// getFullyPayedDurationDelta is the change in driving time billed to
// customers.
func getFullyPayedDurationDelta(
	t dispatch.InsertionType,
	prev, next *availability.Event,
	prevLegDuration, nextLegDuration, passengerDuration int64,
) int64 {
	var before, after int64
	switch t.How {
	case dispatch.Append:
		after = prevLegDuration + passengerDuration
	case dispatch.Prepend:
		after = nextLegDuration + passengerDuration
	case dispatch.Insert:
		before = prev.NextLegDuration
		after = prevLegDuration + passengerDuration + nextLegDuration
	case dispatch.NewTour:
		after = passengerDuration
	case dispatch.Connect:
		after = prevLegDuration + passengerDuration + nextLegDuration
	}
	return after - before
}

type timestamps struct {
	communicatedPickupTime    int64
	scheduledPickupTimeStart  int64
	scheduledPickupTimeEnd    int64
	communicatedDropoffTime   int64
	scheduledDropoffTimeStart int64
	scheduledDropoffTimeEnd   int64
}

func clampTimestamps(
	scheduledPickupTimeStart, scheduledPickupTimeEnd int64,
	scheduledDropoffTimeStart, scheduledDropoffTimeEnd int64,
	promised *booking.PromisedTimes,
	direction dispatch.InsertDirection,
) timestamps {
	ts := timestamps{
		scheduledPickupTimeStart:  scheduledPickupTimeStart,
		scheduledPickupTimeEnd:    scheduledPickupTimeEnd,
		scheduledDropoffTimeStart: scheduledDropoffTimeStart,
		scheduledDropoffTimeEnd:   scheduledDropoffTimeEnd,
	}
	if direction == dispatch.BusStopPickup {
		ts.communicatedPickupTime = scheduledPickupTimeStart
		ts.communicatedDropoffTime = scheduledDropoffTimeStart + MaxPassengerWaitingTimeDropoff
	} else {
		ts.communicatedPickupTime = scheduledPickupTimeEnd - MaxPassengerWaitingTimePickup
		ts.communicatedDropoffTime = scheduledDropoffTimeEnd
	}
	if promised != nil {
		ts.communicatedPickupTime = promised.Pickup
		ts.communicatedDropoffTime = promised.Dropoff
	}
	return ts
}

// getTimestamps derives the scheduled windows and communicated times for both
// new stops. When the new stop coincides with a neighbour event it joins that
// event's group and adopts its scheduled time.
func getTimestamps(
	t dispatch.InsertionType,
	window interval.Interval,
	promised *booking.PromisedTimes,
	prev, next *availability.Event,
	prevLegDuration, nextLegDuration, passengerDuration int64,
	pickupLeeway, dropoffLeeway int64,
) timestamps {
	prevIsSameEventGroup := prev != nil && prevLegDuration == 0 && prev.Time.Overlaps(window) &&
		(promised == nil || expandToFullMinutes(prev.Time).Overlaps(interval.Interval{
			Start: promised.Pickup,
			End:   promised.Pickup + MaxPassengerWaitingTimePickup,
		}))
	nextIsSameEventGroup := next != nil && nextLegDuration == 0 && next.Time.Overlaps(window) &&
		(promised == nil || expandToFullMinutes(next.Time).Overlaps(interval.Interval{
			Start: promised.Dropoff,
			End:   promised.Dropoff + MaxPassengerWaitingTimeDropoff,
		}))
	if prevIsSameEventGroup {
		scheduledPickupTimeStart := max(prev.Time.Start, window.Start)
		if promised != nil {
			scheduledPickupTimeStart = max(scheduledPickupTimeStart, promised.Pickup)
		}
		scheduledPickupTimeEnd := scheduledPickupTimeStart + pickupLeeway
		scheduledDropoffTimeStart := scheduledPickupTimeEnd + passengerDuration
		scheduledDropoffTimeEnd := scheduledDropoffTimeStart + dropoffLeeway
		return clampTimestamps(scheduledPickupTimeStart, scheduledPickupTimeEnd,
			scheduledDropoffTimeStart, scheduledDropoffTimeEnd, promised, t.Direction)
	}
	if nextIsSameEventGroup {
		scheduledDropoffTimeEnd := min(next.Time.Start, window.End)
		if promised != nil {
			scheduledDropoffTimeEnd = min(scheduledDropoffTimeEnd, promised.Dropoff)
		}
		scheduledDropoffTimeStart := scheduledDropoffTimeEnd - dropoffLeeway
		scheduledPickupTimeEnd := scheduledDropoffTimeStart - passengerDuration
		scheduledPickupTimeStart := scheduledPickupTimeEnd - pickupLeeway
		return clampTimestamps(scheduledPickupTimeStart, scheduledPickupTimeEnd,
			scheduledDropoffTimeStart, scheduledDropoffTimeEnd, promised, t.Direction)
	}
	if t.Direction == dispatch.BusStopPickup {
		scheduledPickupTimeStart := window.Start
		if promised != nil && window.Covers(promised.Pickup) {
			scheduledPickupTimeStart = promised.Pickup
		}
		scheduledPickupTimeEnd := scheduledPickupTimeStart + pickupLeeway
		scheduledDropoffTimeStart := scheduledPickupTimeEnd + passengerDuration
		scheduledDropoffTimeEnd := scheduledDropoffTimeStart + dropoffLeeway
		return clampTimestamps(scheduledPickupTimeStart, scheduledPickupTimeEnd,
			scheduledDropoffTimeStart, scheduledDropoffTimeEnd, promised, t.Direction)
	}
	scheduledDropoffTimeEnd := window.End
	if promised != nil && window.Covers(promised.Dropoff) {
		scheduledDropoffTimeEnd = promised.Dropoff
	}
	scheduledDropoffTimeStart := scheduledDropoffTimeEnd - dropoffLeeway
	scheduledPickupTimeEnd := scheduledDropoffTimeStart - passengerDuration
	scheduledPickupTimeStart := scheduledPickupTimeEnd - pickupLeeway
	return clampTimestamps(scheduledPickupTimeStart, scheduledPickupTimeEnd,
		scheduledDropoffTimeStart, scheduledDropoffTimeEnd, promised, t.Direction)
}
