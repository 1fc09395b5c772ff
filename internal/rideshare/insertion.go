package rideshare

import (
	"time"

	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
	"github.com/motis-project/prima-dispatch/internal/taxi"
)

// PromisedTimes binds a booking to the offer it was quoted on: besides the
// promised pickup and dropoff times the tour identity itself is promised,
// since a different driver is not an equivalent substitute.
type PromisedTimes struct {
	booking.PromisedTimes
	TourID int64
}

// InsertionEvaluation prices one way of adding both stops of a request to an
// offered tour.
type InsertionEvaluation struct {
	PickupTime                int64
	DropoffTime               int64
	ScheduledPickupTimeStart  int64
	ScheduledPickupTimeEnd    int64
	ScheduledDropoffTimeStart int64
	ScheduledDropoffTimeEnd   int64
	PickupCase                dispatch.InsertionType
	DropoffCase               dispatch.InsertionType
	WaitingTime               int64
	PickupPrevLegDuration     int64
	PickupNextLegDuration     int64
	DropoffPrevLegDuration    int64
	DropoffNextLegDuration    int64
	Profit                    float64
}

// Insertion is a placed evaluation: which tour and which neighbour events
// the new stops go between.
type Insertion struct {
	InsertionEvaluation

	PickupIdx          int
	DropoffIdx         int
	Tour               int64
	PrevPickupID       *int64
	NextPickupID       *int64
	PrevDropoffID      *int64
	NextDropoffID      *int64
	PickupIdxInEvents  int
	DropoffIdxInEvents int
}

// singleInsertionEvaluation prices the insertion of one stop, to be paired
// with the other stop's evaluation later.
type singleInsertionEvaluation struct {
	Window             interval.Interval
	PrevLegDuration    int64
	NextLegDuration    int64
	Case               dispatch.InsertionType
	DrivingWaitingTime int64
	PayedDurationDelta int64
	PrevID             *int64
	NextID             *int64
	IdxInEvents        int
	Time               int64
}

type evaluations struct {
	busStopEvaluations    [][][]*singleInsertionEvaluation
	userChosenEvaluations []*singleInsertionEvaluation
	bothEvaluations       [][][]*Insertion
}

func isPickupLeg(t dispatch.InsertionType) bool {
	if t.What == dispatch.Both {
		return false
	}
	return (t.What == dispatch.BusStop) == (t.Direction == dispatch.BusStopPickup)
}

func int64Ptr(v int64) *int64 { return &v }

func eventID(e *Event) *int64 {
	if e == nil {
		return nil
	}
	return int64Ptr(e.ID)
}

// evaluateSingleInsertion prices the insertion of one stop between two
// accepted stops of the same tour.
func evaluateSingleInsertion(
	t dispatch.InsertionType,
	windows []interval.Interval,
	busStopWindow *interval.Interval,
	results *routingResults,
	info InsertionInfo,
	busStopIdx int,
	prev, next *Event,
	promised *PromisedTimes,
) *singleInsertionEvaluation {
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
	if promised != nil && !keepsPromises(t, *arrivalWindow, passengerDuration, info.Offer.ID, *promised) {
		return nil
	}
	drivingDurationDelta := *prevLeg + *nextLeg - prev.NextLegDuration

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
		scheduledTimeCandidate += min(arrivalWindow.Size(), ScheduledTimeBufferPickup)
	} else {
		scheduledTimeCandidate -= min(arrivalWindow.Size(), ScheduledTimeBufferDropoff(passengerDuration))
	}

	var prevShift int64
	if prev.IsPickup && communicatedTime-prev.Time.End-*prevLeg < 0 {
		prevShift = prev.ScheduledTime() - (communicatedTime - *prevLeg)
	}
	var nextShift int64
	if !next.IsPickup && communicatedTime-next.Time.End-*nextLeg < 0 {
		nextShift = communicatedTime + *nextLeg - next.ScheduledTime()
	}
	waitingTime := getWaitingTimeDelta(prev, next, info.Events, prevShift, nextShift, drivingDurationDelta)

	return &singleInsertionEvaluation{
		Window:             *arrivalWindow,
		PrevLegDuration:    *prevLeg,
		NextLegDuration:    *nextLeg,
		Case:               t,
		DrivingWaitingTime: waitingTime,
		PayedDurationDelta: drivingDurationDelta,
		PrevID:             eventID(prev),
		NextID:             eventID(next),
		Time:               scheduledTimeCandidate,
		IdxInEvents:        info.IdxInEvents,
	}
}

// evaluateBothInsertion prices serving pickup and dropoff back to back
// between two accepted stops. Returns nil when the insertion is unroutable,
// breaks a promise or earns the driver less than the minimum profit.
func evaluateBothInsertion(
	t dispatch.InsertionType,
	windows []interval.Interval,
	passengerDuration *int64,
	busStopWindow *interval.Interval,
	results *routingResults,
	info InsertionInfo,
	busStopIdx int,
	prev, next *Event,
	promised *PromisedTimes,
) *InsertionEvaluation {
	prevLeg := getPrevLegDuration(t, results, info, busStopIdx)
	nextLeg := getNextLegDuration(t, results, info, busStopIdx)
	if prevLeg == nil || nextLeg == nil || passengerDuration == nil {
		return nil
	}
	arrivalWindow := getArrivalWindow(t, windows, *passengerDuration, busStopWindow, *prevLeg, *nextLeg)
	if arrivalWindow == nil {
		return nil
	}
	if promised != nil && !keepsPromises(t, *arrivalWindow, *passengerDuration, info.Offer.ID, *promised) {
		return nil
	}

	ts := getTimestamps(t, *arrivalWindow, promised, prev, next, *prevLeg, *nextLeg, *passengerDuration)

	var prevShift int64
	if prev.IsPickup {
		prevShift = max(prev.ScheduledTime()-ts.scheduledPickupTimeEnd+*prevLeg, 0)
	}
	var nextShift int64
	if !next.IsPickup {
		nextShift = max(ts.scheduledDropoffTimeStart+*nextLeg-next.ScheduledTime(), 0)
	}

	drivingDurationDelta := *prevLeg + *nextLeg + *passengerDuration - prev.NextLegDuration
	waitingTime := getWaitingTimeDelta(prev, next, info.Events, prevShift, nextShift, drivingDurationDelta)

	profit := getProfit(*passengerDuration, drivingDurationDelta, waitingTime)
	if profit < MinimumProfit {
		return nil
	}
	return &InsertionEvaluation{
		PickupTime:                ts.communicatedPickupTime,
		DropoffTime:               ts.communicatedDropoffTime,
		ScheduledPickupTimeStart:  ts.scheduledPickupTimeStart,
		ScheduledPickupTimeEnd:    ts.scheduledPickupTimeEnd,
		ScheduledDropoffTimeStart: ts.scheduledDropoffTimeStart,
		ScheduledDropoffTimeEnd:   ts.scheduledDropoffTimeEnd,
		PickupCase:                t,
		DropoffCase:               t,
		WaitingTime:               waitingTime,
		PickupPrevLegDuration:     *prevLeg,
		PickupNextLegDuration:     *passengerDuration,
		DropoffPrevLegDuration:    *passengerDuration,
		DropoffNextLegDuration:    *nextLeg,
		Profit:                    profit,
	}
}

// evaluateSingleInsertions visits every insertion position once and collects
// the both-stop evaluations plus the single-stop building blocks for the
// pair pass.
func evaluateSingleInsertions(
	offers []*Offer,
	startFixed bool,
	insertionRanges map[int64][]dispatch.Range,
	busStopTimes [][]interval.Interval,
	results *routingResults,
	travelDurations []*int64,
	now time.Time,
	promised *PromisedTimes,
) *evaluations {
	insertionCount := countInsertions(offers, insertionRanges)
	evals := &evaluations{
		busStopEvaluations:    make([][][]*singleInsertionEvaluation, len(busStopTimes)),
		userChosenEvaluations: make([]*singleInsertionEvaluation, insertionCount+1),
		bothEvaluations:       make([][][]*Insertion, len(busStopTimes)),
	}
	for i := range busStopTimes {
		evals.busStopEvaluations[i] = make([][]*singleInsertionEvaluation, len(busStopTimes[i]))
		evals.bothEvaluations[i] = make([][]*Insertion, len(busStopTimes[i]))
		for j := range busStopTimes[i] {
			evals.busStopEvaluations[i][j] = make([]*singleInsertionEvaluation, insertionCount)
		}
	}

	prepTime := now.UnixMilli() + taxi.MinPrep
	direction := dispatch.BusStopDropoff
	if startFixed {
		direction = dispatch.BusStopPickup
	}

	iterateAllInsertions(offers, insertionRanges, func(info InsertionInfo) {
		events := info.Events
		if info.IdxInEvents == 0 || info.IdxInEvents >= len(events) {
			return
		}
		prev := &events[info.IdxInEvents-1]
		next := &events[info.IdxInEvents]
		if prev.TourID != next.TourID {
			return
		}
		windows := getAllowedOperationTimes(prev, next, prepTime)
		if len(windows) == 0 {
			return
		}

		// Shifting the neighbours' scheduled times must not prolong the
		// whole tour past its slack against the neighbouring tours.
		if info.IdxInEvents >= 2 {
			twoBefore := &events[info.IdxInEvents-2]
			if twoBefore.TourID != prev.TourID {
				tourDifference := prev.Departure - twoBefore.Arrival
				scheduledTimeLength := prev.Time.Size()
				for i := range windows {
					windows[i].Start += max(0, scheduledTimeLength-tourDifference)
				}
			}
		}
		if info.IdxInEvents+1 < len(events) {
			twoAfter := &events[info.IdxInEvents+1]
			if twoAfter.TourID != next.TourID {
				tourDifference := twoAfter.Departure - next.Arrival
				scheduledTimeLength := next.Time.Size()
				for i := range windows {
					windows[i].End -= max(0, scheduledTimeLength-tourDifference)
				}
			}
		}

		base := dispatch.InsertionType{
			How:       dispatch.Insert,
			Where:     dispatch.BetweenEvents,
			Direction: direction,
		}
		for busStopIdx := range busStopTimes {
			for busTimeIdx := range busStopTimes[busStopIdx] {
				both := base
				both.What = dispatch.Both
				if result := evaluateBothInsertion(both, windows, travelDurations[busStopIdx],
					&busStopTimes[busStopIdx][busTimeIdx], results, info, busStopIdx,
					prev, next, promised); result != nil {
					evals.bothEvaluations[busStopIdx][busTimeIdx] = append(
						evals.bothEvaluations[busStopIdx][busTimeIdx], &Insertion{
							InsertionEvaluation: *result,
							Tour:                next.TourID,
							PickupIdx:           info.IdxInEvents,
							DropoffIdx:          info.IdxInEvents,
							PrevPickupID:        eventID(prev),
							NextPickupID:        eventID(next),
							PrevDropoffID:       eventID(prev),
							NextDropoffID:       eventID(next),
							PickupIdxInEvents:   info.IdxInEvents,
							DropoffIdxInEvents:  info.IdxInEvents,
						})
				}

				bus := base
				bus.What = dispatch.BusStop
				if result := evaluateSingleInsertion(bus, windows,
					&busStopTimes[busStopIdx][busTimeIdx], results, info, busStopIdx,
					prev, next, promised); result != nil {
					evals.busStopEvaluations[busStopIdx][busTimeIdx][info.InsertionIdx] = result
				}
			}
		}
		user := base
		user.What = dispatch.UserChosen
		if result := evaluateSingleInsertion(user, windows, nil, results, info, -1,
			prev, next, promised); result != nil {
			evals.userChosenEvaluations[info.InsertionIdx] = result
		}
	})
	return evals
}

// evaluatePairInsertions combines single-stop evaluations into insertions
// with the dropoff later in the tour than the pickup.
func evaluatePairInsertions(
	offers []*Offer,
	startFixed bool,
	insertionRanges map[int64][]dispatch.Range,
	busStopTimes [][]interval.Interval,
	evals *evaluations,
) [][][]*Insertion {
	result := make([][][]*Insertion, len(busStopTimes))
	for i := range busStopTimes {
		result[i] = make([][]*Insertion, len(busStopTimes[i]))
	}
	iterateAllInsertions(offers, insertionRanges, func(info InsertionInfo) {
		events := info.Events
		pickupIdx := info.IdxInEvents
		if pickupIdx == 0 || pickupIdx >= len(events) {
			return
		}
		prevPickup := &events[pickupIdx-1]
		var twoBeforePickup *Event
		if pickupIdx >= 2 {
			twoBeforePickup = &events[pickupIdx-2]
		}

		for dropoffIdx := pickupIdx + 1; dropoffIdx <= info.CurrentRange.LatestDropoff; dropoffIdx++ {
			if dropoffIdx >= len(events) {
				break
			}
			nextDropoff := &events[dropoffIdx]
			var twoAfterDropoff *Event
			if dropoffIdx+1 < len(events) {
				twoAfterDropoff = &events[dropoffIdx+1]
			}
			for busStopIdx := range busStopTimes {
				for timeIdx := range busStopTimes[busStopIdx] {
					pickup := evals.userChosenEvaluations[info.InsertionIdx]
					dropoff := evals.busStopEvaluations[busStopIdx][timeIdx][info.InsertionIdx+dropoffIdx-pickupIdx]
					if startFixed {
						pickup = evals.busStopEvaluations[busStopIdx][timeIdx][info.InsertionIdx]
						dropoff = evals.userChosenEvaluations[info.InsertionIdx+dropoffIdx-pickupIdx]
					}
					if pickup == nil || dropoff == nil {
						continue
					}

					communicatedPickupTime := max(
						pickup.Window.End-ScheduledTimeBufferPickup, pickup.Window.Start)
					dropoffBuffer := ScheduledTimeBufferDropoff(dropoff.Window.Start - pickup.Window.End)
					communicatedDropoffTime := min(
						max(dropoff.Window.Start,
							communicatedPickupTime+pickup.NextLegDuration+dropoff.PrevLegDuration)+
							dropoffBuffer,
						dropoff.Window.End)

					leeway := communicatedDropoffTime - communicatedPickupTime -
						pickup.NextLegDuration - dropoff.PrevLegDuration
					if leeway < 0 {
						continue
					}
					pickupScheduledShift := min(
						pickup.Window.Size(), ScheduledTimeBufferPickup, leeway)
					scheduledPickupTime := communicatedPickupTime + pickupScheduledShift
					scheduledDropoffTime := communicatedDropoffTime - min(
						dropoff.Window.Size(), dropoffBuffer, leeway-pickupScheduledShift)

					// Tour duration delta: a stretched departure or arrival
					// counts, waiting between unchanged stops does not.
					newDeparture := prevPickup.Departure
					if twoBeforePickup == nil || twoBeforePickup.TourID != prevPickup.TourID {
						newDeparture = min(
							communicatedPickupTime-pickup.PrevLegDuration,
							prevPickup.ScheduledTime()) - prevPickup.PrevLegDuration
					}
					newArrival := nextDropoff.Arrival
					if twoAfterDropoff == nil || twoAfterDropoff.TourID != nextDropoff.TourID {
						newArrival = max(
							communicatedDropoffTime+dropoff.NextLegDuration,
							nextDropoff.ScheduledTime()) + nextDropoff.NextLegDuration
					}
					var oldTourDurationSum int64
					seen := make(map[int64]struct{})
					for i := pickupIdx; i < dropoffIdx; i++ {
						if _, ok := seen[events[i].TourID]; !ok {
							seen[events[i].TourID] = struct{}{}
							oldTourDurationSum += events[i].Arrival - events[i].Departure
						}
					}
					tourDurationDelta := newArrival - newDeparture - oldTourDurationSum
					waitingTime := pickup.DrivingWaitingTime + dropoff.DrivingWaitingTime
					payedDurationDelta := scheduledDropoffTime - scheduledPickupTime

					profit := getProfit(payedDurationDelta, tourDurationDelta-waitingTime, waitingTime)
					if profit < MinimumProfit {
						continue
					}
					result[busStopIdx][timeIdx] = append(result[busStopIdx][timeIdx], &Insertion{
						InsertionEvaluation: InsertionEvaluation{
							PickupTime:                communicatedPickupTime,
							DropoffTime:               communicatedDropoffTime,
							ScheduledPickupTimeStart:  communicatedPickupTime,
							ScheduledPickupTimeEnd:    scheduledPickupTime,
							ScheduledDropoffTimeStart: scheduledDropoffTime,
							ScheduledDropoffTimeEnd:   communicatedDropoffTime,
							PickupCase:                pickup.Case,
							DropoffCase:               dropoff.Case,
							WaitingTime:               waitingTime,
							PickupPrevLegDuration:     pickup.PrevLegDuration,
							PickupNextLegDuration:     pickup.NextLegDuration,
							DropoffPrevLegDuration:    dropoff.PrevLegDuration,
							DropoffNextLegDuration:    dropoff.NextLegDuration,
							Profit:                    profit,
						},
						Tour:               events[pickupIdx].TourID,
						PickupIdx:          pickupIdx,
						DropoffIdx:         dropoffIdx,
						PrevPickupID:       pickup.PrevID,
						NextPickupID:       pickup.NextID,
						PrevDropoffID:      dropoff.PrevID,
						NextDropoffID:      dropoff.NextID,
						PickupIdxInEvents:  pickup.IdxInEvents,
						DropoffIdxInEvents: dropoff.IdxInEvents,
					})
				}
			}
		}
	})
	return result
}

func expandToFullMinutes(i interval.Interval) interval.Interval {
	floor := (i.Start / dispatch.Minute) * dispatch.Minute
	ceil := ((i.End + dispatch.Minute - 1) / dispatch.Minute) * dispatch.Minute
	return interval.Interval{Start: floor, End: ceil}
}

// keepsPromises checks the quoted tour identity and that the promised pickup
// and dropoff times stay inside the achievable windows.
func keepsPromises(
	t dispatch.InsertionType,
	arrivalWindow interval.Interval,
	directDuration int64,
	tourID int64,
	promised PromisedTimes,
) bool {
	if tourID != promised.TourID {
		return false
	}
	var shift int64
	if t.What == dispatch.Both {
		shift = directDuration
	}
	if t.Direction != dispatch.BusStopPickup {
		shift = -shift
	}
	w := arrivalWindow.Shift(shift)

	pickupWindow := w.Shift(-ScheduledTimeBufferPickup)
	if t.Direction == dispatch.BusStopPickup {
		pickupWindow = arrivalWindow
	}
	pickupWindow = expandToFullMinutes(pickupWindow)

	dropoffWindow := w.Shift(ScheduledTimeBufferDropoff(directDuration))
	if t.Direction == dispatch.BusStopDropoff {
		dropoffWindow = arrivalWindow
	}
	dropoffWindow = expandToFullMinutes(dropoffWindow)

	var checkPickup, checkDropoff bool
	switch t.What {
	case dispatch.Both:
		checkPickup, checkDropoff = true, true
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

// getWaitingTimeDelta is the change of the driver's waiting time: shifts of
// neighbours at tour boundaries stretch the tour, the rest is absorbed.
func getWaitingTimeDelta(
	prev, next *Event,
	events []Event,
	prevShift, nextShift, drivingDurationDelta int64,
) int64 {
	var delta int64
	prevIdx, nextIdx := -1, -1
	for i := range events {
		if events[i].ID == prev.ID {
			prevIdx = i
		}
		if events[i].ID == next.ID {
			nextIdx = i
		}
	}
	if prevShift != 0 && (prevIdx <= 0 || events[prevIdx-1].TourID != prev.TourID) {
		delta += prevShift
	}
	if nextShift != 0 && (nextIdx < 0 || nextIdx+1 >= len(events) || events[nextIdx+1].TourID != next.TourID) {
		delta += nextShift
	}
	return delta - drivingDurationDelta
}

type timestamps struct {
	communicatedPickupTime    int64
	scheduledPickupTimeStart  int64
	scheduledPickupTimeEnd    int64
	communicatedDropoffTime   int64
	scheduledDropoffTimeStart int64
	scheduledDropoffTimeEnd   int64
}

// getTimestamps derives the communicated and scheduled times of both new
// stops from the arrival window, honouring promised times and joining
// neighbouring event groups where the leg duration is zero.
func getTimestamps(
	t dispatch.InsertionType,
	window interval.Interval,
	promised *PromisedTimes,
	prev, next *Event,
	prevLegDuration, nextLegDuration, passengerDuration int64,
) timestamps {
	dropoffBuffer := ScheduledTimeBufferDropoff(passengerDuration)

	prevIsSameEventGroup := prevLegDuration == 0 && prev.Time.Overlaps(window) &&
		(promised == nil || expandToFullMinutes(prev.Time).Overlaps(
			interval.Interval{Start: promised.Pickup, End: promised.Pickup + ScheduledTimeBufferPickup}))
	nextIsSameEventGroup := nextLegDuration == 0 && next.Time.Overlaps(window) &&
		(promised == nil || expandToFullMinutes(next.Time).Overlaps(
			interval.Interval{Start: promised.Dropoff, End: promised.Dropoff + dropoffBuffer}))

	fromPickup := func(pickupStart int64) timestamps {
		pickupEnd := min(window.End, ScheduledTimeBufferPickup+pickupStart)
		dropoffStart := pickupEnd + passengerDuration
		dropoffEnd := min(dropoffStart+dropoffBuffer, window.End+passengerDuration)
		return timestamps{
			communicatedPickupTime:    pickupStart,
			scheduledPickupTimeStart:  pickupStart,
			scheduledPickupTimeEnd:    pickupEnd,
			communicatedDropoffTime:   dropoffEnd,
			scheduledDropoffTimeStart: dropoffStart,
			scheduledDropoffTimeEnd:   dropoffEnd,
		}
	}

	if prevIsSameEventGroup {
		pickupStart := window.Start
		if promised != nil && window.Covers(promised.Pickup) {
			pickupStart = promised.Pickup
		}
		return fromPickup(pickupStart)
	}
	if nextIsSameEventGroup {
		dropoffEnd := min(next.Time.Start, window.End)
		if promised != nil {
			dropoffEnd = min(dropoffEnd, promised.Dropoff)
		}
		pickupEnd := dropoffEnd - passengerDuration
		return timestamps{
			communicatedPickupTime:    pickupEnd,
			scheduledPickupTimeStart:  pickupEnd,
			scheduledPickupTimeEnd:    pickupEnd,
			communicatedDropoffTime:   dropoffEnd,
			scheduledDropoffTimeStart: dropoffEnd,
			scheduledDropoffTimeEnd:   dropoffEnd,
		}
	}
	if t.Direction == dispatch.BusStopPickup {
		pickupStart := window.Start
		if promised != nil && window.Covers(promised.Pickup) {
			pickupStart = promised.Pickup
		}
		return fromPickup(pickupStart)
	}

	dropoffEnd := window.End
	if promised != nil && window.Covers(promised.Dropoff) {
		dropoffEnd = promised.Dropoff
	}
	dropoffStart := max(dropoffEnd-dropoffBuffer, window.Start)
	pickupEnd := dropoffStart - passengerDuration
	pickupStart := max(window.Start-passengerDuration, pickupEnd-ScheduledTimeBufferPickup)
	return timestamps{
		communicatedPickupTime:    pickupStart,
		scheduledPickupTimeStart:  pickupStart,
		scheduledPickupTimeEnd:    pickupEnd,
		communicatedDropoffTime:   dropoffEnd,
		scheduledDropoffTimeStart: dropoffStart,
		scheduledDropoffTimeEnd:   dropoffEnd,
	}
}
