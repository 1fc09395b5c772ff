package taxi

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/motis-project/prima-dispatch/internal/availability"
	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
)

// EventGroupUpdate reassigns an existing event to a new event group.
type EventGroupUpdate struct {
	EventID    int64  `json:"id"`
	EventGroup string `json:"event_group"`
}

// ScheduledTimeUpdate tightens one edge of an existing event's scheduled
// time window.
type ScheduledTimeUpdate struct {
	EventID int64 `json:"event_id"`
	Time    int64 `json:"time"`
	Start   bool  `json:"start"`
}

// LegDurationUpdate sets the stored driving duration of the leg adjacent to
// an existing event. A nil duration marks the leg as unroutable.
type LegDurationUpdate struct {
	EventID  int64  `json:"event"`
	Duration *int64 `json:"duration"`
}

// TourDirectDuration is the recomputed direct driving time between two tours
// affected by an insertion.
type TourDirectDuration struct {
	TourID          *int64 `json:"tour_id"`
	DrivingDuration *int64 `json:"direct_driving_duration"`
}

// DirectDrivingDurations carries the direct duration updates of the tour
// containing the pickup and of the following tour.
type DirectDrivingDurations struct {
	ThisTour *TourDirectDuration `json:"this_tour,omitempty"`
	NextTour *TourDirectDuration `json:"next_tour,omitempty"`
}

// getMergeTourList collects the ids of the tours that serving the request at
// the chosen positions joins into one. Empty when the request starts a tour
// of its own.
func getMergeTourList(
	events []availability.Event,
	pickupHow, dropoffHow dispatch.InsertHow,
	pickupIdx, dropoffIdx *int,
) []int64 {
	if len(events) == 0 || pickupHow == dispatch.NewTour {
		return nil
	}
	seen := make(map[int64]struct{})
	var tours []int64
	add := func(id int64) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			tours = append(tours, id)
		}
	}
	if pickupHow == dispatch.Connect && pickupIdx != nil && *pickupIdx > 0 {
		add(events[*pickupIdx-1].TourID)
	}
	if dropoffHow == dispatch.Connect && dropoffIdx != nil && *dropoffIdx < len(events) {
		add(events[*dropoffIdx].TourID)
	}
	start := 0
	if pickupIdx != nil {
		start = *pickupIdx
	}
	end := len(events) - 1
	if dropoffIdx != nil {
		end = *dropoffIdx
	}
	for i := start; i < end && i < len(events); i++ {
		add(events[i].TourID)
	}
	return tours
}

// getEventGroupInfo determines the event group of a new stop and which
// existing events move into it. Stops at the same place as their scheduled
// neighbour share that neighbour's group, otherwise a fresh group is opened.
func getEventGroupInfo(
	events []availability.Event,
	coordinates dispatch.Coordinates,
	prevEventIdx, nextEventIdx *int,
	how dispatch.InsertHow,
) (string, []EventGroupUpdate) {
	if how == dispatch.NewTour {
		return uuid.NewString(), nil
	}
	comparisonIdx := prevEventIdx
	if how == dispatch.Prepend {
		comparisonIdx = nextEventIdx
	}
	var comparison *availability.Event
	if comparisonIdx != nil {
		comparison = eventAt(events, *comparisonIdx)
	}
	if comparison == nil {
		return uuid.NewString(), nil
	}
	group := uuid.NewString()
	if dispatch.SamePlace(comparison.Coordinates, coordinates) {
		group = comparison.EventGroup
	}

	// Connecting two tours at the same place pulls the leading events of the
	// following tour into the new group.
	var updates []EventGroupUpdate
	if how == dispatch.Connect && nextEventIdx != nil {
		nextTour := events[*nextEventIdx].TourID
		for i := *nextEventIdx; i < len(events); i++ {
			if events[i].TourID != nextTour || !dispatch.SamePlace(events[i].Coordinates, coordinates) {
				break
			}
			updates = append(updates, EventGroupUpdate{EventID: events[i].ID, EventGroup: group})
		}
	}
	return group, updates
}

// getFirstAndLastEvents determines the boundary events of the tours being
// merged: the merged tour's departure and arrival, the events that open each
// absorbed tour and the events that close each absorbed tour. The insertion's
// departure and arrival are widened to the merged bounds.
func getFirstAndLastEvents(
	mergeTourList []int64,
	best *Insertion,
	events []availability.Event,
) (departure, arrival int64, firstEvents, lastEvents []availability.Event) {
	if best.PickupCase.How == dispatch.NewTour || len(mergeTourList) == 0 {
		return -1, -1, nil, nil
	}

	merged := make(map[int64]struct{}, len(mergeTourList))
	for _, id := range mergeTourList {
		merged[id] = struct{}{}
	}

	departure = math.MaxInt64
	arrival = -1
	byTour := make(map[int64][]availability.Event)
	for _, e := range events {
		if _, ok := merged[e.TourID]; !ok {
			continue
		}
		departure = min(departure, e.Departure)
		arrival = max(arrival, e.Arrival)
		byTour[e.TourID] = append(byTour[e.TourID], e)
	}
	if best.PickupCase.How != dispatch.Prepend {
		best.Departure = int64Ptr(departure)
	}
	if best.DropoffCase.How != dispatch.Append {
		best.Arrival = int64Ptr(arrival)
	}

	isNeighbourPickup := func(id int64) bool {
		return (best.NextPickupID != nil && *best.NextPickupID == id) ||
			(best.NextDropoffID != nil && *best.NextDropoffID == id)
	}
	isNeighbourDropoff := func(id int64) bool {
		return (best.PrevPickupID != nil && *best.PrevPickupID == id) ||
			(best.PrevDropoffID != nil && *best.PrevDropoffID == id)
	}
	for _, tourEvents := range byTour {
		sort.Slice(tourEvents, func(a, b int) bool {
			if tourEvents[a].Time.Start != tourEvents[b].Time.Start {
				return tourEvents[a].Time.Start < tourEvents[b].Time.Start
			}
			return tourEvents[a].Time.End < tourEvents[b].Time.End
		})
		first := tourEvents[0]
		last := tourEvents[len(tourEvents)-1]
		if first.Departure != departure && !isNeighbourPickup(first.ID) {
			firstEvents = append(firstEvents, first)
		}
		if last.Arrival != arrival && !isNeighbourDropoff(last.ID) {
			lastEvents = append(lastEvents, last)
		}
	}
	sort.Slice(firstEvents, func(a, b int) bool {
		return firstEvents[a].Time.Start < firstEvents[b].Time.Start
	})
	sort.Slice(lastEvents, func(a, b int) bool {
		return lastEvents[a].Time.End < lastEvents[b].Time.End
	})
	return departure, arrival, firstEvents, lastEvents
}

// getScheduledTimes derives the scheduled time window updates the insertion
// forces on its neighbour events. Neighbours in the same event group get
// their windows clamped onto the new stop's window; others are pushed apart
// by the connecting leg duration. Returns an error when a neighbour cannot
// be shifted far enough.
func getScheduledTimes(
	best *Insertion,
	prevPickup, nextPickup, prevDropoff, nextDropoff *availability.Event,
	firstEvents, lastEvents []availability.Event,
	pickupEventGroup, dropoffEventGroup string,
	direct DirectDrivingDurations,
) ([]ScheduledTimeUpdate, error) {
	var updates []ScheduledTimeUpdate

	addUpdates := func(event *availability.Event, duration, newStart, newEnd int64, eventGroup string, newEventIsEarlier bool) error {
		if event == nil {
			return nil
		}
		if event.EventGroup == eventGroup {
			updates = append(updates,
				ScheduledTimeUpdate{EventID: event.ID, Time: max(newStart, event.Time.Start), Start: true},
				ScheduledTimeUpdate{EventID: event.ID, Time: min(newEnd, event.Time.End), Start: false},
			)
			return nil
		}
		newTime := newStart
		shift := duration
		if newEventIsEarlier {
			newTime = newEnd
			shift = -duration
		}
		if !event.Time.Shift(shift).Covers(newTime) {
			return nil
		}
		newShiftedTime := newTime - duration
		if newEventIsEarlier {
			newShiftedTime = newTime + duration
		}
		impossible := event.Time.Start > newShiftedTime
		if newEventIsEarlier {
			impossible = event.Time.End < newShiftedTime
		}
		if impossible {
			return fmt.Errorf("scheduled time of event %d cannot absorb the new leg", event.ID)
		}
		updates = append(updates, ScheduledTimeUpdate{EventID: event.ID, Time: newShiftedTime, Start: newEventIsEarlier})
		return nil
	}

	containsEvent := func(events []availability.Event, e *availability.Event) bool {
		if e == nil {
			return false
		}
		for i := range events {
			if events[i].ID == e.ID {
				return true
			}
		}
		return false
	}

	pickupPrevLegDuration := best.PickupPrevLegDuration
	if containsEvent(firstEvents, nextPickup) &&
		best.PickupIdx != nil && *best.PickupIdx != 0 &&
		containsEvent(lastEvents, prevPickup) &&
		direct.ThisTour != nil && direct.ThisTour.DrivingDuration != nil {
		pickupPrevLegDuration = max(pickupPrevLegDuration, *direct.ThisTour.DrivingDuration)
	}
	dropoffNextLegDuration := best.DropoffNextLegDuration
	if containsEvent(firstEvents, nextDropoff) &&
		containsEvent(lastEvents, prevDropoff) &&
		direct.NextTour != nil && direct.NextTour.DrivingDuration != nil {
		dropoffNextLegDuration = max(dropoffNextLegDuration, *direct.NextTour.DrivingDuration)
	}

	if err := addUpdates(prevPickup, pickupPrevLegDuration,
		best.ScheduledPickupTimeStart, best.ScheduledPickupTimeEnd, pickupEventGroup, false); err != nil {
		return nil, err
	}
	if best.PickupCase.What != dispatch.Both {
		if err := addUpdates(nextPickup, best.PickupNextLegDuration,
			best.ScheduledPickupTimeStart, best.ScheduledPickupTimeEnd, pickupEventGroup, true); err != nil {
			return nil, err
		}
		if err := addUpdates(prevDropoff, best.DropoffPrevLegDuration,
			best.ScheduledDropoffTimeStart, best.ScheduledDropoffTimeEnd, dropoffEventGroup, false); err != nil {
			return nil, err
		}
	}
	if err := addUpdates(nextDropoff, dropoffNextLegDuration,
		best.ScheduledDropoffTimeStart, best.ScheduledDropoffTimeEnd, dropoffEventGroup, true); err != nil {
		return nil, err
	}

	// Close the gaps between merged tours: pull each tour's closing event and
	// the next tour's opening event together until their scheduled distance
	// matches the actual driving distance.
	for i := 0; i < len(firstEvents) && i < len(lastEvents); i++ {
		earlier := lastEvents[i]
		later := firstEvents[i]
		var actualDistance *int64
		if earlier.TourID == later.TourID {
			actualDistance = int64Ptr(later.PrevLegDuration)
		} else {
			actualDistance = later.DirectDuration
		}
		startEarlier := earlier.Time.Start
		for _, u := range updates {
			if u.EventID == earlier.ID && u.Start {
				startEarlier = u.Time
			}
		}
		leeway := earlier.Time.End - startEarlier
		scheduledDistance := later.Time.Start - earlier.Time.End
		if actualDistance == nil || *actualDistance+PassengerChangeDuration < scheduledDistance {
			return updates, nil
		}
		gap := *actualDistance - scheduledDistance
		if leeway < gap {
			updates = append(updates,
				ScheduledTimeUpdate{EventID: earlier.ID, Time: startEarlier, Start: false},
				ScheduledTimeUpdate{EventID: later.ID, Time: later.Time.Start + gap - leeway, Start: true},
			)
		} else {
			updates = append(updates,
				ScheduledTimeUpdate{EventID: earlier.ID, Time: earlier.Time.End - gap, Start: false},
			)
		}
	}
	return updates, nil
}

// getLegDurationUpdates recomputes the stored leg durations the insertion
// invalidates: the legs across merged tour boundaries and the legs of the
// neighbours now adjacent to the new stops.
func (s *Service) getLegDurationUpdates(
	ctx context.Context,
	firstEvents, lastEvents []availability.Event,
	prevPickup, nextPickup, prevDropoff, nextDropoff *availability.Event,
	pickupEventGroup, dropoffEventGroup string,
	best *Insertion,
) (prevLegDurations, nextLegDurations []LegDurationUpdate, err error) {
	for i := 0; i < len(firstEvents) && i < len(lastEvents); i++ {
		duration, err := s.routeOne(ctx, lastEvents[i].Coordinates, firstEvents[i].Coordinates)
		if err != nil {
			return nil, nil, err
		}
		prevLegDurations = append(prevLegDurations, LegDurationUpdate{EventID: firstEvents[i].ID, Duration: duration})
		nextLegDurations = append(nextLegDurations, LegDurationUpdate{EventID: lastEvents[i].ID, Duration: duration})
	}

	addLegDurationUpdate := func(neighbour *availability.Event, groupID string, durDifferent int64, durSame *int64, arr *[]LegDurationUpdate) {
		if neighbour == nil {
			return
		}
		if neighbour.EventGroup != groupID {
			*arr = append(*arr, LegDurationUpdate{EventID: neighbour.ID, Duration: int64Ptr(durDifferent)})
		} else if durSame != nil {
			*arr = append(*arr, LegDurationUpdate{EventID: neighbour.ID, Duration: durSame})
		}
	}

	if best.PickupCase.What == dispatch.Both {
		switch best.PickupCase.How {
		case dispatch.Append:
			addLegDurationUpdate(prevPickup, pickupEventGroup,
				best.PickupPrevLegDuration, int64Ptr(best.DropoffPrevLegDuration), &nextLegDurations)
		case dispatch.Prepend:
			addLegDurationUpdate(nextDropoff, dropoffEventGroup,
				best.DropoffNextLegDuration, int64Ptr(best.PickupNextLegDuration), &prevLegDurations)
		default:
			addLegDurationUpdate(prevPickup, pickupEventGroup,
				best.PickupPrevLegDuration, int64Ptr(best.DropoffPrevLegDuration), &nextLegDurations)
			addLegDurationUpdate(nextDropoff, dropoffEventGroup,
				best.DropoffNextLegDuration, int64Ptr(best.PickupNextLegDuration), &prevLegDurations)
		}
		return prevLegDurations, nextLegDurations, nil
	}

	switch best.PickupCase.How {
	case dispatch.Append:
		addLegDurationUpdate(prevPickup, pickupEventGroup,
			best.PickupPrevLegDuration, nil, &nextLegDurations)
	case dispatch.Prepend:
		addLegDurationUpdate(nextPickup, pickupEventGroup,
			best.PickupNextLegDuration, nil, &prevLegDurations)
	default:
		addLegDurationUpdate(prevPickup, pickupEventGroup,
			best.PickupPrevLegDuration, nil, &nextLegDurations)
		addLegDurationUpdate(nextPickup, pickupEventGroup,
			best.PickupNextLegDuration, nil, &prevLegDurations)
	}
	switch best.DropoffCase.How {
	case dispatch.Append:
		addLegDurationUpdate(prevDropoff, dropoffEventGroup,
			best.DropoffPrevLegDuration, nil, &nextLegDurations)
	case dispatch.Prepend:
		addLegDurationUpdate(nextDropoff, dropoffEventGroup,
			best.DropoffNextLegDuration, nil, &prevLegDurations)
	default:
		addLegDurationUpdate(prevDropoff, dropoffEventGroup,
			best.DropoffPrevLegDuration, nil, &nextLegDurations)
		addLegDurationUpdate(nextDropoff, dropoffEventGroup,
			best.DropoffNextLegDuration, nil, &prevLegDurations)
	}
	return prevLegDurations, nextLegDurations, nil
}

// getDirectDurations recomputes the tour-level direct driving durations
// invalidated by the insertion: the approach of the pickup's tour when the
// request opens it and the connection into the following tour when the
// request closes it, plus both sides of any tour boundary the insertion
// crosses.
func (s *Service) getDirectDurations(
	ctx context.Context,
	best *Insertion,
	pickupPred, dropoffSucc *availability.Event,
	c *booking.ExpectedConnection,
	tourIDPickup *int64,
	doesConnectTours bool,
	departure, arrival int64,
	vehicle *availability.Vehicle,
) (DirectDrivingDurations, error) {
	var direct DirectDrivingDurations

	if (best.PickupCase.How == dispatch.Prepend || best.PickupCase.How == dispatch.NewTour) && pickupPred != nil {
		duration, err := s.routeOne(ctx, pickupPred.Coordinates, c.Start)
		if err != nil {
			return direct, err
		}
		direct.ThisTour = &TourDirectDuration{TourID: tourIDPickup, DrivingDuration: duration}
	}
	if (best.DropoffCase.How == dispatch.Append || best.DropoffCase.How == dispatch.NewTour) && dropoffSucc != nil {
		duration, err := s.routeOne(ctx, c.Target, dropoffSucc.Coordinates)
		if err != nil {
			return direct, err
		}
		direct.NextTour = &TourDirectDuration{TourID: int64Ptr(dropoffSucc.TourID), DrivingDuration: duration}
	}
	if !doesConnectTours {
		return direct, nil
	}

	events := vehicle.Events
	lastEventBeforeDeparture := vehicle.LastEventBefore
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].ScheduledTime() <= departure {
			lastEventBeforeDeparture = &events[i]
			break
		}
	}
	var firstEventAfterDeparture *availability.Event
	for i := range events {
		if events[i].ScheduledTime() > departure {
			firstEventAfterDeparture = &events[i]
			break
		}
	}
	firstEventAfterArrival := vehicle.FirstEventAfter
	for i := range events {
		if events[i].ScheduledTime() >= arrival {
			firstEventAfterArrival = &events[i]
			break
		}
	}
	var lastEventBeforeArrival *availability.Event
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].ScheduledTime() < arrival {
			lastEventBeforeArrival = &events[i]
			break
		}
	}

	if best.PickupCase.How != dispatch.Prepend && lastEventBeforeDeparture != nil && firstEventAfterDeparture != nil {
		duration, err := s.routeOne(ctx, lastEventBeforeDeparture.Coordinates, firstEventAfterDeparture.Coordinates)
		if err != nil {
			return direct, err
		}
		direct.ThisTour = &TourDirectDuration{TourID: tourIDPickup, DrivingDuration: duration}
	}
	if best.DropoffCase.How != dispatch.Append && firstEventAfterArrival != nil && lastEventBeforeArrival != nil {
		duration, err := s.routeOne(ctx, lastEventBeforeArrival.Coordinates, firstEventAfterArrival.Coordinates)
		if err != nil {
			return direct, err
		}
		direct.NextTour = &TourDirectDuration{TourID: int64Ptr(firstEventAfterArrival.TourID), DrivingDuration: duration}
	}
	return direct, nil
}

// routeOne computes a single leg duration including the passenger change
// time. Returns nil when the leg is unroutable within the travel bound.
func (s *Service) routeOne(ctx context.Context, from, to dispatch.Coordinates) (*int64, error) {
	durations, err := s.routing.BatchOneToMany(ctx, from, []*dispatch.Coordinates{&to}, false)
	if err != nil {
		return nil, fmt.Errorf("routing leg duration: %w", err)
	}
	if len(durations) == 0 || durations[0] == nil {
		return nil, nil
	}
	return int64Ptr(*durations[0] + PassengerChangeDuration), nil
}
