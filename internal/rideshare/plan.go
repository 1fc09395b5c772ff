package rideshare

import (
	"errors"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

var errImpossibleSchedule = errors.New("scheduled time adjustment is impossible")

// getScheduledTimes derives the scheduled-window adjustments of the events
// neighbouring the two new stops. Neighbours sharing an event group are
// tightened onto the new stop's window; other neighbours are shifted only as
// far as the connecting leg requires.
func getScheduledTimes(
	best *Insertion,
	prevPickup, nextPickup, nextDropoff, prevDropoff *Event,
	pickupGroup, dropoffGroup *string,
) ([]ScheduledTimeUpdate, error) {
	var updates []ScheduledTimeUpdate

	addUpdates := func(event *Event, duration, newStart, newEnd int64, group *string, precedes bool) error {
		if event == nil {
			return nil
		}
		if group != nil && event.EventGroup == *group {
			updates = append(updates,
				ScheduledTimeUpdate{EventID: event.ID, Start: true, Time: max(newStart, event.Time.Start)},
				ScheduledTimeUpdate{EventID: event.ID, Start: false, Time: min(newEnd, event.Time.End)})
			return nil
		}
		newTime := newEnd
		shift := -duration
		if precedes {
			newTime = newStart
			shift = duration
		}
		if !event.Time.Shift(shift).Covers(newTime) {
			return nil
		}
		oldTime := event.Time.End
		if precedes {
			oldTime = event.Time.Start
		}
		leeway := (oldTime - newTime) - duration
		newShiftedTime := newTime + duration
		if precedes {
			leeway = (newTime - oldTime) - duration
			newShiftedTime = newTime - duration
		}
		if leeway < 0 {
			return errImpossibleSchedule
		}
		if leeway < event.Time.Size() {
			updates = append(updates, ScheduledTimeUpdate{
				EventID: event.ID,
				Start:   !precedes,
				Time:    newShiftedTime,
			})
		}
		return nil
	}

	if err := addUpdates(prevPickup, best.PickupPrevLegDuration,
		best.ScheduledPickupTimeStart, best.ScheduledPickupTimeEnd, pickupGroup, true); err != nil {
		return nil, err
	}
	if best.PickupCase.What != dispatch.Both {
		if err := addUpdates(nextPickup, best.PickupNextLegDuration,
			best.ScheduledPickupTimeStart, best.ScheduledPickupTimeEnd, pickupGroup, false); err != nil {
			return nil, err
		}
		if err := addUpdates(prevDropoff, best.DropoffPrevLegDuration,
			best.ScheduledDropoffTimeStart, best.ScheduledDropoffTimeEnd, dropoffGroup, true); err != nil {
			return nil, err
		}
	}
	if err := addUpdates(nextDropoff, best.DropoffNextLegDuration,
		best.ScheduledDropoffTimeStart, best.ScheduledDropoffTimeEnd, dropoffGroup, false); err != nil {
		return nil, err
	}
	return updates, nil
}

// getDurationUpdates derives the neighbour leg durations that change when the
// new stops land between them.
func getDurationUpdates(best *Insertion) (prevLegUpdates, nextLegUpdates []LegDurationUpdate) {
	if best.PrevPickupID != nil {
		nextLegUpdates = append(nextLegUpdates, LegDurationUpdate{
			EventID: *best.PrevPickupID, Duration: best.PickupPrevLegDuration})
	}
	if best.PrevDropoffID != nil &&
		(best.PrevPickupID == nil || *best.PrevDropoffID != *best.PrevPickupID) {
		nextLegUpdates = append(nextLegUpdates, LegDurationUpdate{
			EventID: *best.PrevDropoffID, Duration: best.DropoffPrevLegDuration})
	}
	if best.NextDropoffID != nil {
		prevLegUpdates = append(prevLegUpdates, LegDurationUpdate{
			EventID: *best.NextDropoffID, Duration: best.DropoffNextLegDuration})
	}
	if best.NextPickupID != nil &&
		(best.NextDropoffID == nil || *best.NextDropoffID != *best.NextPickupID) {
		prevLegUpdates = append(prevLegUpdates, LegDurationUpdate{
			EventID: *best.NextPickupID, Duration: best.PickupNextLegDuration})
	}
	return prevLegUpdates, nextLegUpdates
}

// belongToSameEventGroup reports whether an existing neighbour event shares
// place and scheduled window with a new stop, so the two are served together.
func belongToSameEventGroup(event *Event, place dispatch.Coordinates, window interval.Interval) bool {
	if event == nil {
		return false
	}
	return dispatch.SamePlace(event.Coordinates, place) &&
		(window.Overlaps(event.Time) || window.Touches(event.Time) || window.Equal(event.Time))
}
