package taxi

import (
	"context"
	"fmt"

	"github.com/motis-project/prima-dispatch/internal/availability"
	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
)

// BookRideResponse is the complete write plan for one matched connection:
// the chosen insertion plus every update the commit must apply atomically.
type BookRideResponse struct {
	Best              *Insertion
	CompanyID         int64
	Tour              *int64
	MergeTourList     []int64
	EventGroupUpdates []EventGroupUpdate
	PickupEventGroup  string
	DropoffEventGroup string
	NeighbourIDs      NeighbourIDs
	DirectDurations   DirectDrivingDurations
	ScheduledTimes    []ScheduledTimeUpdate
	PrevLegDurations  []LegDurationUpdate
	NextLegDurations  []LegDurationUpdate
}

// bookRide finds the cheapest way to serve one expected connection and
// assembles the write plan. Returns nil without error when no vehicle can
// serve the connection. A blocked vehicle is excluded from the search, used
// when a second connection must not race the first one's vehicle.
func (s *Service) bookRide(
	ctx context.Context,
	c *booking.ExpectedConnection,
	required dispatch.Capacities,
	blockedVehicleID *int64,
	promised *booking.PromisedTimes,
) (*BookRideResponse, error) {
	searchInterval := interval.New(c.StartTime, c.TargetTime)
	expanded := searchInterval.Expand(6*s.availability.MaxTravel(), 6*s.availability.MaxTravel())

	snapshot, err := s.availability.Snapshot(ctx, c.Start, required, searchInterval,
		[]dispatch.Coordinates{c.Target})
	if err != nil {
		return nil, fmt.Errorf("availability snapshot: %w", err)
	}
	companies := snapshot.Companies
	if blockedVehicleID != nil {
		companies = withoutVehicle(companies, *blockedVehicleID)
	}
	if len(companies) == 0 || len(snapshot.BusStopFilter) == 0 || snapshot.BusStopFilter[0] == -1 {
		return nil, nil
	}

	userChosen := c.Start
	busStop := c.Target
	busTime := c.TargetTime
	if c.StartFixed {
		userChosen, busStop = c.Target, c.Start
		busTime = c.StartTime
	}

	results, err := s.EvaluateRequest(ctx, companies, expanded, userChosen,
		[]BusStop{{Coordinates: busStop, Times: []int64{busTime}}},
		required, c.StartFixed, promised)
	if err != nil {
		return nil, err
	}
	best := results[0][0]
	if best == nil {
		return nil, nil
	}

	company := companies[best.Company]
	var vehicle *availability.Vehicle
	for _, v := range company.Vehicles {
		if v.ID == best.Vehicle {
			vehicle = v
			break
		}
	}
	if vehicle == nil {
		return nil, fmt.Errorf("evaluated vehicle %d not in snapshot", best.Vehicle)
	}
	events := vehicle.Events

	prevPickupEventIdx := idxBefore(best.PickupIdx)
	if best.PickupCase.How == dispatch.NewTour {
		prevPickupEventIdx = findLastIdx(events, func(e *availability.Event) bool {
			return e.CommunicatedTime <= best.PickupTime
		})
	}
	pickupEventGroup, pickupGroupUpdates := getEventGroupInfo(
		events, c.Start, prevPickupEventIdx, best.PickupIdx, best.PickupCase.How)

	prevDropoffEventIdx := idxBefore(best.DropoffIdx)
	dropoffEventGroup, dropoffGroupUpdates := getEventGroupInfo(
		events, c.Target, prevDropoffEventIdx, best.DropoffIdx, best.DropoffCase.How)

	// The events bracketing the insertion in neighbouring tours, used to
	// recompute tour-level direct durations.
	pickupPredIdx := prevPickupEventIdx
	dropoffSuccIdx := best.DropoffIdx
	if best.PickupCase.How == dispatch.NewTour {
		dropoffSuccIdx = findFirstIdx(events, func(e *availability.Event) bool {
			return e.CommunicatedTime >= best.DropoffTime
		})
	}
	pickupPred := eventAtIdx(events, pickupPredIdx)
	dropoffSucc := eventAtIdx(events, dropoffSuccIdx)

	var tourIDPickup *int64
	if best.PickupIdx != nil {
		if e := eventAt(events, *best.PickupIdx); e != nil {
			tourIDPickup = int64Ptr(e.TourID)
		}
	}

	mergeTourList := getMergeTourList(events, best.PickupCase.How, best.DropoffCase.How,
		best.PickupIdx, best.DropoffIdx)
	doesConnectTours := len(mergeTourList) > 1

	departure, arrival, firstEvents, lastEvents := getFirstAndLastEvents(mergeTourList, best, events)

	directDurations, err := s.getDirectDurations(ctx, best, pickupPred, dropoffSucc, c,
		tourIDPickup, doesConnectTours, departure, arrival, vehicle)
	if err != nil {
		return nil, err
	}

	prevPickup := eventAtIdx(events, prevPickupEventIdx)
	nextPickup := eventAtIdx(events, best.PickupIdx)
	prevDropoff := eventAtIdx(events, prevDropoffEventIdx)
	nextDropoff := eventAtIdx(events, best.DropoffIdx)

	scheduledTimes, err := getScheduledTimes(best, prevPickup, nextPickup, prevDropoff, nextDropoff,
		firstEvents, lastEvents, pickupEventGroup, dropoffEventGroup, directDurations)
	if err != nil {
		s.logger.Debug().Err(err).Int64("vehicle", best.Vehicle).
			Msg("insertion discarded, neighbour windows cannot absorb it")
		return nil, nil
	}

	prevLegDurations, nextLegDurations, err := s.getLegDurationUpdates(ctx, firstEvents, lastEvents,
		prevPickup, nextPickup, prevDropoff, nextDropoff, pickupEventGroup, dropoffEventGroup, best)
	if err != nil {
		return nil, err
	}

	var tour *int64
	switch best.PickupCase.How {
	case dispatch.NewTour:
	case dispatch.Prepend:
		if nextPickup != nil {
			tour = int64Ptr(nextPickup.TourID)
		}
	default:
		if prevPickup != nil {
			tour = int64Ptr(prevPickup.TourID)
		}
	}

	neighbours := NeighbourIDs{}
	if best.PickupCase.How != dispatch.Prepend && prevPickup != nil {
		neighbours.PrevPickup = int64Ptr(prevPickup.ID)
		neighbours.PrevPickupGroup = &prevPickup.EventGroup
	}
	if best.PickupCase.How != dispatch.Append && nextPickup != nil {
		neighbours.NextPickup = int64Ptr(nextPickup.ID)
		neighbours.NextPickupGroup = &nextPickup.EventGroup
	}
	if best.DropoffCase.How != dispatch.Prepend && prevDropoff != nil {
		neighbours.PrevDropoff = int64Ptr(prevDropoff.ID)
		neighbours.PrevDropoffGroup = &prevDropoff.EventGroup
	}
	if best.DropoffCase.How != dispatch.Append && nextDropoff != nil {
		neighbours.NextDropoff = int64Ptr(nextDropoff.ID)
		neighbours.NextDropoffGroup = &nextDropoff.EventGroup
	}

	return &BookRideResponse{
		Best:              best,
		CompanyID:         company.ID,
		Tour:              tour,
		MergeTourList:     mergeTourList,
		EventGroupUpdates: append(pickupGroupUpdates, dropoffGroupUpdates...),
		PickupEventGroup:  pickupEventGroup,
		DropoffEventGroup: dropoffEventGroup,
		NeighbourIDs:      neighbours,
		DirectDurations:   directDurations,
		ScheduledTimes:    scheduledTimes,
		PrevLegDurations:  prevLegDurations,
		NextLegDurations:  nextLegDurations,
	}, nil
}

func withoutVehicle(companies []availability.Company, vehicleID int64) []availability.Company {
	filtered := make([]availability.Company, 0, len(companies))
	for _, company := range companies {
		vehicles := make([]*availability.Vehicle, 0, len(company.Vehicles))
		for _, v := range company.Vehicles {
			if v.ID != vehicleID {
				vehicles = append(vehicles, v)
			}
		}
		if len(vehicles) == 0 {
			continue
		}
		company.Vehicles = vehicles
		filtered = append(filtered, company)
	}
	return filtered
}

// idxBefore returns a pointer to idx-1, nil when idx is nil.
func idxBefore(idx *int) *int {
	if idx == nil {
		return nil
	}
	return intPtr(*idx - 1)
}

func eventAtIdx(events []availability.Event, idx *int) *availability.Event {
	if idx == nil {
		return nil
	}
	return eventAt(events, *idx)
}

func findLastIdx(events []availability.Event, match func(*availability.Event) bool) *int {
	for i := len(events) - 1; i >= 0; i-- {
		if match(&events[i]) {
			return intPtr(i)
		}
	}
	return nil
}

func findFirstIdx(events []availability.Event, match func(*availability.Event) bool) *int {
	for i := range events {
		if match(&events[i]) {
			return intPtr(i)
		}
	}
	return nil
}
