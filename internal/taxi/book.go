package taxi

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/notify"
)

// Candidate departure times around the requested one are tried in order of
// distance to it, so a booking that narrowly fails still succeeds at a
// nearby time.
const (
	// DirectRideTimeDifference is how far a direct ride may be moved from
	// the requested time.
	DirectRideTimeDifference = 15 * dispatch.Minute

	// DirectRideFrequency is the step between candidate times.
	DirectRideFrequency = 5 * dispatch.Minute
)

// Booking errors.
var (
	// ErrMissingConnection indicates a booking request without any leg.
	ErrMissingConnection = errors.New("booking requires at least one connection")

	// ErrNoVehicleAvailable indicates that no vehicle can serve the
	// requested legs at any candidate time.
	ErrNoVehicleAvailable = errors.New("no vehicle available for the requested connection")

	// ErrRequestNotFound indicates an unknown request id.
	ErrRequestNotFound = errors.New("request not found")
)

// BookingParameters is one booking request: up to two legs of the same
// journey and the capacities they need.
type BookingParameters struct {
	Connection1 *booking.ExpectedConnection `json:"connection1"`
	Connection2 *booking.ExpectedConnection `json:"connection2"`
	Capacities  dispatch.Capacities         `json:"capacities"`

	// CustomerID is taken from the session, not the request body.
	CustomerID int64 `json:"-"`
}

// BookingResult reports a committed booking.
type BookingResult struct {
	RequestID1        *int64  `json:"request1,omitempty"`
	RequestID2        *int64  `json:"request2,omitempty"`
	Cost              float64 `json:"cost"`
	PassengerDuration int64   `json:"passengerDuration"`
	WaitingTime       int64   `json:"waitingTime"`
	Approach          int64   `json:"approachDuration"`
	FullyPayed        int64   `json:"fullyPayedDuration"`
}

// Book validates, places and commits a booking. Legs are tried at the
// requested time first, then at nearby candidate times.
func (s *Service) Book(ctx context.Context, params BookingParameters) (*BookingResult, error) {
	if params.Connection1 == nil && params.Connection2 == nil {
		return nil, ErrMissingConnection
	}
	for _, c := range []*booking.ExpectedConnection{params.Connection1, params.Connection2} {
		if c == nil {
			continue
		}
		if err := s.signer.Validate(*c); err != nil {
			return nil, err
		}
	}

	primary := params.Connection1
	if primary == nil {
		primary = params.Connection2
	}

	// The communicated times are promised at signing time. Shifting a leg to
	// a nearby candidate time must not move them along.
	promised1 := promisedTimes(params.Connection1)
	promised2 := promisedTimes(params.Connection2)

	for _, delta := range candidateDeltas(primary.RequestedTime) {
		c1 := shiftConnection(params.Connection1, delta)
		c2 := shiftConnection(params.Connection2, delta)

		result, err := s.tryBooking(ctx, c1, c2, promised1, promised2, params.Capacities, params.CustomerID)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, ErrNoVehicleAvailable
}

// tryBooking attempts both legs at one candidate time. Returns nil without
// error when a leg cannot be served.
func (s *Service) tryBooking(
	ctx context.Context,
	c1, c2 *booking.ExpectedConnection,
	promised1, promised2 *booking.PromisedTimes,
	required dispatch.Capacities,
	customerID int64,
) (*BookingResult, error) {
	var plan1, plan2 *BookRideResponse
	var err error

	if c1 != nil {
		plan1, err = s.bookRide(ctx, c1, required, nil, promised1)
		if err != nil {
			return nil, err
		}
		if plan1 == nil {
			return nil, nil
		}
	}
	if c2 != nil {
		var blocked *int64
		if plan1 != nil {
			blocked = int64Ptr(plan1.Best.Vehicle)
		}
		plan2, err = s.bookRide(ctx, c2, required, blocked, promised2)
		if err != nil {
			return nil, err
		}
		if plan2 == nil {
			return nil, nil
		}
	}

	// When both legs touch the same set of tours they must end up in one
	// tour, not two.
	if plan1 != nil && plan2 != nil && plan1.Tour != nil && plan2.Tour != nil {
		if common := getCommonTour(plan1.MergeTourList, plan2.MergeTourList); common != nil {
			plan1.Tour = common
			plan2.Tour = common
		}
	}

	result := &BookingResult{}
	if plan1 != nil {
		id, err := s.commitPlan(ctx, c1, plan1, required, customerID)
		if err != nil {
			return nil, err
		}
		result.RequestID1 = int64Ptr(id)
		result.Cost = plan1.Best.Cost
		result.PassengerDuration = plan1.Best.PassengerDuration
		result.WaitingTime = plan1.Best.TaxiWaitingTime
		result.Approach = plan1.Best.ApproachPlusReturnDurationDelta
		result.FullyPayed = plan1.Best.FullyPayedDurationDelta
	}
	if plan2 != nil {
		id, err := s.commitPlan(ctx, c2, plan2, required, customerID)
		if err != nil {
			return nil, err
		}
		result.RequestID2 = int64Ptr(id)
	}
	return result, nil
}

// commitPlan persists one leg's write plan and publishes the tour change.
func (s *Service) commitPlan(
	ctx context.Context,
	c *booking.ExpectedConnection,
	plan *BookRideResponse,
	required dispatch.Capacities,
	customerID int64,
) (int64, error) {
	best := plan.Best
	commit := &BookingCommit{
		CustomerID: customerID,
		Required:   required,
		VehicleID:  best.Vehicle,
		Tour:       plan.Tour,
		Departure:  best.Departure,
		Arrival:    best.Arrival,
		Pickup: EventInsert{
			Coordinates:        c.Start,
			IsPickup:           true,
			ScheduledTimeStart: best.ScheduledPickupTimeStart,
			ScheduledTimeEnd:   best.ScheduledPickupTimeEnd,
			CommunicatedTime:   best.PickupTime,
			PrevLegDuration:    best.PickupPrevLegDuration,
			NextLegDuration:    best.PickupNextLegDuration,
			EventGroup:         plan.PickupEventGroup,
		},
		Dropoff: EventInsert{
			Coordinates:        c.Target,
			IsPickup:           false,
			ScheduledTimeStart: best.ScheduledDropoffTimeStart,
			ScheduledTimeEnd:   best.ScheduledDropoffTimeEnd,
			CommunicatedTime:   best.DropoffTime,
			PrevLegDuration:    best.DropoffPrevLegDuration,
			NextLegDuration:    best.DropoffNextLegDuration,
			EventGroup:         plan.DropoffEventGroup,
		},
		MergeTourList:     withoutTour(plan.MergeTourList, plan.Tour),
		DirectDurations:   plan.DirectDurations,
		EventGroupUpdates: plan.EventGroupUpdates,
		ScheduledTimes:    plan.ScheduledTimes,
		PrevLegDurations:  plan.PrevLegDurations,
		NextLegDurations:  plan.NextLegDurations,
	}

	requestID, err := s.repo.CommitBooking(ctx, commit)
	if err != nil {
		return 0, fmt.Errorf("committing booking: %w", err)
	}

	if s.notifier != nil {
		change := notify.ChangeExtended
		switch {
		case best.PickupCase.How == dispatch.NewTour:
			change = notify.ChangeNewTour
		case len(commit.MergeTourList) > 0:
			change = notify.ChangeMerged
		}
		var tourID int64
		if plan.Tour != nil {
			tourID = *plan.Tour
		}
		err := s.notifier.PublishTourChange(ctx, notify.TourChange{
			RequestID:   requestID,
			TourID:      tourID,
			VehicleID:   best.Vehicle,
			CompanyID:   plan.CompanyID,
			PickupTime:  best.PickupTime,
			DropoffTime: best.DropoffTime,
			Change:      change,
		})
		if err != nil {
			// The booking is committed; a lost notification is not worth
			// failing it over.
			s.logger.Warn().Err(err).Int64("request_id", requestID).
				Msg("tour change notification failed")
		}
	}

	s.logger.Info().
		Int64("request_id", requestID).
		Int64("vehicle_id", best.Vehicle).
		Int64("pickup_time", best.PickupTime).
		Int64("dropoff_time", best.DropoffTime).
		Float64("cost", best.Cost).
		Msg("booking committed")
	return requestID, nil
}

// Cancel marks a request cancelled and notifies the affected tour.
func (s *Service) Cancel(ctx context.Context, requestID int64) error {
	if err := s.repo.CancelRequest(ctx, requestID); err != nil {
		return fmt.Errorf("cancelling request %d: %w", requestID, err)
	}
	if s.notifier != nil {
		err := s.notifier.PublishTourChange(ctx, notify.TourChange{
			RequestID: requestID,
			Change:    notify.ChangeCancelled,
		})
		if err != nil {
			s.logger.Warn().Err(err).Int64("request_id", requestID).
				Msg("tour change notification failed")
		}
	}
	s.logger.Info().Int64("request_id", requestID).Msg("booking cancelled")
	return nil
}

// candidateDeltas lists the time shifts to try, nearest first. A zero
// requested time disables the search.
func candidateDeltas(requestedTime int64) []int64 {
	if requestedTime == 0 {
		return []int64{0}
	}
	var deltas []int64
	for d := -2 * DirectRideTimeDifference; d <= 2*DirectRideTimeDifference; d += DirectRideFrequency {
		deltas = append(deltas, d)
	}
	sort.Slice(deltas, func(a, b int) bool {
		return abs64(deltas[a]) < abs64(deltas[b])
	})
	return deltas
}

// shiftConnection moves a leg's times by delta, keeping everything else.
func shiftConnection(c *booking.ExpectedConnection, delta int64) *booking.ExpectedConnection {
	if c == nil || delta == 0 {
		return c
	}
	shifted := *c
	shifted.StartTime += delta
	shifted.TargetTime += delta
	return &shifted
}

func promisedTimes(c *booking.ExpectedConnection) *booking.PromisedTimes {
	if c == nil {
		return nil
	}
	return &booking.PromisedTimes{Pickup: c.StartTime, Dropoff: c.TargetTime}
}

// getCommonTour returns a tour both merge lists touch, if any.
func getCommonTour(a, b []int64) *int64 {
	for _, ta := range a {
		for _, tb := range b {
			if ta == tb {
				return int64Ptr(ta)
			}
		}
	}
	return nil
}

func withoutTour(tours []int64, tour *int64) []int64 {
	if tour == nil {
		return tours
	}
	filtered := make([]int64, 0, len(tours))
	for _, t := range tours {
		if t != *tour {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
