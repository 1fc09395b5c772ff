package rideshare

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
	"github.com/motis-project/prima-dispatch/internal/notify"
	"github.com/motis-project/prima-dispatch/internal/taxi"
)

// Booking errors.
var (
	// ErrMissingConnection indicates a booking request without any leg.
	ErrMissingConnection = errors.New("booking requires at least one connection")

	// ErrNoMatchingTour indicates that no offered tour can serve the
	// requested legs at any candidate time.
	ErrNoMatchingTour = errors.New("no offered tour can serve the requested connection")

	// ErrRequestNotFound indicates an unknown or already handled request id.
	ErrRequestNotFound = errors.New("ride share request not found")

	// ErrNotTourOwner indicates a driver touching a request in a tour that
	// is not theirs.
	ErrNotTourOwner = errors.New("request belongs to another driver's tour")

	// ErrTourNoLongerValid indicates that the offered tour can no longer
	// serve a pending request, e.g. after other requests were accepted.
	ErrTourNoLongerValid = errors.New("the offered tour can no longer serve the request")
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

// BookingResult reports the created pending requests. The ride is not
// guaranteed until the drivers accept.
type BookingResult struct {
	RequestID1 *int64 `json:"request1,omitempty"`
	RequestID2 *int64 `json:"request2,omitempty"`
}

// bookSharedRideResponse is the placement of one leg into one offered tour.
type bookSharedRideResponse struct {
	Best  *Insertion
	Tour  int64
	Offer *Offer
}

// Book validates the legs and files them as pending requests on the most
// profitable offered tours. Legs are tried at the requested time first, then
// at nearby candidate times.
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
	shifted := params.Connection1
	if params.Connection2 != nil {
		shifted = params.Connection2
		if primary == nil {
			primary = params.Connection2
		}
	}

	for _, rt := range candidateRequestedTimes(primary.RequestedTime) {
		c1, c2 := params.Connection1, params.Connection2
		moved := *shifted
		moved.RequestedTime = rt
		if shifted == params.Connection2 {
			c2 = &moved
		} else {
			c1 = &moved
		}

		result, err := s.tryBooking(ctx, c1, c2, params.Capacities, params.CustomerID)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, ErrNoMatchingTour
}

// tryBooking attempts both legs at one candidate time. Returns nil without
// error when a leg cannot be placed.
func (s *Service) tryBooking(
	ctx context.Context,
	c1, c2 *booking.ExpectedConnection,
	required dispatch.Capacities,
	customerID int64,
) (*BookingResult, error) {
	var plan1, plan2 *bookSharedRideResponse
	var err error

	if c1 != nil {
		plan1, err = s.bookSharedRide(ctx, c1, required, nil, promisedTimes(c1))
		if err != nil {
			return nil, err
		}
		if plan1 == nil {
			return nil, nil
		}
	}
	if c2 != nil {
		// Both legs on the same offered tour would have the driver serve
		// the customer twice in a row; block the first leg's tour.
		var blocked *int64
		if plan1 != nil {
			blocked = &plan1.Tour
		}
		plan2, err = s.bookSharedRide(ctx, c2, required, blocked, promisedTimes(c2))
		if err != nil {
			return nil, err
		}
		if plan2 == nil {
			return nil, nil
		}
	}

	result := &BookingResult{}
	if plan1 != nil {
		id, err := s.commitRequest(ctx, c1, plan1, required, customerID)
		if err != nil {
			return nil, err
		}
		result.RequestID1 = &id
	}
	if plan2 != nil {
		id, err := s.commitRequest(ctx, c2, plan2, required, customerID)
		if err != nil {
			return nil, err
		}
		result.RequestID2 = &id
	}
	return result, nil
}

// bookSharedRide places one leg into the most profitable offered tour.
// Returns nil when no tour can serve it.
func (s *Service) bookSharedRide(
	ctx context.Context,
	c *booking.ExpectedConnection,
	required dispatch.Capacities,
	blockedTourID *int64,
	promised *PromisedTimes,
) (*bookSharedRideResponse, error) {
	searchWindow := interval.New(c.StartTime, c.TargetTime).Expand(dispatch.Day, dispatch.Day)
	offers, err := s.repo.OpenTours(ctx, searchWindow, required)
	if err != nil {
		return nil, fmt.Errorf("loading offered tours: %w", err)
	}
	if len(offers) == 0 {
		return nil, nil
	}

	allowed := make([]*Offer, 0, len(offers))
	for i := range offers {
		if blockedTourID != nil && offers[i].ID == *blockedTourID {
			continue
		}
		allowed = append(allowed, &offers[i])
	}

	userChosen, busStop := c.Start, c.Target
	if c.StartFixed {
		userChosen, busStop = c.Target, c.Start
	}
	results, err := s.EvaluateRequest(ctx, allowed, userChosen,
		[]taxi.BusStop{{Coordinates: busStop, Times: []int64{c.RequestedTime}}},
		required, c.StartFixed, promised)
	if err != nil {
		return nil, err
	}

	candidates := results[0][0]
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Profit > candidates[b].Profit
	})
	best := candidates[0]

	for _, offer := range allowed {
		if offer.ID == best.Tour {
			return &bookSharedRideResponse{Best: best, Tour: best.Tour, Offer: offer}, nil
		}
	}
	return nil, fmt.Errorf("offer %d of best insertion not loaded", best.Tour)
}

// commitRequest persists one leg as a pending request and notifies the
// driver.
func (s *Service) commitRequest(
	ctx context.Context,
	c *booking.ExpectedConnection,
	plan *bookSharedRideResponse,
	required dispatch.Capacities,
	customerID int64,
) (int64, error) {
	best := plan.Best
	busStopTime := c.TargetTime
	if c.StartFixed {
		busStopTime = c.StartTime
	}
	commit := &RequestCommit{
		CustomerID:    customerID,
		TourID:        plan.Tour,
		Required:      required,
		StartFixed:    c.StartFixed,
		BusStopTime:   busStopTime,
		RequestedTime: c.RequestedTime,
		Pickup: EventCommit{
			Coordinates:        c.Start,
			IsPickup:           true,
			ScheduledTimeStart: best.ScheduledPickupTimeStart,
			ScheduledTimeEnd:   best.ScheduledPickupTimeEnd,
			CommunicatedTime:   best.PickupTime,
			PrevLegDuration:    best.PickupPrevLegDuration,
			NextLegDuration:    best.PickupNextLegDuration,
		},
		Dropoff: EventCommit{
			Coordinates:        c.Target,
			IsPickup:           false,
			ScheduledTimeStart: best.ScheduledDropoffTimeStart,
			ScheduledTimeEnd:   best.ScheduledDropoffTimeEnd,
			CommunicatedTime:   best.DropoffTime,
			PrevLegDuration:    best.DropoffPrevLegDuration,
			NextLegDuration:    best.DropoffNextLegDuration,
		},
	}

	requestID, err := s.repo.CreatePendingRequest(ctx, commit)
	if err != nil {
		return 0, fmt.Errorf("creating pending request: %w", err)
	}

	s.publish(ctx, notify.TourChange{
		RequestID:   requestID,
		TourID:      plan.Tour,
		VehicleID:   plan.Offer.VehicleID,
		PickupTime:  best.PickupTime,
		DropoffTime: best.DropoffTime,
		Change:      notify.ChangeRequested,
	})

	s.logger.Info().
		Int64("request_id", requestID).
		Int64("tour_id", plan.Tour).
		Int64("pickup_time", best.PickupTime).
		Int64("dropoff_time", best.DropoffTime).
		Float64("profit", best.Profit).
		Msg("pending ride share request created")
	return requestID, nil
}

// Accept confirms a pending request on behalf of the driver owning the tour.
// The insertion is re-derived against the tour's accepted stops, since other
// requests may have been accepted since the customer booked.
func (s *Service) Accept(ctx context.Context, requestID, providerID int64) error {
	offer, err := s.repo.TourByRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("loading tour of request %d: %w", requestID, err)
	}
	if offer == nil {
		return ErrRequestNotFound
	}
	if offer.Owner != providerID {
		return ErrNotTourOwner
	}

	var newPickup, newDropoff *Event
	for i := range offer.Events {
		if offer.Events[i].RequestID != requestID {
			continue
		}
		if offer.Events[i].IsPickup {
			newPickup = &offer.Events[i]
		} else {
			newDropoff = &offer.Events[i]
		}
	}
	if newPickup == nil || newDropoff == nil || newPickup.BusStopTime == nil && newDropoff.BusStopTime == nil {
		return ErrRequestNotFound
	}

	startFixed := newPickup.StartFixed
	userChosen, fixedStop := newPickup, newDropoff
	if startFixed {
		userChosen, fixedStop = newDropoff, newPickup
	}
	if fixedStop.BusStopTime == nil {
		return ErrRequestNotFound
	}
	required := dispatch.Capacities{
		Passengers: newPickup.Passengers,
		Luggage:    newPickup.Luggage,
	}

	results, err := s.EvaluateRequest(ctx, []*Offer{offer}, userChosen.Coordinates,
		[]taxi.BusStop{{Coordinates: fixedStop.Coordinates, Times: []int64{*fixedStop.BusStopTime}}},
		required, startFixed, &PromisedTimes{
			PromisedTimes: booking.PromisedTimes{
				Pickup:  newPickup.CommunicatedTime,
				Dropoff: newDropoff.CommunicatedTime,
			},
			TourID: offer.ID,
		})
	if err != nil {
		return err
	}
	if len(results[0][0]) == 0 {
		return ErrTourNoLongerValid
	}
	best := results[0][0][0]

	// The request's own pending stops sit next to each other in the event
	// list; their direct neighbours are shared by pickup and dropoff.
	firstIdx, lastIdx := -1, -1
	for i := range offer.Events {
		if offer.Events[i].RequestID == requestID {
			if firstIdx == -1 {
				firstIdx = i
			}
			lastIdx = i
		}
	}
	var prevEvent, nextEvent *Event
	if firstIdx > 0 {
		prevEvent = &offer.Events[firstIdx-1]
	}
	if lastIdx+1 < len(offer.Events) {
		nextEvent = &offer.Events[lastIdx+1]
	}

	pickupWindow := interval.New(best.ScheduledPickupTimeStart, best.ScheduledPickupTimeEnd)
	dropoffWindow := interval.New(best.ScheduledDropoffTimeStart, best.ScheduledDropoffTimeEnd)
	var pickupGroup, dropoffGroup *string
	if belongToSameEventGroup(prevEvent, newPickup.Coordinates, pickupWindow) {
		pickupGroup = &prevEvent.EventGroup
	}
	if belongToSameEventGroup(nextEvent, newPickup.Coordinates, pickupWindow) {
		pickupGroup = &nextEvent.EventGroup
	}
	if belongToSameEventGroup(prevEvent, newDropoff.Coordinates, dropoffWindow) {
		dropoffGroup = &prevEvent.EventGroup
	}
	if belongToSameEventGroup(nextEvent, newDropoff.Coordinates, dropoffWindow) {
		dropoffGroup = &nextEvent.EventGroup
	}

	scheduledTimes, err := getScheduledTimes(best, prevEvent, nextEvent, nextEvent, prevEvent,
		pickupGroup, dropoffGroup)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTourNoLongerValid, err.Error())
	}
	prevLegUpdates, nextLegUpdates := getDurationUpdates(best)

	commit := &AcceptCommit{
		RequestID:      requestID,
		PickupEventID:  newPickup.ID,
		DropoffEventID: newDropoff.ID,
		Pickup: EventCommit{
			Coordinates:        newPickup.Coordinates,
			IsPickup:           true,
			ScheduledTimeStart: best.ScheduledPickupTimeStart,
			ScheduledTimeEnd:   best.ScheduledPickupTimeEnd,
			CommunicatedTime:   best.PickupTime,
			PrevLegDuration:    best.PickupPrevLegDuration,
			NextLegDuration:    best.PickupNextLegDuration,
			EventGroup:         derefGroup(pickupGroup),
		},
		Dropoff: EventCommit{
			Coordinates:        newDropoff.Coordinates,
			IsPickup:           false,
			ScheduledTimeStart: best.ScheduledDropoffTimeStart,
			ScheduledTimeEnd:   best.ScheduledDropoffTimeEnd,
			CommunicatedTime:   best.DropoffTime,
			PrevLegDuration:    best.DropoffPrevLegDuration,
			NextLegDuration:    best.DropoffNextLegDuration,
			EventGroup:         derefGroup(dropoffGroup),
		},
		ScheduledTimes: scheduledTimes,
		PrevLegUpdates: prevLegUpdates,
		NextLegUpdates: nextLegUpdates,
	}
	if err := s.repo.AcceptRequest(ctx, commit); err != nil {
		return fmt.Errorf("accepting request %d: %w", requestID, err)
	}

	s.publish(ctx, notify.TourChange{
		RequestID:   requestID,
		TourID:      offer.ID,
		VehicleID:   offer.VehicleID,
		PickupTime:  best.PickupTime,
		DropoffTime: best.DropoffTime,
		Change:      notify.ChangeAccepted,
	})

	s.logger.Info().
		Int64("request_id", requestID).
		Int64("tour_id", offer.ID).
		Msg("ride share request accepted")
	return nil
}

// Cancel withdraws a request, pending or accepted.
func (s *Service) Cancel(ctx context.Context, requestID int64) error {
	if err := s.repo.CancelRequest(ctx, requestID); err != nil {
		return fmt.Errorf("cancelling request %d: %w", requestID, err)
	}
	s.publish(ctx, notify.TourChange{
		RequestID: requestID,
		Change:    notify.ChangeCancelled,
	})
	s.logger.Info().Int64("request_id", requestID).Msg("ride share request cancelled")
	return nil
}

func (s *Service) publish(ctx context.Context, change notify.TourChange) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishTourChange(ctx, change); err != nil {
		// The write is committed; a lost notification is not worth failing
		// it over.
		s.logger.Warn().Err(err).Int64("request_id", change.RequestID).
			Msg("ride share notification failed")
	}
}

// candidateRequestedTimes lists the connection times to try, nearest first.
func candidateRequestedTimes(requestedTime int64) []int64 {
	var times []int64
	for t := requestedTime - 2*taxi.DirectRideTimeDifference; t <= requestedTime+2*taxi.DirectRideTimeDifference; t += taxi.DirectRideFrequency {
		times = append(times, t)
	}
	sort.Slice(times, func(a, b int) bool {
		return abs64(times[a]-requestedTime) < abs64(times[b]-requestedTime)
	})
	return times
}

func promisedTimes(c *booking.ExpectedConnection) *PromisedTimes {
	if c.TourID == nil {
		return nil
	}
	return &PromisedTimes{
		PromisedTimes: booking.PromisedTimes{Pickup: c.StartTime, Dropoff: c.TargetTime},
		TourID:        *c.TourID,
	}
}

func derefGroup(group *string) string {
	if group == nil {
		return ""
	}
	return *group
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
