package rideshare

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/motis-project/prima-dispatch/internal/booking"
	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/interval"
	"github.com/motis-project/prima-dispatch/internal/notify"
	"github.com/motis-project/prima-dispatch/internal/routing"
	"github.com/motis-project/prima-dispatch/internal/taxi"
)

// ServiceConfig holds configuration for the ride-share matching service.
type ServiceConfig struct {
	// Repository reads and writes offered tours.
	Repository Repository

	// Routing computes driving durations. Should be capped at MaxTourTime.
	Routing *routing.Service

	// Signer validates connection signatures on booking requests.
	Signer *booking.Signer

	// Notifier publishes request notifications. Optional.
	Notifier notify.Publisher

	// Logger for service operations.
	Logger zerolog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service matches requests into driver-offered tours.
type Service struct {
	repo     Repository
	routing  *routing.Service
	signer   *booking.Signer
	notifier notify.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a ride-share matching service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     cfg.Repository,
		routing:  cfg.Routing,
		signer:   cfg.Signer,
		notifier: cfg.Notifier,
		logger:   cfg.Logger.With().Str("component", "rideshare").Logger(),
		now:      now,
	}
}

// EvaluateRequest prices every way of inserting the request into the given
// offered tours. Unlike the taxi fleet no vehicle is dispatched fresh, so
// there is no new-tour case, and all viable insertions are returned per bus
// stop and time rather than just the best one: the customer picks among
// competing drivers.
func (s *Service) EvaluateRequest(
	ctx context.Context,
	offers []*Offer,
	userChosen dispatch.Coordinates,
	busStops []taxi.BusStop,
	required dispatch.Capacities,
	startFixed bool,
	promised *PromisedTimes,
) ([][][]*Insertion, error) {
	if len(offers) == 0 {
		return emptyResult(busStops), nil
	}

	stopCoords := make([]*dispatch.Coordinates, len(busStops))
	coords := make([]dispatch.Coordinates, len(busStops))
	for i := range busStops {
		stopCoords[i] = &busStops[i].Coordinates
		coords[i] = busStops[i].Coordinates
	}
	travelDurations, err := s.routing.BatchOneToMany(ctx, userChosen, stopCoords, startFixed)
	if err != nil {
		return nil, fmt.Errorf("routing direct durations: %w", err)
	}
	for i, d := range travelDurations {
		if d != nil {
			travelDurations[i] = int64Ptr(*d + taxi.PassengerChangeDuration)
		}
	}

	insertionRanges := make(map[int64][]dispatch.Range)
	for _, offer := range offers {
		insertionRanges[offer.ID] = dispatch.PossibleInsertions(
			offer.Capacities, required, offer.CapacityChanges())
	}

	results, err := routeInsertions(ctx, s.routing, offers, insertionRanges, userChosen, coords)
	if err != nil {
		return nil, err
	}

	earliest := int64(math.MaxInt64)
	latest := int64(0)
	for _, offer := range offers {
		earliest = min(earliest, offer.Departure)
		latest = max(latest, offer.Arrival)
	}
	if earliest >= latest {
		return emptyResult(busStops), nil
	}

	// The published connection time is a departure when the start is fixed,
	// so the passenger may wait at the destination stop, and vice versa.
	busStopTimes := make([][]interval.Interval, len(busStops))
	for i, bs := range busStops {
		busStopTimes[i] = make([]interval.Interval, len(bs.Times))
		for j, t := range bs.Times {
			if startFixed {
				busStopTimes[i][j] = interval.New(t, t+taxi.MaxPassengerWaitingTimePickup)
			} else {
				busStopTimes[i][j] = interval.New(t-taxi.MaxPassengerWaitingTimeDropoff, t)
			}
		}
	}

	evals := evaluateSingleInsertions(offers, startFixed, insertionRanges,
		busStopTimes, results, travelDurations, s.now(), promised)
	pairs := evaluatePairInsertions(offers, startFixed, insertionRanges, busStopTimes, evals)

	merged := mergeResults(evals.bothEvaluations, pairs)

	s.logger.Debug().
		Int("offers", len(offers)).
		Int("busStops", len(busStops)).
		Bool("startFixed", startFixed).
		Msg("request evaluated")
	return merged, nil
}

func mergeResults(a, b [][][]*Insertion) [][][]*Insertion {
	merged := make([][][]*Insertion, len(a))
	for i := range a {
		merged[i] = make([][]*Insertion, len(a[i]))
		for j := range a[i] {
			merged[i][j] = append(append([]*Insertion{}, a[i][j]...), b[i][j]...)
		}
	}
	return merged
}

func emptyResult(busStops []taxi.BusStop) [][][]*Insertion {
	result := make([][][]*Insertion, len(busStops))
	for i, bs := range busStops {
		result[i] = make([][]*Insertion, len(bs.Times))
	}
	return result
}
