// Package taxi evaluates and commits request insertions into company vehicle
// schedules. Candidate insertions are enumerated over an availability
// snapshot, priced against batched routing results, and the cheapest valid
// plan is persisted atomically.
package taxi

import (
	"github.com/motis-project/prima-dispatch/internal/dispatch"
)

const (
	// MinPrep is the minimum lead time between booking and pickup.
	MinPrep = dispatch.Hour

	// MaxTravel bounds a single driving leg.
	MaxTravel = dispatch.Hour

	// MaxPassengerWaitingTimePickup bounds how long a passenger may wait at
	// the pickup beyond the communicated time.
	MaxPassengerWaitingTimePickup = 10 * dispatch.Minute

	// MaxPassengerWaitingTimeDropoff bounds how early a passenger may arrive
	// before the communicated dropoff time.
	MaxPassengerWaitingTimeDropoff = 10 * dispatch.Minute

	// PassengerChangeDuration is the boarding/alighting time added to legs
	// adjacent to a stop.
	PassengerChangeDuration = dispatch.Minute

	// BufferTime is a slack added to every leg duration.
	BufferTime = 0

	// MaxWaitingTime bounds the additional waiting time a driver may be
	// burdened with by one insertion.
	MaxWaitingTime = 4 * dispatch.Hour

	// EarliestShiftStart and LatestShiftEnd restrict operation to daytime
	// hours, evaluated in the fleet's timezone.
	EarliestShiftStart = 6 * dispatch.Hour
	LatestShiftEnd     = 21 * dispatch.Hour
)

// Cost factors weighting the insertion cost components.
const (
	approachAndReturnTimeCostFactor = 1.0
	fullyPayedCostFactor            = 1.0
	passengerTimeCostFactor         = 0.0
	taxiWaitingTimeCostFactor       = 0.5
)

func computeCost(passengerDuration, approachPlusReturnDurationDelta, fullyPayedDurationDelta, taxiWaitingTime int64) float64 {
	return approachAndReturnTimeCostFactor*float64(approachPlusReturnDurationDelta) +
		fullyPayedCostFactor*float64(fullyPayedDurationDelta) +
		passengerTimeCostFactor*float64(passengerDuration) +
		taxiWaitingTimeCostFactor*float64(taxiWaitingTime)
}

func waitsTooLong(waitingTime int64) bool {
	return waitingTime > MaxWaitingTime
}
