package rideshare

import "github.com/motis-project/prima-dispatch/internal/dispatch"

const (
	// ScheduledTimeBufferPickup is the slack granted around a pickup's
	// communicated time.
	ScheduledTimeBufferPickup = 10 * dispatch.Minute

	// MaxTourTime bounds a single leg's driving duration inside an offered
	// tour.
	MaxTourTime = 4 * dispatch.Hour
)

// Driver economics, per millisecond of duration. An insertion below
// MinimumProfit is not offered to the driver.
const (
	BaseProfit         = float64(5 * dispatch.Minute)
	ProfitPerTime      = 1.0
	CostPerDrivingTime = 1.0
	CostPerWaitingTime = 0.5
	MinimumProfit      = 0.0
)

// ScheduledTimeBufferDropoff is the slack around a dropoff's communicated
// time. It grows with the ride length since long rides accumulate more
// uncertainty.
func ScheduledTimeBufferDropoff(passengerDuration int64) int64 {
	return 10*dispatch.Minute + passengerDuration/10
}

// getProfit values an insertion for the driver: income for the payed ride
// minus the cost of the extra unpayed driving and waiting.
func getProfit(payedDuration, unpayedDrivingDuration, waitingTime int64) float64 {
	return BaseProfit +
		ProfitPerTime*float64(payedDuration) -
		CostPerDrivingTime*float64(unpayedDrivingDuration) -
		CostPerWaitingTime*float64(waitingTime)
}
