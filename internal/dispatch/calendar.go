package dispatch

import (
	"time"

	"github.com/motis-project/prima-dispatch/internal/interval"
)

// AllowedTimes builds the per-day operating windows between earliest and
// latest. startOnDay and endOnDay are offsets from local midnight in
// milliseconds (e.g. 6h and 21h). The windows are anchored to local wall-clock
// time in loc, so they stay correct across daylight-saving transitions.
func AllowedTimes(earliest, latest, startOnDay, endOnDay int64, loc *time.Location) []interval.Interval {
	if earliest >= latest {
		return nil
	}

	earliestDay := (earliest / Day) * Day
	latestDay := (latest/Day)*Day + Day

	allowed := make([]interval.Interval, 0, (latestDay-earliestDay)/Day)
	for t := earliestDay; t < latestDay; t += Day {
		noon := time.UnixMilli(t + 12*Hour).In(loc)
		offset := int64(noon.Hour()-12) * Hour
		allowed = append(allowed, interval.New(t+startOnDay-offset, t+endOnDay-offset))
	}
	return allowed
}
